// Package cache is a small persistent key-value cache backed by badger.
// The refine package uses it to avoid re-polishing identical transcripts.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a key has no live entry.
var ErrNotFound = errors.New("cache: not found")

// Cache stores string values with a TTL.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens or creates a cache at dir. Entries expire after ttl;
// ttl <= 0 means entries never expire.
func Open(dir string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the value for key, or ErrNotFound.
func (c *Cache) Get(key string) (string, error) {
	var value string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value = string(data)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cache get: %w", err)
	}
	return value, nil
}

// Set stores value under key with the cache TTL.
func (c *Cache) Set(key, value string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), []byte(value))
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// GenerateKey derives a stable key from its parts. Any part may contain
// arbitrary text; the result is a fixed-length hex digest.
func GenerateKey(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}
