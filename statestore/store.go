// Package statestore shares pipeline status with the external status
// surface through a polled snapshot store.
//
// Every write replaces the full snapshot so readers never observe a
// partially updated record. The store is also the back channel: the
// surface writes a command value that the publisher reads and forwards
// into the hotkey command stream.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hushtype/hushtype/internal/types"
)

// Store reads and writes the shared snapshot.
type Store interface {
	Write(status types.PipelineStatus) error
	Read() (types.PipelineStatus, error)
}

// FileStore keeps the snapshot in a JSON file. Writes go to a temp file
// in the same directory followed by a rename, so readers see either the
// old or the new snapshot, never a torn one.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at path, creating the parent
// directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Write(status types.PipelineStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (s *FileStore) Read() (types.PipelineStatus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.PipelineStatus{State: types.StateIdle}, nil
		}
		return types.PipelineStatus{}, fmt.Errorf("read state: %w", err)
	}

	var status types.PipelineStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return types.PipelineStatus{}, fmt.Errorf("parse state: %w", err)
	}
	return status, nil
}
