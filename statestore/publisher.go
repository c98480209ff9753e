package statestore

import (
	"context"
	"log/slog"
	"time"

	"github.com/hushtype/hushtype/internal/types"
)

// Publisher mirrors pipeline status into the store on a fixed cadence
// and forwards commands written by the status surface back into the
// pipeline.
type Publisher struct {
	store    Store
	interval time.Duration

	// Source returns the current status snapshot. Called once per poll.
	Source func() types.PipelineStatus
	// OnCommand receives commands read back from the store, e.g.
	// types.CommandToggleRecord.
	OnCommand func(command string)

	last  types.PipelineStatus
	wrote bool
}

// NewPublisher creates a publisher polling at interval (~200ms).
func NewPublisher(store Store, interval time.Duration) *Publisher {
	if interval == 0 {
		interval = 200 * time.Millisecond
	}
	return &Publisher{store: store, interval: interval}
}

// Run polls until ctx is done. Store errors are logged, not fatal; the
// status surface is an observer and must never take the pipeline down.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll()
		}
	}
}

// Flush writes the current snapshot unconditionally. Called once at
// shutdown so a terminal error set between polls still reaches the
// store.
func (p *Publisher) Flush() {
	status := p.Source()
	status.Command = ""
	if err := p.store.Write(status); err != nil {
		slog.Warn("flush status", "error", err)
		return
	}
	p.last = status
	p.wrote = true
}

func (p *Publisher) poll() {
	commanded := p.consumeCommand()

	status := p.Source()
	status.Command = ""

	// Write on change, on a consumed command (to clear it), and as a
	// steady heartbeat while the pipeline is busy.
	if p.wrote && !commanded && status == p.last && status.State == types.StateIdle {
		return
	}

	if err := p.store.Write(status); err != nil {
		slog.Warn("publish status", "error", err)
		return
	}
	p.last = status
	p.wrote = true
}

func (p *Publisher) consumeCommand() bool {
	stored, err := p.store.Read()
	if err != nil {
		slog.Warn("read state store", "error", err)
		return false
	}
	if stored.Command == "" {
		return false
	}
	slog.Info("status surface command", "command", stored.Command)
	if p.OnCommand != nil {
		p.OnCommand(stored.Command)
	}
	return true
}
