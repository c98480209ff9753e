package session

import (
	"sync"

	"github.com/hushtype/hushtype/internal/types"
)

// StatusBoard is the thread-safe published view of the pipeline. The
// controller writes it; the state publisher and notifications read
// value snapshots, never shared references.
type StatusBoard struct {
	mu     sync.RWMutex
	status types.PipelineStatus
}

// NewStatusBoard returns an idle board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{status: types.PipelineStatus{State: types.StateIdle}}
}

// Snapshot returns the current status by value.
func (b *StatusBoard) Snapshot() types.PipelineStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// State returns the current pipeline state.
func (b *StatusBoard) State() types.PipelineState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status.State
}

// SetState moves the pipeline to state.
func (b *StatusBoard) SetState(state types.PipelineState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.State = state
	if state == types.StateIdle {
		b.status.Volume = 0
	}
}

// Begin clears the previous session's leftovers at session start.
func (b *StatusBoard) Begin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Error = ""
	b.status.Text = ""
	b.status.Volume = 0
}

// SetVolume updates the live level meter.
func (b *StatusBoard) SetVolume(volume float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Volume = volume
}

// SetError records a user-visible failure. It survives the return to
// idle until the next session begins.
func (b *StatusBoard) SetError(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Error = message
}

// SetText keeps the transcript recoverable from the status surface.
func (b *StatusBoard) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Text = text
}
