package audiocapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrWatchdogGaveUp is returned when stream restarts keep failing.
var ErrWatchdogGaveUp = errors.New("capture watchdog exhausted retries")

// Watchdog supervises a Capture. While a stream is expected active it
// compares the frame heartbeat against a stall timeout and forces a
// teardown/reopen cycle when frames stop arriving.
type Watchdog struct {
	capture *Capture

	interval     time.Duration
	stallTimeout time.Duration
	maxRetries   int

	// OnTransient is called with each non-fatal stall recovery attempt
	// outcome. Optional.
	OnTransient func(err error)

	retries int
}

// NewWatchdog creates a watchdog with the given stall timeout and retry
// bound. The check interval is fixed at one second.
func NewWatchdog(capture *Capture, stallTimeout time.Duration, maxRetries int) *Watchdog {
	return &Watchdog{
		capture:      capture,
		interval:     time.Second,
		stallTimeout: stallTimeout,
		maxRetries:   maxRetries,
	}
}

// Run checks the heartbeat until ctx is done. It returns
// ErrWatchdogGaveUp after maxRetries consecutive failed restarts;
// any successful recovery resets the retry budget.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.check(); err != nil {
				return err
			}
		}
	}
}

func (w *Watchdog) check() error {
	if !w.capture.IsCapturing() {
		w.retries = 0
		return nil
	}

	gap := time.Since(w.capture.Heartbeat())
	if gap < w.stallTimeout {
		w.retries = 0
		return nil
	}

	slog.Warn("capture stalled, restarting stream", "gap", gap, "retries", w.retries)

	if err := w.capture.Restart(); err != nil {
		w.retries++
		wrapped := fmt.Errorf("restart capture: %w", err)
		if w.OnTransient != nil {
			w.OnTransient(wrapped)
		}
		if w.retries >= w.maxRetries {
			return fmt.Errorf("%w: %v", ErrWatchdogGaveUp, err)
		}
		return nil
	}

	w.retries = 0
	if w.OnTransient != nil {
		w.OnTransient(nil)
	}
	return nil
}
