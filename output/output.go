// Package output delivers final text to the focused application.
//
// Clipboard delivery follows a strict snapshot, write, paste, settle,
// restore sequence so the user's clipboard content survives dictation.
// The whole sequence is serialized: a second dispatch cannot start
// capturing before the prior restore finished.
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hushtype/hushtype/clipboard"
	"github.com/hushtype/hushtype/internal/types"
)

// ErrOutputFailed wraps platform injection or clipboard failures. The
// dispatched text stays recoverable from the published status.
var ErrOutputFailed = errors.New("output failed")

// Injector synthesizes keyboard input in the focused application.
type Injector interface {
	// TypeText emits text as per-character key events, pausing delay
	// between characters for targets with slow input handling.
	TypeText(text string, delay time.Duration) error
	// Paste issues the platform paste chord.
	Paste() error
}

// Config holds dispatcher settings.
type Config struct {
	Mode types.OutputMode
	// CharDelay is the inter-character pause for direct injection.
	CharDelay time.Duration
	// WriteSettle is the pause between clipboard write and paste.
	WriteSettle time.Duration
	// PasteSettle is how long the target gets to consume the paste
	// before the original clipboard returns.
	PasteSettle time.Duration
}

// Dispatcher owns the delivery path and the clipboard protocol.
type Dispatcher struct {
	cfg      Config
	injector Injector
	board    clipboard.Board

	mu sync.Mutex
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config, injector Injector, board clipboard.Board) *Dispatcher {
	if cfg.Mode == "" {
		cfg.Mode = types.OutputType
	}
	if cfg.WriteSettle == 0 {
		cfg.WriteSettle = 80 * time.Millisecond
	}
	if cfg.PasteSettle == 0 {
		cfg.PasteSettle = 150 * time.Millisecond
	}
	return &Dispatcher{cfg: cfg, injector: injector, board: board}
}

// Dispatch delivers text using the configured mode. It blocks the
// caller for the duration of the injection or clipboard cycle.
func (d *Dispatcher) Dispatch(text string) error {
	if text == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.cfg.Mode {
	case types.OutputType:
		if err := d.typeOrPaste(text); err != nil {
			return err
		}
	case types.OutputClipboard:
		if err := d.pasteWithRestore(text); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputFailed, err)
		}
	case types.OutputBoth:
		// Inject, then leave the text on the clipboard. No extra
		// paste/restore cycle.
		if err := d.typeOrPaste(text); err != nil {
			return err
		}
		if err := d.board.WriteText(text); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputFailed, err)
		}
	default:
		return fmt.Errorf("%w: unknown output mode %q", ErrOutputFailed, d.cfg.Mode)
	}
	return nil
}

// typeOrPaste injects directly, degrading to the clipboard cycle when
// the text contains characters the injector cannot synthesize.
func (d *Dispatcher) typeOrPaste(text string) error {
	err := d.injector.TypeText(text, d.cfg.CharDelay)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUntypeable) {
		slog.Debug("text not injectable, using clipboard paste", "error", err)
		if err := d.pasteWithRestore(text); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputFailed, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrOutputFailed, err)
}

// pasteWithRestore runs the clipboard-safety protocol. The caller must
// hold d.mu.
func (d *Dispatcher) pasteWithRestore(text string) error {
	snap, err := d.board.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot clipboard: %w", err)
	}

	if err := d.board.WriteText(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	time.Sleep(d.cfg.WriteSettle)

	if err := d.injector.Paste(); err != nil {
		// Still try to put the user's clipboard back.
		if rerr := d.board.Restore(snap); rerr != nil {
			slog.Error("restore clipboard after failed paste", "error", rerr)
		}
		return fmt.Errorf("paste: %w", err)
	}
	time.Sleep(d.cfg.PasteSettle)

	if err := d.board.Restore(snap); err != nil {
		return fmt.Errorf("restore clipboard: %w", err)
	}
	return nil
}
