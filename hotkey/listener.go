package hotkey

import (
	"context"
	"fmt"
	"log/slog"

	hook "github.com/robotn/gohook"
)

// Listener owns the global keyboard hook and routes record-key and
// pause-key events into the Latch. Key-hold repeat events double as the
// still-down confirmation for phantom release detection.
type Listener struct {
	latch     *Latch
	recordKey uint16
	pauseKey  uint16
	hasPause  bool
}

// NewListener resolves the configured key names against the portable
// keycode table. pauseKey may be empty.
func NewListener(latch *Latch, recordKey, pauseKey string) (*Listener, error) {
	record, ok := hook.Keycode[recordKey]
	if !ok {
		return nil, fmt.Errorf("unknown record key %q", recordKey)
	}
	l := &Listener{latch: latch, recordKey: record}

	if pauseKey != "" {
		pause, ok := hook.Keycode[pauseKey]
		if !ok {
			return nil, fmt.Errorf("unknown pause key %q", pauseKey)
		}
		l.pauseKey = pause
		l.hasPause = true
	}
	return l, nil
}

// Run consumes the global event stream until ctx is done. The hook
// callback context never blocks; classification work happens in the
// Latch, command delivery on its bounded channel.
func (l *Listener) Run(ctx context.Context) error {
	events := hook.Start()
	defer hook.End()

	slog.Info("keyboard hook active", "record_key", l.recordKey, "pause_key", l.pauseKey)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("keyboard hook closed")
			}
			l.handle(ev)
		}
	}
}

func (l *Listener) handle(ev hook.Event) {
	switch ev.Kind {
	case hook.KeyDown:
		switch ev.Keycode {
		case l.recordKey:
			l.latch.KeyDown()
		case l.pauseKey:
			if l.hasPause {
				l.latch.PauseToggle()
			}
		}
	case hook.KeyHold:
		if ev.Keycode == l.recordKey {
			l.latch.KeyStillDown()
		}
	case hook.KeyUp:
		if ev.Keycode == l.recordKey {
			l.latch.KeyUp()
		}
	}
}
