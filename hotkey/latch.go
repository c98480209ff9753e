// Package hotkey turns raw keyboard events into session commands.
//
// The gesture classifier distinguishes a quick tap of the record key,
// which toggles latched recording, from a sustained hold, which behaves
// as push-to-talk. Hold detection fires at the threshold mark without
// waiting for key-up.
package hotkey

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hushtype/hushtype/internal/types"
)

// CommandKind is a session-level command emitted by the classifier.
type CommandKind int

const (
	CmdArm CommandKind = iota
	CmdStart
	CmdStop
	CmdPauseToggle
)

func (k CommandKind) String() string {
	switch k {
	case CmdArm:
		return "arm"
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdPauseToggle:
		return "pause_toggle"
	}
	return "unknown"
}

// Command is one entry of the stream consumed by the session controller.
type Command struct {
	Kind CommandKind
	// Mode is set for CmdStart.
	Mode types.SessionMode
}

// defaultConfirmGrace is how long a sub-threshold key-up stays
// provisional, waiting for a repeat event to prove the key is still
// physically down. Some full-screen applications emit such phantom
// releases milliseconds after key-down.
const defaultConfirmGrace = 80 * time.Millisecond

// Latch is the gesture classifier. It is driven by KeyDown / KeyUp /
// KeyStillDown calls from the listener and emits Commands on a bounded
// channel. Safe for concurrent use.
type Latch struct {
	tapThreshold time.Duration
	confirmGrace time.Duration

	mu         sync.Mutex
	pressed    bool
	pressedAt  time.Time
	holdTimer  *time.Timer
	graceTimer *time.Timer
	holding    bool // hold-mode session started for the current press
	latched    bool // latched-mode session believed active
	paused     bool

	commands chan Command
}

// NewLatch creates a classifier. tapThreshold separates taps from holds.
func NewLatch(tapThreshold time.Duration) *Latch {
	return &Latch{
		tapThreshold: tapThreshold,
		confirmGrace: defaultConfirmGrace,
		commands:     make(chan Command, 16),
	}
}

// Commands returns the command stream. Exactly one consumer is expected.
func (l *Latch) Commands() <-chan Command {
	return l.commands
}

// emit must be called with l.mu held.
func (l *Latch) emit(cmd Command) {
	select {
	case l.commands <- cmd:
	default:
		slog.Warn("hotkey command dropped", "kind", cmd.Kind.String())
	}
}

// KeyDown handles a record-key press.
func (l *Latch) KeyDown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.graceTimer != nil {
		// The earlier key-up was spurious: the key is down again before
		// the grace window closed. Resume the press in flight.
		l.graceTimer.Stop()
		l.graceTimer = nil
		l.restartHoldTimerLocked()
		l.pressed = true
		return
	}

	if l.pressed {
		return // auto-repeat
	}
	l.pressed = true
	l.pressedAt = time.Now()
	l.holding = false

	if !l.latched && !l.paused {
		l.emit(Command{Kind: CmdArm})
	}

	l.stopHoldTimerLocked()
	l.holdTimer = time.AfterFunc(l.tapThreshold, l.holdExpired)
}

// KeyStillDown handles an OS key-repeat event for the record key. It
// serves as the supplementary confirmation that a recent key-up was
// phantom.
func (l *Latch) KeyStillDown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.graceTimer == nil {
		return
	}
	l.graceTimer.Stop()
	l.graceTimer = nil
	l.pressed = true
	l.restartHoldTimerLocked()
}

// KeyUp handles a record-key release.
func (l *Latch) KeyUp() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.pressed {
		return
	}
	l.pressed = false
	d := time.Since(l.pressedAt)

	if l.holding {
		// Push-to-talk release.
		l.stopHoldTimerLocked()
		l.holding = false
		l.emit(Command{Kind: CmdStop})
		return
	}

	if d >= l.tapThreshold {
		// Hold threshold passed but the timer has not fired yet;
		// let holdExpired start and stop back to back is pointless,
		// treat it as a tap boundary case.
		l.stopHoldTimerLocked()
		l.toggleLocked()
		return
	}

	// Sub-threshold release: provisional. A repeat event within the
	// grace window proves the key is still down and cancels the tap.
	l.stopHoldTimerLocked()
	l.graceTimer = time.AfterFunc(l.confirmGrace, l.graceExpired)
}

func (l *Latch) holdExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.pressed || l.holding {
		return
	}
	if l.latched {
		// Holding the key while latched recording is active; the
		// eventual release is handled as a tap toggle.
		return
	}
	if l.paused {
		slog.Debug("hold suppressed while paused")
		return
	}
	l.holding = true
	l.emit(Command{Kind: CmdStart, Mode: types.ModeHold})
}

func (l *Latch) graceExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.graceTimer == nil {
		return
	}
	l.graceTimer = nil
	l.toggleLocked()
}

// toggleLocked performs the tap action: start latched recording, or stop
// whatever is active.
func (l *Latch) toggleLocked() {
	if l.holding {
		l.holding = false
		l.emit(Command{Kind: CmdStop})
		return
	}
	if l.latched {
		l.latched = false
		l.emit(Command{Kind: CmdStop})
		return
	}
	if l.paused {
		slog.Debug("tap suppressed while paused")
		return
	}
	l.latched = true
	l.emit(Command{Kind: CmdStart, Mode: types.ModeLatched})
}

// InjectTap behaves as if the record key had been tapped. Used for the
// toggle command read back from the shared state store.
func (l *Latch) InjectTap() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.toggleLocked()
}

// PauseToggle handles the pause key. While paused new sessions are
// suppressed; a pause during active recording finalizes it.
func (l *Latch) PauseToggle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.paused = !l.paused
	if l.paused && (l.latched || l.holding) {
		l.latched = false
		l.holding = false
		l.emit(Command{Kind: CmdStop})
	}
	l.emit(Command{Kind: CmdPauseToggle})
}

// SessionEnded tells the classifier the controller returned to idle on
// its own (error, discard, or completed hold session), so a stale
// latched belief does not swallow the next tap.
func (l *Latch) SessionEnded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pressed {
		l.holding = false
	}
	l.latched = false
}

func (l *Latch) stopHoldTimerLocked() {
	if l.holdTimer != nil {
		l.holdTimer.Stop()
		l.holdTimer = nil
	}
}

func (l *Latch) restartHoldTimerLocked() {
	l.stopHoldTimerLocked()
	remaining := l.tapThreshold - time.Since(l.pressedAt)
	if remaining < 0 {
		remaining = 0
	}
	l.holdTimer = time.AfterFunc(remaining, l.holdExpired)
}
