package hotkey

import (
	"testing"
	"time"

	"github.com/hushtype/hushtype/internal/types"
)

func newTestLatch() *Latch {
	l := NewLatch(100 * time.Millisecond)
	l.confirmGrace = 40 * time.Millisecond
	return l
}

func nextCommand(t *testing.T, l *Latch) Command {
	t.Helper()
	select {
	case cmd := <-l.Commands():
		return cmd
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
		return Command{}
	}
}

func expectNoCommand(t *testing.T, l *Latch, within time.Duration) {
	t.Helper()
	select {
	case cmd := <-l.Commands():
		t.Fatalf("unexpected command %v", cmd.Kind)
	case <-time.After(within):
	}
}

func TestLatch_TapTogglesLatched(t *testing.T) {
	l := newTestLatch()

	// First tap: arm on down, latched start after the grace window.
	l.KeyDown()
	if cmd := nextCommand(t, l); cmd.Kind != CmdArm {
		t.Fatalf("got %v, want CmdArm", cmd.Kind)
	}
	time.Sleep(30 * time.Millisecond)
	l.KeyUp()

	cmd := nextCommand(t, l)
	if cmd.Kind != CmdStart {
		t.Fatalf("got %v, want CmdStart", cmd.Kind)
	}
	if cmd.Mode != types.ModeLatched {
		t.Errorf("Mode = %v, want ModeLatched", cmd.Mode)
	}

	// Second tap stops.
	l.KeyDown()
	time.Sleep(30 * time.Millisecond)
	l.KeyUp()

	if cmd := nextCommand(t, l); cmd.Kind != CmdStop {
		t.Fatalf("got %v, want CmdStop", cmd.Kind)
	}
}

func TestLatch_HoldStartsAtThreshold(t *testing.T) {
	l := newTestLatch()

	l.KeyDown()
	if cmd := nextCommand(t, l); cmd.Kind != CmdArm {
		t.Fatalf("got %v, want CmdArm", cmd.Kind)
	}

	// Start must fire at the threshold mark, before key-up.
	cmd := nextCommand(t, l)
	if cmd.Kind != CmdStart {
		t.Fatalf("got %v, want CmdStart", cmd.Kind)
	}
	if cmd.Mode != types.ModeHold {
		t.Errorf("Mode = %v, want ModeHold", cmd.Mode)
	}

	time.Sleep(150 * time.Millisecond)
	l.KeyUp()

	if cmd := nextCommand(t, l); cmd.Kind != CmdStop {
		t.Fatalf("got %v, want CmdStop", cmd.Kind)
	}
}

func TestLatch_SpuriousKeyUpKeepsHold(t *testing.T) {
	l := newTestLatch()

	l.KeyDown()
	if cmd := nextCommand(t, l); cmd.Kind != CmdArm {
		t.Fatalf("got %v, want CmdArm", cmd.Kind)
	}

	// Phantom release right after the press, then a repeat event
	// confirming the key is still physically down.
	time.Sleep(10 * time.Millisecond)
	l.KeyUp()
	time.Sleep(10 * time.Millisecond)
	l.KeyStillDown()

	// The press resumes and crosses the hold threshold.
	cmd := nextCommand(t, l)
	if cmd.Kind != CmdStart || cmd.Mode != types.ModeHold {
		t.Fatalf("got %v/%v, want CmdStart/ModeHold", cmd.Kind, cmd.Mode)
	}

	l.KeyUp()
	if cmd := nextCommand(t, l); cmd.Kind != CmdStop {
		t.Fatalf("got %v, want CmdStop", cmd.Kind)
	}
}

func TestLatch_UnconfirmedShortPressDegradesToTap(t *testing.T) {
	l := newTestLatch()

	l.KeyDown()
	if cmd := nextCommand(t, l); cmd.Kind != CmdArm {
		t.Fatalf("got %v, want CmdArm", cmd.Kind)
	}
	time.Sleep(10 * time.Millisecond)
	l.KeyUp()

	// No confirmation arrives, so after the grace window this counts as
	// a tap and latched recording starts.
	cmd := nextCommand(t, l)
	if cmd.Kind != CmdStart || cmd.Mode != types.ModeLatched {
		t.Fatalf("got %v/%v, want CmdStart/ModeLatched", cmd.Kind, cmd.Mode)
	}
}

func TestLatch_PauseSuppressesStart(t *testing.T) {
	l := newTestLatch()

	l.PauseToggle()
	if cmd := nextCommand(t, l); cmd.Kind != CmdPauseToggle {
		t.Fatalf("got %v, want CmdPauseToggle", cmd.Kind)
	}

	// Tap while paused is a no-op.
	l.KeyDown()
	time.Sleep(30 * time.Millisecond)
	l.KeyUp()
	expectNoCommand(t, l, 200*time.Millisecond)

	// Unpause, tap works again.
	l.PauseToggle()
	if cmd := nextCommand(t, l); cmd.Kind != CmdPauseToggle {
		t.Fatalf("got %v, want CmdPauseToggle", cmd.Kind)
	}

	l.KeyDown()
	if cmd := nextCommand(t, l); cmd.Kind != CmdArm {
		t.Fatalf("got %v, want CmdArm", cmd.Kind)
	}
	time.Sleep(30 * time.Millisecond)
	l.KeyUp()
	if cmd := nextCommand(t, l); cmd.Kind != CmdStart {
		t.Fatalf("got %v, want CmdStart", cmd.Kind)
	}
}

func TestLatch_PauseDuringRecordingStops(t *testing.T) {
	l := newTestLatch()

	l.KeyDown()
	nextCommand(t, l) // arm
	time.Sleep(30 * time.Millisecond)
	l.KeyUp()
	nextCommand(t, l) // latched start

	l.PauseToggle()

	if cmd := nextCommand(t, l); cmd.Kind != CmdStop {
		t.Fatalf("got %v, want CmdStop before pause", cmd.Kind)
	}
	if cmd := nextCommand(t, l); cmd.Kind != CmdPauseToggle {
		t.Fatalf("got %v, want CmdPauseToggle", cmd.Kind)
	}
}

func TestLatch_InjectTap(t *testing.T) {
	l := newTestLatch()

	l.InjectTap()
	cmd := nextCommand(t, l)
	if cmd.Kind != CmdStart || cmd.Mode != types.ModeLatched {
		t.Fatalf("got %v/%v, want CmdStart/ModeLatched", cmd.Kind, cmd.Mode)
	}

	l.InjectTap()
	if cmd := nextCommand(t, l); cmd.Kind != CmdStop {
		t.Fatalf("got %v, want CmdStop", cmd.Kind)
	}
}

func TestLatch_SessionEndedClearsLatch(t *testing.T) {
	l := newTestLatch()

	l.InjectTap()
	nextCommand(t, l) // start

	// Controller discarded the session (too short, error, ...).
	l.SessionEnded()

	// Next tap starts a fresh session instead of emitting a stop.
	l.InjectTap()
	cmd := nextCommand(t, l)
	if cmd.Kind != CmdStart {
		t.Fatalf("got %v, want CmdStart after session end", cmd.Kind)
	}
}
