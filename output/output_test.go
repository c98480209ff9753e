package output

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hushtype/hushtype/clipboard"
	"github.com/hushtype/hushtype/internal/types"
)

// fakeBoard records the operation sequence and simulates content.
type fakeBoard struct {
	mu       sync.Mutex
	ops      []string
	content  clipboard.Snapshot
	snapErr  error
	writeErr error
}

func (f *fakeBoard) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeBoard) Snapshot() (clipboard.Snapshot, error) {
	f.record("snapshot")
	return f.content, f.snapErr
}

func (f *fakeBoard) WriteText(text string) error {
	f.record("write:" + text)
	if f.writeErr != nil {
		return f.writeErr
	}
	f.content = clipboard.Snapshot{Text: text}
	return nil
}

func (f *fakeBoard) Restore(snap clipboard.Snapshot) error {
	f.record("restore")
	f.content = snap
	return nil
}

// fakeInjector records typed text and paste chords.
type fakeInjector struct {
	mu      sync.Mutex
	typed   []string
	pastes  int
	typeErr error
}

func (f *fakeInjector) TypeText(text string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.typeErr != nil {
		return f.typeErr
	}
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeInjector) Paste() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pastes++
	return nil
}

func newTestDispatcher(mode types.OutputMode, inj *fakeInjector, board *fakeBoard) *Dispatcher {
	return NewDispatcher(Config{
		Mode:        mode,
		WriteSettle: time.Millisecond,
		PasteSettle: time.Millisecond,
	}, inj, board)
}

func TestDispatch_TypeMode(t *testing.T) {
	inj := &fakeInjector{}
	board := &fakeBoard{}
	d := newTestDispatcher(types.OutputType, inj, board)

	if err := d.Dispatch("hello"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(inj.typed) != 1 || inj.typed[0] != "hello" {
		t.Errorf("typed = %v, want [hello]", inj.typed)
	}
	if len(board.ops) != 0 {
		t.Errorf("clipboard touched in type mode: %v", board.ops)
	}
}

func TestDispatch_ClipboardRestoresText(t *testing.T) {
	original := clipboard.Snapshot{Text: "user data"}
	inj := &fakeInjector{}
	board := &fakeBoard{content: original}
	d := newTestDispatcher(types.OutputClipboard, inj, board)

	if err := d.Dispatch("dictated"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	want := []string{"snapshot", "write:dictated", "restore"}
	if len(board.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", board.ops, want)
	}
	for i := range want {
		if board.ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", board.ops, want)
		}
	}
	if inj.pastes != 1 {
		t.Errorf("pastes = %d, want 1", inj.pastes)
	}
	if board.content.Text != original.Text || board.content.Empty != original.Empty {
		t.Errorf("clipboard content = %+v, want original restored", board.content)
	}
}

func TestDispatch_ClipboardRestoresOpaque(t *testing.T) {
	// A non-text payload must come back byte for byte.
	original := clipboard.Snapshot{Opaque: []byte{0xDE, 0xAD, 0xBE, 0xEF}, Format: 8}
	inj := &fakeInjector{}
	board := &fakeBoard{content: original}
	d := newTestDispatcher(types.OutputClipboard, inj, board)

	if err := d.Dispatch("dictated"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if board.content.Format != 8 || len(board.content.Opaque) != 4 {
		t.Errorf("clipboard content = %+v, want opaque snapshot restored", board.content)
	}
	if board.content.Opaque[0] != 0xDE || board.content.Opaque[3] != 0xEF {
		t.Errorf("opaque payload altered: %v", board.content.Opaque)
	}
}

func TestDispatch_BothMode(t *testing.T) {
	inj := &fakeInjector{}
	board := &fakeBoard{}
	d := newTestDispatcher(types.OutputBoth, inj, board)

	if err := d.Dispatch("hello"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(inj.typed) != 1 {
		t.Errorf("typed = %v, want one injection", inj.typed)
	}
	if inj.pastes != 0 {
		t.Errorf("pastes = %d, want 0 in both mode", inj.pastes)
	}
	// Text stays on the clipboard, no restore.
	if board.content.Text != "hello" {
		t.Errorf("clipboard = %+v, want dictated text left in place", board.content)
	}
	for _, op := range board.ops {
		if op == "restore" {
			t.Error("both mode must not run a restore cycle")
		}
	}
}

func TestDispatch_UntypeableFallsBackToClipboard(t *testing.T) {
	inj := &fakeInjector{typeErr: ErrUntypeable}
	board := &fakeBoard{content: clipboard.Snapshot{Text: "keep me"}}
	d := newTestDispatcher(types.OutputType, inj, board)

	if err := d.Dispatch("你好"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if inj.pastes != 1 {
		t.Errorf("pastes = %d, want 1 (clipboard fallback)", inj.pastes)
	}
	if board.content.Text != "keep me" {
		t.Errorf("clipboard = %+v, want original restored", board.content)
	}
}

func TestDispatch_ReportsOutputFailed(t *testing.T) {
	inj := &fakeInjector{typeErr: errors.New("no permission")}
	board := &fakeBoard{}
	d := newTestDispatcher(types.OutputType, inj, board)

	err := d.Dispatch("hello")
	if !errors.Is(err, ErrOutputFailed) {
		t.Fatalf("error = %v, want ErrOutputFailed", err)
	}
}

func TestDispatch_Serialized(t *testing.T) {
	inj := &fakeInjector{}
	board := &fakeBoard{}
	d := NewDispatcher(Config{
		Mode:        types.OutputClipboard,
		WriteSettle: 20 * time.Millisecond,
		PasteSettle: 20 * time.Millisecond,
	}, inj, board)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Dispatch("text"); err != nil {
				t.Errorf("Dispatch() error = %v", err)
			}
		}()
	}
	wg.Wait()

	// Each cycle is snapshot, write, restore; interleaving would break
	// the pattern.
	if len(board.ops) != 12 {
		t.Fatalf("ops = %d, want 12", len(board.ops))
	}
	for i := 0; i < len(board.ops); i += 3 {
		if board.ops[i] != "snapshot" || board.ops[i+1] != "write:text" || board.ops[i+2] != "restore" {
			t.Fatalf("cycle %d interleaved: %v", i/3, board.ops[i:i+3])
		}
	}
}

func TestLookupKeystroke(t *testing.T) {
	tests := []struct {
		r     rune
		ok    bool
		shift bool
	}{
		{'a', true, false},
		{'Z', true, true},
		{'5', true, false},
		{'!', true, true},
		{' ', true, false},
		{'.', true, false},
		{'?', true, true},
		// Grave has no portable key code; it goes via clipboard paste.
		{'`', false, false},
		{'你', false, false},
		{'é', false, false},
	}

	for _, tt := range tests {
		ks, ok := lookupKeystroke(tt.r)
		if ok != tt.ok {
			t.Errorf("lookupKeystroke(%q) ok = %v, want %v", tt.r, ok, tt.ok)
			continue
		}
		if ok && ks.shift != tt.shift {
			t.Errorf("lookupKeystroke(%q) shift = %v, want %v", tt.r, ks.shift, tt.shift)
		}
	}
}
