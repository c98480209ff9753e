// Package clipboard captures and restores the system clipboard around
// dictation output. A Snapshot taken before the pipeline writes is
// restored verbatim after the paste settles, so the user's clipboard
// survives dictation untouched.
package clipboard

// Snapshot is the clipboard content at capture time. Text content is
// kept as a string; anything else is held as an opaque payload tagged
// with its platform format id and restored byte for byte.
type Snapshot struct {
	Text   string
	Opaque []byte
	Format uint32
	// Empty means the clipboard held nothing; Restore clears it again.
	Empty bool
}

// IsText reports whether the snapshot carries plain text.
func (s Snapshot) IsText() bool {
	return !s.Empty && len(s.Opaque) == 0
}

// Board is the platform clipboard.
type Board interface {
	// Snapshot captures the current content.
	Snapshot() (Snapshot, error)
	// WriteText replaces the content with text.
	WriteText(text string) error
	// Restore puts a previously captured snapshot back.
	Restore(snap Snapshot) error
}

// New returns the clipboard for the current platform.
func New() Board {
	return newBoard()
}
