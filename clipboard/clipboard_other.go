//go:build !windows

package clipboard

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// atottoBoard is the portable text-only clipboard. Non-text content is
// not visible through this backend, so a read error or empty read is
// treated as an empty clipboard.
type atottoBoard struct{}

func newBoard() Board {
	return atottoBoard{}
}

func (atottoBoard) Snapshot() (Snapshot, error) {
	text, err := clipboard.ReadAll()
	if err != nil || text == "" {
		return Snapshot{Empty: true}, nil
	}
	return Snapshot{Text: text}, nil
}

func (atottoBoard) WriteText(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

func (atottoBoard) Restore(snap Snapshot) error {
	if snap.Empty {
		return clipboard.WriteAll("")
	}
	if err := clipboard.WriteAll(snap.Text); err != nil {
		return fmt.Errorf("restore clipboard: %w", err)
	}
	return nil
}
