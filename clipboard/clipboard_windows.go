//go:build windows

package clipboard

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	cfUnicodeText = 13
	gmemMoveable  = 0x0002
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	kernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procOpenClipboard      = user32.NewProc("OpenClipboard")
	procCloseClipboard     = user32.NewProc("CloseClipboard")
	procEmptyClipboard     = user32.NewProc("EmptyClipboard")
	procGetClipboardData   = user32.NewProc("GetClipboardData")
	procSetClipboardData   = user32.NewProc("SetClipboardData")
	procEnumClipboardFmts  = user32.NewProc("EnumClipboardFormats")
	procIsClipboardFmtAvbl = user32.NewProc("IsClipboardFormatAvailable")
	procGlobalAlloc        = kernel32.NewProc("GlobalAlloc")
	procGlobalFree         = kernel32.NewProc("GlobalFree")
	procGlobalLock         = kernel32.NewProc("GlobalLock")
	procGlobalUnlock       = kernel32.NewProc("GlobalUnlock")
	procGlobalSize         = kernel32.NewProc("GlobalSize")
)

// winBoard talks to the Win32 clipboard directly so non-text formats
// survive the snapshot/restore round trip as raw bytes.
type winBoard struct {
	mu sync.Mutex
}

func newBoard() Board {
	return &winBoard{}
}

// open retries briefly because another process may hold the clipboard.
func (b *winBoard) open() error {
	for i := 0; i < 10; i++ {
		r, _, _ := procOpenClipboard.Call(0)
		if r != 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("open clipboard: busy")
}

func (b *winBoard) close() {
	procCloseClipboard.Call()
}

func (b *winBoard) Snapshot() (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.open(); err != nil {
		return Snapshot{}, err
	}
	defer b.close()

	if avail, _, _ := procIsClipboardFmtAvbl.Call(cfUnicodeText); avail != 0 {
		data, err := readFormat(cfUnicodeText)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Text: decodeUTF16(data)}, nil
	}

	// Not text: capture the first enumerated format as opaque bytes.
	format, _, _ := procEnumClipboardFmts.Call(0)
	if format == 0 {
		return Snapshot{Empty: true}, nil
	}
	data, err := readFormat(uint32(format))
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Opaque: data, Format: uint32(format)}, nil
}

func (b *winBoard) WriteText(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.open(); err != nil {
		return err
	}
	defer b.close()

	procEmptyClipboard.Call()

	utf16, err := windows.UTF16FromString(text)
	if err != nil {
		return fmt.Errorf("encode clipboard text: %w", err)
	}
	buf := make([]byte, len(utf16)*2)
	for i, u := range utf16 {
		buf[i*2] = byte(u)
		buf[i*2+1] = byte(u >> 8)
	}
	return writeFormat(cfUnicodeText, buf)
}

func (b *winBoard) Restore(snap Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.open(); err != nil {
		return err
	}
	defer b.close()

	procEmptyClipboard.Call()

	if snap.Empty {
		return nil
	}
	if snap.IsText() {
		utf16, err := windows.UTF16FromString(snap.Text)
		if err != nil {
			return fmt.Errorf("encode clipboard text: %w", err)
		}
		buf := make([]byte, len(utf16)*2)
		for i, u := range utf16 {
			buf[i*2] = byte(u)
			buf[i*2+1] = byte(u >> 8)
		}
		return writeFormat(cfUnicodeText, buf)
	}
	return writeFormat(snap.Format, snap.Opaque)
}

// readFormat copies the clipboard payload for format out of the global
// handle. The clipboard must already be open.
func readFormat(format uint32) ([]byte, error) {
	h, _, _ := procGetClipboardData.Call(uintptr(format))
	if h == 0 {
		return nil, fmt.Errorf("get clipboard data: format %d", format)
	}
	size, _, _ := procGlobalSize.Call(h)
	if size == 0 {
		return nil, nil
	}
	p, _, _ := procGlobalLock.Call(h)
	if p == 0 {
		return nil, fmt.Errorf("lock clipboard data")
	}
	defer procGlobalUnlock.Call(h)

	data := make([]byte, size)
	copy(data, unsafe.Slice((*byte)(unsafe.Pointer(p)), size))
	return data, nil
}

// writeFormat hands a copy of data to the clipboard. The clipboard must
// already be open and emptied.
func writeFormat(format uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	h, _, _ := procGlobalAlloc.Call(gmemMoveable, uintptr(len(data)))
	if h == 0 {
		return fmt.Errorf("alloc clipboard buffer")
	}
	p, _, _ := procGlobalLock.Call(h)
	if p == 0 {
		procGlobalFree.Call(h)
		return fmt.Errorf("lock clipboard buffer")
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(p)), len(data)), data)
	procGlobalUnlock.Call(h)

	if r, _, _ := procSetClipboardData.Call(uintptr(format), h); r == 0 {
		procGlobalFree.Call(h)
		return fmt.Errorf("set clipboard data: format %d", format)
	}
	// Ownership of h passed to the system on success.
	return nil
}

func decodeUTF16(data []byte) string {
	u := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		v := uint16(data[i]) | uint16(data[i+1])<<8
		if v == 0 {
			break
		}
		u = append(u, v)
	}
	return windows.UTF16ToString(u)
}
