package output

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/micmonay/keybd_event"
)

// ErrUntypeable is returned when text contains characters with no key
// mapping on the assumed US layout. The dispatcher falls back to the
// clipboard cycle for such text.
var ErrUntypeable = errors.New("text contains untypeable characters")

// keybdInjector synthesizes key events through the platform input API.
type keybdInjector struct {
	kb keybd_event.KeyBonding
}

// NewInjector creates the platform key injector.
func NewInjector() (Injector, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("init key injector: %w", err)
	}
	// The uinput device needs a moment before events register.
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	return &keybdInjector{kb: kb}, nil
}

type keystroke struct {
	vk    int
	shift bool
}

// usLayout maps characters to virtual keys on a US keyboard, using the
// library's cross-platform VK_SP aliases for punctuation so the table
// compiles on every OS. Dictated text outside this table (most
// non-ASCII, plus grave/tilde whose key code differs per platform) is
// delivered via clipboard paste instead.
var usLayout = map[rune]keystroke{
	' ':  {vk: keybd_event.VK_SPACE},
	'\n': {vk: keybd_event.VK_ENTER},
	'\t': {vk: keybd_event.VK_TAB},

	'-':  {vk: keybd_event.VK_SP2},
	'=':  {vk: keybd_event.VK_SP3},
	'[':  {vk: keybd_event.VK_SP4},
	']':  {vk: keybd_event.VK_SP5},
	';':  {vk: keybd_event.VK_SP6},
	'\'': {vk: keybd_event.VK_SP7},
	'\\': {vk: keybd_event.VK_SP8},
	',':  {vk: keybd_event.VK_SP9},
	'.':  {vk: keybd_event.VK_SP10},
	'/':  {vk: keybd_event.VK_SP11},

	'!':  {vk: keybd_event.VK_1, shift: true},
	'@':  {vk: keybd_event.VK_2, shift: true},
	'#':  {vk: keybd_event.VK_3, shift: true},
	'$':  {vk: keybd_event.VK_4, shift: true},
	'%':  {vk: keybd_event.VK_5, shift: true},
	'^':  {vk: keybd_event.VK_6, shift: true},
	'&':  {vk: keybd_event.VK_7, shift: true},
	'*':  {vk: keybd_event.VK_8, shift: true},
	'(':  {vk: keybd_event.VK_9, shift: true},
	')':  {vk: keybd_event.VK_0, shift: true},
	'_':  {vk: keybd_event.VK_SP2, shift: true},
	'+':  {vk: keybd_event.VK_SP3, shift: true},
	'{':  {vk: keybd_event.VK_SP4, shift: true},
	'}':  {vk: keybd_event.VK_SP5, shift: true},
	':':  {vk: keybd_event.VK_SP6, shift: true},
	'"':  {vk: keybd_event.VK_SP7, shift: true},
	'|':  {vk: keybd_event.VK_SP8, shift: true},
	'<':  {vk: keybd_event.VK_SP9, shift: true},
	'>':  {vk: keybd_event.VK_SP10, shift: true},
	'?':  {vk: keybd_event.VK_SP11, shift: true},
}

var letterVKs = []int{
	keybd_event.VK_A, keybd_event.VK_B, keybd_event.VK_C, keybd_event.VK_D,
	keybd_event.VK_E, keybd_event.VK_F, keybd_event.VK_G, keybd_event.VK_H,
	keybd_event.VK_I, keybd_event.VK_J, keybd_event.VK_K, keybd_event.VK_L,
	keybd_event.VK_M, keybd_event.VK_N, keybd_event.VK_O, keybd_event.VK_P,
	keybd_event.VK_Q, keybd_event.VK_R, keybd_event.VK_S, keybd_event.VK_T,
	keybd_event.VK_U, keybd_event.VK_V, keybd_event.VK_W, keybd_event.VK_X,
	keybd_event.VK_Y, keybd_event.VK_Z,
}

var digitVKs = []int{
	keybd_event.VK_0, keybd_event.VK_1, keybd_event.VK_2, keybd_event.VK_3,
	keybd_event.VK_4, keybd_event.VK_5, keybd_event.VK_6, keybd_event.VK_7,
	keybd_event.VK_8, keybd_event.VK_9,
}

func lookupKeystroke(r rune) (keystroke, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return keystroke{vk: letterVKs[r-'a']}, true
	case r >= 'A' && r <= 'Z':
		return keystroke{vk: letterVKs[r-'A'], shift: true}, true
	case r >= '0' && r <= '9':
		return keystroke{vk: digitVKs[r-'0']}, true
	}
	ks, ok := usLayout[r]
	return ks, ok
}

func (i *keybdInjector) TypeText(text string, delay time.Duration) error {
	// Validate the whole text first so delivery is all or nothing.
	strokes := make([]keystroke, 0, len(text))
	for _, r := range text {
		ks, ok := lookupKeystroke(r)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUntypeable, r)
		}
		strokes = append(strokes, ks)
	}

	for _, ks := range strokes {
		i.kb.Clear()
		i.kb.SetKeys(ks.vk)
		i.kb.HasSHIFT(ks.shift)
		if err := i.kb.Launching(); err != nil {
			return fmt.Errorf("inject key: %w", err)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

func (i *keybdInjector) Paste() error {
	i.kb.Clear()
	i.kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		i.kb.HasSuper(true)
	} else {
		i.kb.HasCTRL(true)
	}
	if err := i.kb.Launching(); err != nil {
		return fmt.Errorf("paste chord: %w", err)
	}
	return nil
}
