// Package langdetect identifies the language of transcribed text.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// Detector wraps a lingua detector. Building the underlying models is
// expensive, so it happens once on first use.
type Detector struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

// New returns a Detector. The language models load lazily on the first
// Detect call.
func New() *Detector {
	return &Detector{}
}

func (d *Detector) init() {
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromAllSpokenLanguages().
			WithLowAccuracyMode().
			Build()
	})
}

// Detect returns the ISO 639-1 code of the detected language, lowercase,
// e.g. "en" or "zh". Returns "" when no confident detection is possible.
func (d *Detector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	d.init()

	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

// Name returns the English language name for an ISO code detected by
// this package, or the code itself when unknown. Used to compose
// human-readable prompt directives.
func (d *Detector) Name(text string) string {
	d.init()

	lang, ok := d.detector.DetectLanguageOf(strings.TrimSpace(text))
	if !ok {
		return ""
	}
	return lang.String()
}
