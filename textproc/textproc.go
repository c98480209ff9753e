// Package textproc cleans up raw transcripts before dispatch.
package textproc

import (
	"strings"
	"unicode"
)

// Formatter applies language-aware cosmetic fixes to a transcript.
// It never changes the words, only spacing, capitalization and the
// final punctuation mark.
type Formatter struct {
	// Capitalize upcases the first letter of each sentence in Latin text.
	Capitalize bool
	// Punctuate appends a terminal mark when the text ends without one.
	Punctuate bool
	// SpaceCJK inserts a space between CJK and Latin/digit runs.
	SpaceCJK bool
}

// NewFormatter returns a formatter with all fixes enabled.
func NewFormatter() *Formatter {
	return &Formatter{Capitalize: true, Punctuate: true, SpaceCJK: true}
}

// Format applies the enabled fixes. lang is the ISO 639-1 code of the
// text, "" when unknown; CJK languages get CJK punctuation and skip
// capitalization.
func (f *Formatter) Format(text, lang string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	cjk := lang == "zh" || lang == "ja"

	if f.SpaceCJK {
		text = spaceCJKBoundaries(text)
	}
	if f.Capitalize && !cjk {
		text = capitalizeSentences(text)
	}
	if f.Punctuate {
		text = ensureTerminal(text, cjk)
	}
	return text
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

func isLatinOrDigit(r rune) bool {
	return unicode.Is(unicode.Latin, r) || unicode.IsDigit(r)
}

// spaceCJKBoundaries inserts a single space wherever a CJK rune abuts a
// Latin letter or digit.
func spaceCJKBoundaries(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text) + 8)

	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			if (isCJK(prev) && isLatinOrDigit(r)) || (isLatinOrDigit(prev) && isCJK(r)) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// capitalizeSentences upcases the first letter of the text and of every
// run following a sentence terminator.
func capitalizeSentences(text string) string {
	runes := []rune(text)
	atStart := true
	for i, r := range runes {
		if atStart && unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			atStart = false
			continue
		}
		switch r {
		case '.', '!', '?':
			atStart = true
		default:
			if !unicode.IsSpace(r) {
				atStart = false
			}
		}
	}
	return string(runes)
}

var terminalMarks = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
	'…': true, ':': true, '：': true,
	',': true, '，': true, ';': true, '；': true,
}

func ensureTerminal(text string, cjk bool) string {
	runes := []rune(text)
	last := runes[len(runes)-1]
	if terminalMarks[last] {
		return text
	}
	if cjk {
		return text + "。"
	}
	return text + "."
}
