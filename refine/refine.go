package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hushtype/hushtype/cache"
)

// ErrRefinementFailed marks a failed or timed-out refinement. The
// returned text is always still usable: callers get the original
// transcript back alongside this error.
var ErrRefinementFailed = errors.New("refinement failed")

// Profile is a named combination of directive pillars. Immutable once
// loaded from configuration.
type Profile struct {
	Name        string
	Persona     string
	Style       string
	Translation string
}

// ComposeDirective builds the system prompt from a profile. Pure
// function of its inputs. languageName is the detected input language,
// "" when unknown; unless the profile requests translation, a
// language-preservation clause pins the output language.
func ComposeDirective(p Profile, languageName string) string {
	var b strings.Builder
	b.WriteString("You clean up dictated text. ")
	b.WriteString("Fix punctuation, capitalization and obvious speech recognition mistakes. ")
	b.WriteString("Do not add new content and do not answer questions contained in the text. ")
	b.WriteString("Return only the corrected text.")

	if p.Persona != "" {
		b.WriteString("\nVoice: ")
		b.WriteString(p.Persona)
	}
	if p.Style != "" {
		b.WriteString("\nStyle: ")
		b.WriteString(p.Style)
	}
	if p.Translation != "" {
		b.WriteString("\nTranslation: ")
		b.WriteString(p.Translation)
	} else if languageName != "" {
		fmt.Fprintf(&b, "\nThe input is %s. Respond in %s; never translate.", languageName, languageName)
	} else {
		b.WriteString("\nRespond in the same language as the input; never translate.")
	}
	return b.String()
}

// ResultCache is the subset of the cache used for refinement results.
type ResultCache interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Config holds refiner settings.
type Config struct {
	// Model is part of the cache key so switching models invalidates
	// cached results.
	Model string
	// Timeout bounds the completion call, default 10s.
	Timeout time.Duration
	// Cache is optional.
	Cache ResultCache
}

// Refiner runs transcripts through a Completer with timeout, caching
// and fall-back-to-original semantics.
type Refiner struct {
	completer Completer
	cfg       Config
}

// NewRefiner creates a refiner.
func NewRefiner(completer Completer, cfg Config) *Refiner {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Refiner{completer: completer, cfg: cfg}
}

// Refine returns the polished text. On any failure it returns the
// input text unchanged together with an error wrapping
// ErrRefinementFailed; the caller dispatches the text either way.
func (r *Refiner) Refine(ctx context.Context, text string, profile Profile, languageName string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return text, nil
	}

	directive := ComposeDirective(profile, languageName)
	key := cache.GenerateKey(r.cfg.Model, directive, text)

	if cached, ok := r.getCached(key); ok {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	messages := []Message{
		{Role: "system", Content: directive},
		{Role: "user", Content: text},
	}

	result, usage, err := r.completer.Complete(ctx, messages)
	if err != nil {
		return text, fmt.Errorf("%w: %v", ErrRefinementFailed, err)
	}

	result = cleanResponse(result)
	if result == "" {
		return text, fmt.Errorf("%w: empty completion", ErrRefinementFailed)
	}

	slog.Debug("refined transcript", "tokens", usage.TotalTokens, "profile", profile.Name)
	r.setCached(key, result)
	return result, nil
}

// getCached is best effort; cache trouble never affects the pipeline.
func (r *Refiner) getCached(key string) (string, bool) {
	if r.cfg.Cache == nil {
		return "", false
	}
	value, err := r.cfg.Cache.Get(key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			slog.Warn("refine cache get", "error", err)
		}
		return "", false
	}
	return value, true
}

func (r *Refiner) setCached(key, value string) {
	if r.cfg.Cache == nil {
		return
	}
	if err := r.cfg.Cache.Set(key, value); err != nil {
		slog.Warn("refine cache set", "error", err)
	}
}

// cleanResponse trims whitespace and the wrapping quotes some models
// add around short answers.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}
