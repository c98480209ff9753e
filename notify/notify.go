// Package notify sends desktop notifications for session events.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

const title = "hushtype"

// Notifier sends desktop notifications. The zero value is disabled.
type Notifier struct {
	enabled bool
}

// New creates a notifier. When enabled is false all methods are no-ops.
func New(enabled bool) *Notifier {
	return &Notifier{enabled: enabled}
}

func (n *Notifier) send(message string) {
	if !n.enabled {
		return
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		slog.Debug("desktop notification", "error", err)
	}
}

// RecordingStarted announces that the microphone is live.
func (n *Notifier) RecordingStarted() {
	n.send("Recording...")
}

// Delivered announces successful dictation with a short preview.
func (n *Notifier) Delivered(text string) {
	n.send(preview(text))
}

// preview truncates on a rune boundary so multibyte text stays valid.
func preview(text string) string {
	const max = 80
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// Failed announces a user-visible failure.
func (n *Notifier) Failed(message string) {
	n.send(message)
}
