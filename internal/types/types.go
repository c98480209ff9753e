// Package types defines value types shared across package boundaries.
package types

// PipelineState describes where the pipeline currently is in the
// dictation lifecycle. Exactly one session may be in a non-idle state.
type PipelineState string

const (
	StateIdle         PipelineState = "idle"
	StateArming       PipelineState = "arming"
	StateRecording    PipelineState = "recording"
	StateStopping     PipelineState = "stopping"
	StateTranscribing PipelineState = "transcribing"
	StateRefining     PipelineState = "refining"
	StateDispatching  PipelineState = "dispatching"
	StateError        PipelineState = "error"
)

// SessionMode describes how a recording session was started.
type SessionMode string

const (
	// ModeHold is push-to-talk: recording lasts while the key is held.
	ModeHold SessionMode = "hold"
	// ModeLatched is toggle: a tap starts recording, a second tap stops it.
	ModeLatched SessionMode = "latched"
)

// OutputMode selects how final text reaches the focused application.
type OutputMode string

const (
	OutputType      OutputMode = "type"      // per-character key injection
	OutputClipboard OutputMode = "clipboard" // clipboard paste with restore
	OutputBoth      OutputMode = "both"      // inject and leave text on clipboard
)

// PipelineStatus is the snapshot mirrored to the shared state store.
// It is always copied by value; no component holds a shared reference.
type PipelineStatus struct {
	State PipelineState `json:"state"`
	// Volume is the recent RMS microphone level in [0, 1].
	Volume float64 `json:"volume"`
	// Error carries the most recent user-visible failure, empty when healthy.
	Error string `json:"error,omitempty"`
	// Text holds the last transcription so it stays recoverable when
	// dispatch fails.
	Text string `json:"text,omitempty"`
	// Command is a request written by the status surface and consumed by
	// the pipeline, e.g. CommandToggleRecord.
	Command string `json:"command,omitempty"`
}

// CommandToggleRecord asks the pipeline to behave as if the record key
// had been tapped. Written by the status surface, cleared once consumed.
const CommandToggleRecord = "toggle_record"

// Usage reports token consumption of a language model call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
