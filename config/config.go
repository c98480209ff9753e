// Package config handles application configuration.
//
// Configuration lives in a single JSON file under the user config
// directory. The running pipeline never reads the file directly: it takes
// an immutable Snapshot when a session starts, so live edits only apply
// to the next session.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	appName        = "hushtype"
	configFileName = "config.json"
)

// Config represents the application configuration.
type Config struct {
	Hotkey  HotkeyConfig  `json:"hotkey"`
	Audio   AudioConfig   `json:"audio"`
	ASR     ASRConfig     `json:"asr"`
	Refine  RefineConfig  `json:"refine"`
	Output  OutputConfig  `json:"output"`
	Archive ArchiveConfig `json:"archive"`

	// StateFile overrides the shared state file location used by the
	// floating status surface. Empty means the default next to the config.
	StateFile string `json:"state_file,omitempty"`

	// Notifications enables desktop notifications on session events.
	Notifications bool `json:"notifications"`
}

// HotkeyConfig configures the Smart Latch gesture classifier.
type HotkeyConfig struct {
	// RecordKey is the key name that arms and stops dictation, e.g. "f15".
	RecordKey string `json:"record_key"`
	// PauseKey toggles suppression of new sessions, e.g. "f16".
	PauseKey string `json:"pause_key"`
	// TapThresholdMS separates a tap (latched toggle) from a hold
	// (push-to-talk). Presses shorter than this are taps.
	TapThresholdMS int `json:"tap_threshold_ms"`
}

// AudioConfig configures capture and buffer finalization.
type AudioConfig struct {
	// Device is a substring of the preferred input device name.
	// Empty selects the system default.
	Device     string `json:"device,omitempty"`
	SampleRate int    `json:"sample_rate"`
	// FrameSize is the number of samples per delivered frame.
	FrameSize int `json:"frame_size"`
	// Gain is a linear multiplier applied to captured samples.
	Gain float64 `json:"gain"`
	// NoiseThreshold discards finalized buffers whose peak amplitude
	// never exceeds it.
	NoiseThreshold float64 `json:"noise_threshold"`
	// MinDurationMS discards finalized buffers shorter than this,
	// filtering accidental taps.
	MinDurationMS int `json:"min_duration_ms"`
	// SilenceStopMS auto-finalizes a latched session once speech has
	// ended and this much silence has passed. Zero disables; latched
	// sessions then end only on the second tap.
	SilenceStopMS int `json:"silence_stop_ms"`
	// StallTimeoutMS is how long the watchdog waits without a frame
	// before restarting the stream.
	StallTimeoutMS int `json:"stall_timeout_ms"`
	// WatchdogRetries bounds consecutive stream restarts before the
	// watchdog escalates to a fatal error.
	WatchdogRetries int `json:"watchdog_retries"`
}

// ASRConfig configures the transcription boundary.
type ASRConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	// Language is a hint passed to the engine; empty means auto-detect.
	Language string `json:"language,omitempty"`
	// InitialPrompt is a vocabulary hint for the decoder.
	InitialPrompt string         `json:"initial_prompt,omitempty"`
	Decode        DecodingConfig `json:"decode"`

	TimeoutSec     int     `json:"timeout_sec"`
	MaxRetries     int     `json:"max_retries"`
	RetryBaseDelay float64 `json:"retry_base_delay_sec"`
}

// DecodingConfig carries decoder search and segmentation parameters.
type DecodingConfig struct {
	BeamSize                int  `json:"beam_size"`
	BestOf                  int  `json:"best_of"`
	ConditionOnPreviousText bool `json:"condition_on_previous_text"`
	VADFilter               bool `json:"vad_filter"`
	MinSilenceDurationMS    int  `json:"min_silence_duration_ms"`
	MaxSpeechDurationSec    int  `json:"max_speech_duration_sec"`
}

// RefineConfig configures the optional language-polishing call.
type RefineConfig struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type"` // "openai", "openai-compatible", "claude"
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`

	TimeoutSec int `json:"timeout_sec"`

	// Profiles are the named persona/style/translation pillar sets.
	Profiles      []Profile `json:"profiles,omitempty"`
	ActiveProfile string    `json:"active_profile,omitempty"`
}

// Profile is a named combination of refinement directives. Immutable
// once loaded; composition into a prompt happens in the refine package.
type Profile struct {
	Name        string `json:"name"`
	Persona     string `json:"persona,omitempty"`
	Style       string `json:"style,omitempty"`
	Translation string `json:"translation,omitempty"`
}

// OutputConfig configures the dispatcher.
type OutputConfig struct {
	Mode string `json:"mode"` // "type", "clipboard", "both"
	// CharDelayMS is the pause between injected characters for targets
	// with slow input handling.
	CharDelayMS int `json:"char_delay_ms"`
	// PasteSettleMS is how long to wait after the paste chord before the
	// original clipboard is restored.
	PasteSettleMS int `json:"paste_settle_ms"`
	// Format enables transcript post-formatting (spacing, capitalization).
	Format bool `json:"format"`
}

// ArchiveConfig controls persistence of finalized sessions.
type ArchiveConfig struct {
	// Dir is where session WAV and transcript files are written.
	// Empty disables archiving.
	Dir string `json:"dir,omitempty"`
	// KeepAudio also stores the captured audio, not just the transcript.
	KeepAudio bool `json:"keep_audio"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Hotkey: HotkeyConfig{
			RecordKey:      "f15",
			PauseKey:       "f16",
			TapThresholdMS: 300,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FrameSize:       1024,
			Gain:            1.0,
			NoiseThreshold:  0.01,
			MinDurationMS:   500,
			StallTimeoutMS:  5000,
			WatchdogRetries: 5,
		},
		ASR: ASRConfig{
			Endpoint: "https://api.openai.com/v1/audio/transcriptions",
			Model:    "whisper-1",
			Decode: DecodingConfig{
				BeamSize:                5,
				BestOf:                  5,
				ConditionOnPreviousText: true,
				VADFilter:               true,
				MinSilenceDurationMS:    300,
				MaxSpeechDurationSec:    30,
			},
			TimeoutSec:     30,
			MaxRetries:     3,
			RetryBaseDelay: 0.5,
		},
		Refine: RefineConfig{
			Type:       "openai",
			Model:      "gpt-4o-mini",
			TimeoutSec: 10,
		},
		Output: OutputConfig{
			Mode:          string(defaultOutputMode),
			CharDelayMS:   5,
			PasteSettleMS: 150,
			Format:        true,
		},
		Notifications: true,
	}
}

const defaultOutputMode = "type"

// Load loads configuration from the config file.
// Returns the default config if the file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate verifies field values and returns an error for anything the
// pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Hotkey.RecordKey == "" {
		return fmt.Errorf("hotkey.record_key required")
	}
	if c.Hotkey.TapThresholdMS <= 0 {
		return fmt.Errorf("hotkey.tap_threshold_ms must be > 0")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("audio.frame_size must be > 0")
	}
	if c.Audio.StallTimeoutMS <= 0 {
		return fmt.Errorf("audio.stall_timeout_ms must be > 0")
	}
	switch c.Output.Mode {
	case "type", "clipboard", "both":
	default:
		return fmt.Errorf("output.mode: %q (allowed: type, clipboard, both)", c.Output.Mode)
	}
	switch c.Refine.Type {
	case "", "openai", "openai-compatible", "claude":
	default:
		return fmt.Errorf("refine.type: %q (allowed: openai, openai-compatible, claude)", c.Refine.Type)
	}
	if c.Refine.Type == "openai-compatible" && c.Refine.BaseURL == "" {
		return fmt.Errorf("refine.base_url required for openai-compatible")
	}
	return nil
}

// ActiveProfile returns the selected refinement profile, or nil when
// none is configured.
func (c *Config) ActiveRefineProfile() *Profile {
	name := c.Refine.ActiveProfile
	for i := range c.Refine.Profiles {
		if c.Refine.Profiles[i].Name == name {
			return &c.Refine.Profiles[i]
		}
	}
	if name == "" && len(c.Refine.Profiles) > 0 {
		return &c.Refine.Profiles[0]
	}
	return nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// StatePath returns the shared state file location used by the status
// surface, honoring the override when set.
func (c *Config) StatePath() (string, error) {
	if c.StateFile != "" {
		return c.StateFile, nil
	}
	path, err := Path()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), "state.json"), nil
}

// Duration accessors. The JSON surface keeps integer units matching the
// settings UI; the pipeline wants time.Duration.

func (h HotkeyConfig) TapThreshold() time.Duration {
	return time.Duration(h.TapThresholdMS) * time.Millisecond
}

func (a AudioConfig) MinDuration() time.Duration {
	return time.Duration(a.MinDurationMS) * time.Millisecond
}

func (a AudioConfig) SilenceStop() time.Duration {
	return time.Duration(a.SilenceStopMS) * time.Millisecond
}

func (a AudioConfig) StallTimeout() time.Duration {
	return time.Duration(a.StallTimeoutMS) * time.Millisecond
}

func (a ASRConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}

func (a ASRConfig) RetryDelay() time.Duration {
	return time.Duration(a.RetryBaseDelay * float64(time.Second))
}

func (r RefineConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

func (o OutputConfig) CharDelay() time.Duration {
	return time.Duration(o.CharDelayMS) * time.Millisecond
}

func (o OutputConfig) PasteSettle() time.Duration {
	return time.Duration(o.PasteSettleMS) * time.Millisecond
}

// Clone returns a deep copy, decoupling the caller's pointer from
// later edits to the original.
func (c *Config) Clone() *Config {
	out := *c
	out.Refine.Profiles = append([]Profile(nil), c.Refine.Profiles...)
	return &out
}

// normalizeKeyName lowercases and trims a configured key name so lookup
// tables match regardless of how the user wrote it.
func normalizeKeyName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RecordKeyName returns the normalized record key name.
func (h HotkeyConfig) RecordKeyName() string { return normalizeKeyName(h.RecordKey) }

// PauseKeyName returns the normalized pause key name.
func (h HotkeyConfig) PauseKeyName() string { return normalizeKeyName(h.PauseKey) }
