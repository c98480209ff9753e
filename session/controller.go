// Package session owns the dictation pipeline state machine.
//
// The Controller is the sole mutator of session state. Hotkey commands
// and audio frames reach it over channels; everything downstream of a
// finalized buffer (transcription, refinement, dispatch) runs inline in
// its loop, which is acceptable because only one session exists at a
// time and the feeding contexts never block on it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hushtype/hushtype/asr"
	"github.com/hushtype/hushtype/audiocapture"
	"github.com/hushtype/hushtype/hotkey"
	"github.com/hushtype/hushtype/internal/types"
	"github.com/hushtype/hushtype/refine"
	"github.com/hushtype/hushtype/vad"
)

// armTimeout bounds how long a warmed-up device waits for START before
// the pre-roll is abandoned.
const armTimeout = 3 * time.Second

// CaptureDevice is the slice of the capture adapter the controller
// drives.
type CaptureDevice interface {
	Start() error
	Stop() error
	SampleRate() int
}

// Refiner polishes a transcript, falling back to the original text.
type Refiner interface {
	Refine(ctx context.Context, text string, profile refine.Profile, languageName string) (string, error)
}

// Dispatcher delivers final text.
type Dispatcher interface {
	Dispatch(text string) error
}

// Notifier surfaces session events to the desktop. All methods are
// fire-and-forget.
type Notifier interface {
	RecordingStarted()
	Delivered(text string)
	Failed(message string)
}

// LanguageNamer resolves text to a language code and display name.
type LanguageNamer interface {
	Detect(text string) string
	Name(text string) string
}

// Formatter post-processes a transcript.
type Formatter interface {
	Format(text, lang string) string
}

// Config holds the per-session pipeline settings. Treated as immutable
// for the lifetime of a session; live config edits swap the whole value
// between sessions.
type Config struct {
	// MinDuration discards finalized buffers shorter than this.
	MinDuration time.Duration
	// NoiseThreshold discards buffers whose peak never exceeds it.
	NoiseThreshold float32
	// TrimThreshold is the silence level for edge trimming, usually the
	// same as NoiseThreshold.
	TrimThreshold float32

	// Language is the transcription hint; empty means auto-detect.
	Language string
	// Prompt is the decoder vocabulary hint.
	Prompt string

	// MaxSpeechDuration force-finalizes a latched session once continuous
	// speech exceeds it. Zero disables.
	MaxSpeechDuration time.Duration
	// SilenceTimeout auto-finalizes a latched session after speech ends
	// and this much silence passes. Zero disables; the second tap is then
	// the only way out.
	SilenceTimeout time.Duration

	// RefineEnabled turns on the polishing step.
	RefineEnabled bool
	// Profile selects the refinement directive pillars.
	Profile refine.Profile
}

// session is the single live recording lifecycle.
type session struct {
	id        string
	mode      types.SessionMode
	startedAt time.Time
	buffer    []float32
	lastSeq   uint64
	// detector watches latched sessions for an utterance end; nil for
	// hold sessions, where the key governs the lifetime.
	detector *vad.Detector
}

// Controller runs the pipeline.
type Controller struct {
	cfg ConfigSource

	capture     CaptureDevice
	transcriber asr.Transcriber
	refiner     Refiner
	dispatcher  Dispatcher
	formatter   Formatter
	language    LanguageNamer
	notifier    Notifier
	archive     *Archive

	commands <-chan hotkey.Command
	frames   <-chan audiocapture.Frame

	// OnSessionEnd fires whenever the controller returns to idle, so
	// the gesture classifier can drop a stale latched belief.
	OnSessionEnd func()

	status *StatusBoard

	cur     *session
	active  Config
	armedAt time.Time
}

// ConfigSource returns the settings snapshot for the next session.
type ConfigSource func() Config

// Deps bundles the controller's collaborators.
type Deps struct {
	Capture     CaptureDevice
	Transcriber asr.Transcriber
	Refiner     Refiner
	Dispatcher  Dispatcher
	Formatter   Formatter
	Language    LanguageNamer
	Notifier    Notifier
	Archive     *Archive

	Commands <-chan hotkey.Command
	Frames   <-chan audiocapture.Frame
}

// NewController creates a controller. cfg is consulted once per session
// start.
func NewController(cfg ConfigSource, deps Deps) *Controller {
	return &Controller{
		cfg:         cfg,
		capture:     deps.Capture,
		transcriber: deps.Transcriber,
		refiner:     deps.Refiner,
		dispatcher:  deps.Dispatcher,
		formatter:   deps.Formatter,
		language:    deps.Language,
		notifier:    deps.Notifier,
		archive:     deps.Archive,
		commands:    deps.Commands,
		frames:      deps.Frames,
		status:      NewStatusBoard(),
	}
}

// Status returns the board the publisher reads snapshots from.
func (c *Controller) Status() *StatusBoard {
	return c.status
}

// Run processes commands and frames until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if c.cur != nil || c.status.State() == types.StateArming {
				c.capture.Stop()
			}
			return ctx.Err()
		case cmd, ok := <-c.commands:
			if !ok {
				return errors.New("command stream closed")
			}
			c.handleCommand(ctx, cmd)
		case frame, ok := <-c.frames:
			if !ok {
				return errors.New("frame stream closed")
			}
			c.handleFrame(ctx, frame)
		}
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd hotkey.Command) {
	switch cmd.Kind {
	case hotkey.CmdArm:
		c.arm()
	case hotkey.CmdStart:
		c.start(cmd.Mode)
	case hotkey.CmdStop:
		c.stop(ctx)
	case hotkey.CmdPauseToggle:
		// The classifier already turned a pause during recording into a
		// STOP ahead of this command.
		slog.Info("pause toggled")
	}
}

// arm warms the device up ahead of a likely START.
func (c *Controller) arm() {
	if c.status.State() != types.StateIdle {
		return
	}
	if err := c.capture.Start(); err != nil {
		// Pre-roll is opportunistic; START retries properly.
		slog.Debug("arm capture", "error", err)
		return
	}
	c.armedAt = time.Now()
	c.status.SetState(types.StateArming)
}

func (c *Controller) start(mode types.SessionMode) {
	switch c.status.State() {
	case types.StateIdle:
		if err := c.capture.Start(); err != nil {
			c.fail("microphone unavailable: " + err.Error())
			c.endSession()
			return
		}
	case types.StateArming:
		// Stream already warm.
	default:
		// Only one live session. Latched re-taps arrive as STOP; anything
		// else is rejected silently.
		slog.Debug("start ignored", "state", c.status.State())
		return
	}

	c.active = c.cfg()
	c.cur = &session{
		id:        uuid.NewString(),
		mode:      mode,
		startedAt: time.Now(),
	}
	if mode == types.ModeLatched {
		c.cur.detector = c.newDetector()
	}
	c.status.Begin()
	c.status.SetState(types.StateRecording)
	slog.Info("recording started", "session", c.cur.id, "mode", mode)
	if c.notifier != nil {
		c.notifier.RecordingStarted()
	}
}

func (c *Controller) stop(ctx context.Context) {
	switch c.status.State() {
	case types.StateArming:
		c.capture.Stop()
		c.status.SetState(types.StateIdle)
		c.endSession()
		return
	case types.StateRecording:
	default:
		return
	}

	c.status.SetState(types.StateStopping)
	if err := c.capture.Stop(); err != nil {
		slog.Warn("stop capture", "error", err)
	}
	c.drainFrames()

	s := c.cur
	c.cur = nil

	samples := s.buffer
	duration := sampleDuration(len(samples), c.capture.SampleRate())
	slog.Info("recording stopped", "session", s.id, "duration", duration)

	if duration < c.active.MinDuration {
		slog.Info("discarding short recording", "duration", duration)
		c.status.SetState(types.StateIdle)
		c.endSession()
		return
	}
	if peak := vad.Peak(samples); peak < c.active.NoiseThreshold {
		slog.Info("discarding silent recording", "peak", peak)
		c.status.SetState(types.StateIdle)
		c.endSession()
		return
	}

	trimWindow := c.capture.SampleRate() / 10
	trimmed := vad.TrimSilence(samples, c.active.TrimThreshold, trimWindow)
	if len(trimmed) == 0 {
		trimmed = samples
	}

	c.process(ctx, s, trimmed)
	c.endSession()
}

// process runs a finalized buffer through transcription, refinement and
// dispatch. Any terminal failure parks the pipeline back at idle; no
// path may leave it stuck.
func (c *Controller) process(ctx context.Context, s *session, samples []float32) {
	c.status.SetState(types.StateTranscribing)

	result, err := c.transcriber.Transcribe(ctx, asr.Request{
		Samples:    samples,
		SampleRate: c.capture.SampleRate(),
		Language:   c.active.Language,
		Prompt:     c.active.Prompt,
	})
	if err != nil {
		slog.Error("transcription", "session", s.id, "error", err)
		c.fail("transcription failed: " + err.Error())
		return
	}

	text := result.Text
	if text == "" {
		slog.Info("empty transcription", "session", s.id)
		c.status.SetState(types.StateIdle)
		return
	}

	var langCode, langName string
	if c.language != nil {
		langCode = c.language.Detect(text)
		langName = c.language.Name(text)
	}

	if c.active.RefineEnabled && c.refiner != nil {
		c.status.SetState(types.StateRefining)
		refined, err := c.refiner.Refine(ctx, text, c.active.Profile, langName)
		if err != nil {
			// Non-fatal: dispatch the raw transcript, flag the failure.
			slog.Warn("refinement", "session", s.id, "error", err)
			c.status.SetError("refinement failed, using raw transcript")
		}
		text = refined
	}

	if c.formatter != nil {
		text = c.formatter.Format(text, langCode)
	}

	if c.archive != nil {
		if err := c.archive.Save(s.id, samples, c.capture.SampleRate(), text); err != nil {
			slog.Warn("archive session", "session", s.id, "error", err)
		}
	}

	c.status.SetState(types.StateDispatching)
	c.status.SetText(text)
	if err := c.dispatcher.Dispatch(text); err != nil {
		slog.Error("dispatch", "session", s.id, "error", err)
		// Text stays in the status for manual recovery.
		c.fail("output failed: " + err.Error())
		if c.notifier != nil {
			c.notifier.Failed("output failed, text kept in status")
		}
		return
	}

	slog.Info("dispatched", "session", s.id, "chars", len(text))
	c.status.SetState(types.StateIdle)
	if c.notifier != nil {
		c.notifier.Delivered(text)
	}
}

// newDetector builds the utterance-end detector for a latched session,
// or nil when neither auto-finalize trigger is configured.
func (c *Controller) newDetector() *vad.Detector {
	maxSpeech := c.active.MaxSpeechDuration
	silence := c.active.SilenceTimeout
	if maxSpeech <= 0 && silence <= 0 {
		return nil
	}
	if maxSpeech <= 0 {
		maxSpeech = time.Hour
	}
	if silence <= 0 {
		silence = time.Hour
	}
	return vad.NewDetector(c.active.NoiseThreshold, c.active.MinDuration, maxSpeech, silence)
}

func (c *Controller) handleFrame(ctx context.Context, frame audiocapture.Frame) {
	switch c.status.State() {
	case types.StateRecording:
		s := c.cur
		if frame.Seq <= s.lastSeq {
			slog.Warn("out of order frame", "seq", frame.Seq, "last", s.lastSeq)
			return
		}
		s.lastSeq = frame.Seq
		s.buffer = append(s.buffer, frame.Samples...)
		if s.detector != nil {
			result := s.detector.Process(frame.Samples)
			c.status.SetVolume(float64(result.RMS))
			if result.Event == vad.EventSpeechEnd || result.Event == vad.EventSpeechMaxDuration {
				slog.Info("utterance complete, finalizing", "session", s.id, "speech", result.Duration)
				c.stop(ctx)
			}
			return
		}
		c.status.SetVolume(float64(vad.RMS(frame.Samples)))
	case types.StateArming:
		// Pre-roll frames are discarded. Abandon a stale warm-up.
		if time.Since(c.armedAt) > armTimeout {
			c.capture.Stop()
			c.status.SetState(types.StateIdle)
		}
	default:
		// Discarded; buffering happens only while recording.
	}
}

// drainFrames appends frames already in flight at STOP time.
func (c *Controller) drainFrames() {
	s := c.cur
	for {
		select {
		case frame := <-c.frames:
			if frame.Seq > s.lastSeq {
				s.lastSeq = frame.Seq
				s.buffer = append(s.buffer, frame.Samples...)
			}
		default:
			return
		}
	}
}

// fail reports a session-fatal error and returns to idle.
func (c *Controller) fail(message string) {
	c.status.SetState(types.StateError)
	c.status.SetError(message)
	c.status.SetState(types.StateIdle)
	c.cur = nil
}

func (c *Controller) endSession() {
	c.cur = nil
	if c.OnSessionEnd != nil {
		c.OnSessionEnd()
	}
}

func sampleDuration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / float64(rate) * float64(time.Second))
}
