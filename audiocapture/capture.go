// Package audiocapture provides supervised microphone capture.
//
// Frames flow from the device callback to the session controller over a
// bounded channel; the callback never blocks. A watchdog restarts the
// stream when frame delivery stalls.
package audiocapture

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyCapturing is returned when starting an active capture.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// ErrDeviceUnavailable is returned when no input stream could be opened,
// not even with default settings.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Frame is one fixed-size chunk of mono samples. Ownership transfers to
// the receiver; the samples slice is never reused by the capture side.
type Frame struct {
	Seq     uint64
	Samples []float32
	At      time.Time
}

// Config holds capture configuration.
type Config struct {
	// Device is a substring of the preferred input device name.
	// Empty selects the system default.
	Device     string
	SampleRate int
	FrameSize  int
	// Gain is a linear multiplier applied to every sample, with
	// clipping at [-1, 1].
	Gain float64
	// ChannelDepth is the frame channel capacity. Frames are dropped,
	// not blocked on, when the consumer falls behind.
	ChannelDepth int
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		FrameSize:    1024,
		Gain:         1.0,
		ChannelDepth: 64,
	}
}

// stream is one open device stream.
type stream interface {
	start() error
	stop() error
}

// opener opens a stream delivering sample chunks to cb.
type opener func(cfg Config, cb func(samples []float32)) (stream, error)

// Capture owns the device stream lifecycle.
type Capture struct {
	cfg  Config
	open opener

	mu        sync.Mutex
	stream    stream
	capturing bool

	seq       atomic.Uint64
	heartbeat atomic.Int64  // last frame arrival, unix nanos
	level     atomic.Uint32 // recent RMS, float32 bits
	dropped   atomic.Uint64

	frames chan Frame
}

// New creates a capture backed by the platform audio stack.
func New(cfg Config) *Capture {
	return newCapture(cfg, openStream)
}

func newCapture(cfg Config, open opener) *Capture {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = 1024
	}
	if cfg.Gain == 0 {
		cfg.Gain = 1.0
	}
	if cfg.ChannelDepth == 0 {
		cfg.ChannelDepth = 64
	}
	return &Capture{
		cfg:    cfg,
		open:   open,
		frames: make(chan Frame, cfg.ChannelDepth),
	}
}

// Frames returns the frame stream. Exactly one consumer is expected.
func (c *Capture) Frames() <-chan Frame {
	return c.frames
}

// Start opens and starts the input stream.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return ErrAlreadyCapturing
	}

	s, err := c.open(c.cfg, c.handleSamples)
	if err != nil {
		return err
	}
	if err := s.start(); err != nil {
		return err
	}

	c.stream = s
	c.capturing = true
	c.heartbeat.Store(time.Now().UnixNano())
	return nil
}

// Stop stops the stream. Safe to call when not capturing.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Capture) stopLocked() error {
	if !c.capturing {
		return nil
	}
	c.capturing = false
	if c.stream == nil {
		return nil
	}
	err := c.stream.stop()
	c.stream = nil
	return err
}

// Restart tears the stream down and reopens it. Used by the watchdog
// after a stall. On reopen failure the capture stays expected-active so
// the watchdog keeps retrying.
func (c *Capture) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return nil
	}
	if c.stream != nil {
		if err := c.stream.stop(); err != nil {
			slog.Warn("stop stalled stream", "error", err)
		}
		c.stream = nil
	}

	s, err := c.open(c.cfg, c.handleSamples)
	if err != nil {
		return err
	}
	if err := s.start(); err != nil {
		return err
	}
	c.stream = s
	c.heartbeat.Store(time.Now().UnixNano())
	return nil
}

// IsCapturing reports whether a stream is active.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Heartbeat returns the arrival time of the most recent frame.
func (c *Capture) Heartbeat() time.Time {
	return time.Unix(0, c.heartbeat.Load())
}

// Level returns the RMS level of the most recent frame in [0, 1].
func (c *Capture) Level() float64 {
	return float64(math.Float32frombits(c.level.Load()))
}

// Dropped returns the count of frames discarded because the consumer
// fell behind.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// SampleRate returns the configured sample rate.
func (c *Capture) SampleRate() int {
	return c.cfg.SampleRate
}

// handleSamples runs on the device callback context. It must not block
// and must not take c.mu.
func (c *Capture) handleSamples(samples []float32) {
	now := time.Now()
	c.heartbeat.Store(now.UnixNano())

	out := make([]float32, len(samples))
	var sum float64
	for i, s := range samples {
		v := float32(float64(s) * c.cfg.Gain)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
		sum += float64(v) * float64(v)
	}
	if len(out) > 0 {
		c.level.Store(math.Float32bits(float32(math.Sqrt(sum / float64(len(out))))))
	}

	frame := Frame{
		Seq:     c.seq.Add(1),
		Samples: out,
		At:      now,
	}
	select {
	case c.frames <- frame:
	default:
		c.dropped.Add(1)
	}
}
