package audiocapture

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var initOnce sync.Once

// Initialize brings up the host audio API. Call once at startup; pair
// with Terminate on shutdown.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		err = portaudio.Initialize()
	})
	return err
}

// Terminate releases the host audio API.
func Terminate() error {
	return portaudio.Terminate()
}

type paStream struct {
	s *portaudio.Stream
}

func (p *paStream) start() error { return p.s.Start() }

func (p *paStream) stop() error {
	if err := p.s.Stop(); err != nil {
		p.s.Close()
		return err
	}
	return p.s.Close()
}

// openStream opens a mono input stream. The preferred device is tried
// with shared low-latency parameters first; any rejection falls back to
// the default stream settings. Only a double failure surfaces as
// ErrDeviceUnavailable.
func openStream(cfg Config, cb func(samples []float32)) (stream, error) {
	callback := func(in []float32) { cb(in) }

	if cfg.Device != "" {
		if s, err := openPreferred(cfg, callback); err == nil {
			return &paStream{s: s}, nil
		} else {
			slog.Warn("preferred device rejected, falling back to default",
				"device", cfg.Device, "error", err)
		}
	}

	s, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FrameSize, callback)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return &paStream{s: s}, nil
}

func openPreferred(cfg Config, callback func(in []float32)) (*portaudio.Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var dev *portaudio.DeviceInfo
	want := strings.ToLower(cfg.Device)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			dev = d
			break
		}
	}
	if dev == nil {
		return nil, fmt.Errorf("no input device matching %q", cfg.Device)
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FrameSize

	s, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("open stream on %q: %w", dev.Name, err)
	}
	return s, nil
}
