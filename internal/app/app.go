// Package app wires the dictation pipeline together and supervises its
// long-lived goroutines.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hushtype/hushtype/asr"
	"github.com/hushtype/hushtype/audiocapture"
	"github.com/hushtype/hushtype/cache"
	"github.com/hushtype/hushtype/clipboard"
	"github.com/hushtype/hushtype/config"
	"github.com/hushtype/hushtype/hotkey"
	"github.com/hushtype/hushtype/internal/types"
	"github.com/hushtype/hushtype/langdetect"
	"github.com/hushtype/hushtype/notify"
	"github.com/hushtype/hushtype/output"
	"github.com/hushtype/hushtype/refine"
	"github.com/hushtype/hushtype/session"
	"github.com/hushtype/hushtype/statestore"
	"github.com/hushtype/hushtype/textproc"
)

const cacheTTL = 30 * 24 * time.Hour

// App owns the assembled pipeline.
type App struct {
	mu  sync.RWMutex
	cfg *config.Config

	latch      *hotkey.Latch
	listener   *hotkey.Listener
	capture    *audiocapture.Capture
	watchdog   *audiocapture.Watchdog
	controller *session.Controller
	publisher  *statestore.Publisher
	dispatcher *dispatchProxy
	cache      *cache.Cache
}

// New assembles the pipeline from the startup configuration. The app
// keeps its own copy so caller-side edits cannot race a session.
func New(cfg *config.Config) (*App, error) {
	cfg = cfg.Clone()
	a := &App{cfg: cfg}

	a.latch = hotkey.NewLatch(cfg.Hotkey.TapThreshold())
	listener, err := hotkey.NewListener(a.latch, cfg.Hotkey.RecordKeyName(), cfg.Hotkey.PauseKeyName())
	if err != nil {
		return nil, err
	}
	a.listener = listener

	a.capture = audiocapture.New(audiocapture.Config{
		Device:     cfg.Audio.Device,
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		Gain:       cfg.Audio.Gain,
	})
	a.watchdog = audiocapture.NewWatchdog(a.capture, cfg.Audio.StallTimeout(), cfg.Audio.WatchdogRetries)

	transcriber := asr.NewWhisper(asr.WhisperConfig{
		APIKey:  cfg.ASR.APIKey,
		BaseURL: cfg.ASR.Endpoint,
		Model:   cfg.ASR.Model,
		Decode: asr.DecodingParams{
			BeamSize:                cfg.ASR.Decode.BeamSize,
			BestOf:                  cfg.ASR.Decode.BestOf,
			ConditionOnPreviousText: cfg.ASR.Decode.ConditionOnPreviousText,
			VADFilter:               cfg.ASR.Decode.VADFilter,
			MinSilenceDurationMS:    cfg.ASR.Decode.MinSilenceDurationMS,
			MaxSpeechDurationSec:    cfg.ASR.Decode.MaxSpeechDurationSec,
		},
		Timeout:    cfg.ASR.Timeout(),
		MaxRetries: cfg.ASR.MaxRetries,
		RetryDelay: cfg.ASR.RetryDelay(),
	})

	refiner := a.setupRefiner(cfg)

	injector, err := output.NewInjector()
	if err != nil {
		return nil, err
	}
	board := clipboard.New()
	a.dispatcher = &dispatchProxy{}
	a.dispatcher.set(newDispatcher(cfg, injector, board))
	a.dispatcher.injector = injector
	a.dispatcher.board = board

	var archive *session.Archive
	if cfg.Archive.Dir != "" {
		archive, err = session.NewArchive(cfg.Archive.Dir, cfg.Archive.KeepAudio)
		if err != nil {
			return nil, err
		}
	}

	a.controller = session.NewController(a.sessionConfig, session.Deps{
		Capture:     a.capture,
		Transcriber: transcriber,
		Refiner:     refiner,
		Dispatcher:  a.dispatcher,
		Formatter:   a.formatter(cfg),
		Language:    langdetect.New(),
		Notifier:    notify.New(cfg.Notifications),
		Archive:     archive,
		Commands:    a.latch.Commands(),
		Frames:      a.capture.Frames(),
	})
	a.controller.OnSessionEnd = a.latch.SessionEnded

	statePath, err := cfg.StatePath()
	if err != nil {
		return nil, err
	}
	store, err := statestore.NewFileStore(statePath)
	if err != nil {
		return nil, err
	}
	a.publisher = statestore.NewPublisher(store, 200*time.Millisecond)
	a.publisher.Source = a.controller.Status().Snapshot
	a.publisher.OnCommand = func(cmd string) {
		if cmd == types.CommandToggleRecord {
			a.latch.InjectTap()
		}
	}

	return a, nil
}

func (a *App) setupRefiner(cfg *config.Config) session.Refiner {
	if !cfg.Refine.Enabled {
		return nil
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		cachePath := filepath.Join(configDir, "hushtype", "cache")
		c, err := cache.Open(cachePath, cacheTTL)
		if err != nil {
			slog.Warn("open refine cache", "error", err)
		} else {
			a.cache = c
		}
	}

	completer := refine.NewCompleter(cfg.Refine.Type, cfg.Refine.APIKey, cfg.Refine.BaseURL, cfg.Refine.Model)
	rcfg := refine.Config{
		Model:   cfg.Refine.Model,
		Timeout: cfg.Refine.Timeout(),
	}
	if a.cache != nil {
		rcfg.Cache = a.cache
	}
	return refine.NewRefiner(completer, rcfg)
}

func (a *App) formatter(cfg *config.Config) session.Formatter {
	if !cfg.Output.Format {
		return nil
	}
	return textproc.NewFormatter()
}

// sessionConfig snapshots the live configuration for the next session.
func (a *App) sessionConfig() session.Config {
	a.mu.RLock()
	cfg := a.cfg
	a.mu.RUnlock()

	sc := session.Config{
		MinDuration:       cfg.Audio.MinDuration(),
		NoiseThreshold:    float32(cfg.Audio.NoiseThreshold),
		TrimThreshold:     float32(cfg.Audio.NoiseThreshold),
		MaxSpeechDuration: time.Duration(cfg.ASR.Decode.MaxSpeechDurationSec) * time.Second,
		SilenceTimeout:    cfg.Audio.SilenceStop(),
		Language:          cfg.ASR.Language,
		Prompt:            cfg.ASR.InitialPrompt,
		RefineEnabled:     cfg.Refine.Enabled,
	}
	if p := cfg.ActiveRefineProfile(); p != nil {
		sc.Profile = refine.Profile{
			Name:        p.Name,
			Persona:     p.Persona,
			Style:       p.Style,
			Translation: p.Translation,
		}
	}
	return sc
}

// applyConfig installs a reloaded configuration. It affects the next
// session and the next dispatch, never the one in flight.
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.dispatcher.set(newDispatcher(cfg, a.dispatcher.injector, a.dispatcher.board))
}

// Run starts all pipeline goroutines and blocks until ctx is done or a
// fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if err := audiocapture.Initialize(); err != nil {
		return err
	}
	defer audiocapture.Terminate()
	defer a.close()

	status := a.controller.Status()
	a.watchdog.OnTransient = func(err error) {
		if err != nil {
			status.SetError("microphone stalled, reconnecting")
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.listener.Run(ctx) })
	g.Go(func() error { return a.controller.Run(ctx) })
	g.Go(func() error { return a.publisher.Run(ctx) })
	g.Go(func() error {
		err := a.watchdog.Run(ctx)
		if errors.Is(err, audiocapture.ErrWatchdogGaveUp) {
			status.SetError("microphone lost: " + err.Error())
		}
		return err
	})
	g.Go(func() error {
		path, err := config.Path()
		if err != nil {
			return err
		}
		return config.Watch(ctx, path, a.applyConfig)
	})

	err := g.Wait()
	// The group cancels the publisher along with everything else, so a
	// terminal error set moments before shutdown may not have hit its
	// next poll yet. One last write makes it visible to the surface.
	a.publisher.Flush()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Error("close cache", "error", err)
		}
	}
}

func newDispatcher(cfg *config.Config, injector output.Injector, board clipboard.Board) *output.Dispatcher {
	return output.NewDispatcher(output.Config{
		Mode:        types.OutputMode(cfg.Output.Mode),
		CharDelay:   cfg.Output.CharDelay(),
		PasteSettle: cfg.Output.PasteSettle(),
	}, injector, board)
}

// dispatchProxy lets a config reload swap the dispatcher between
// dispatches without the controller noticing.
type dispatchProxy struct {
	mu       sync.RWMutex
	d        *output.Dispatcher
	injector output.Injector
	board    clipboard.Board
}

func (p *dispatchProxy) set(d *output.Dispatcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.d = d
}

func (p *dispatchProxy) Dispatch(text string) error {
	p.mu.RLock()
	d := p.d
	p.mu.RUnlock()
	return d.Dispatch(text)
}
