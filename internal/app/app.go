// ABOUTME: Application wiring for the autodetect/decode loop
// ABOUTME: Builds source, sinks, and router from configuration and runs them
package app

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/spdif-tools/autodec-go/internal/bridge"
	"github.com/spdif-tools/autodec-go/internal/router"
	"github.com/spdif-tools/autodec-go/internal/sink"
	"github.com/spdif-tools/autodec-go/internal/source"
	"github.com/spdif-tools/autodec-go/pkg/audio"
)

// Config is the fully-resolved runtime configuration. Defaults live in the
// flag definitions, not here.
type Config struct {
	// Capture side: StdinPath selects a file/FIFO; otherwise SourceName
	// selects a capture device ("" = default).
	SourceName string
	StdinPath  string
	InputSpec  audio.SampleSpec

	// Playback side.
	SinkName string
	Engine   string // "malgo" or "oto"

	// Optional file/FIFO destinations per mode.
	FifoOutPCM     string
	PCMSpec        audio.SampleSpec
	FifoOutDecoded string
	DecodedSpec    audio.SampleSpec

	ChunkFrames int
	DetWindow   int

	DecoderPath string
	RecordWAV   string

	// OnStatus, when set, receives a snapshot after every chunk.
	OnStatus func(router.Status)
}

// App runs the single-threaded read/classify/route loop.
type App struct {
	cfg      Config
	src      source.Source
	rtr      *router.Router
	stopping atomic.Bool
}

// New validates cfg, opens the capture source, and builds the router. Sink
// construction is deferred to mode transitions.
func New(cfg Config) (*App, error) {
	if err := cfg.InputSpec.Validate(); err != nil {
		return nil, fmt.Errorf("input spec: %w", err)
	}
	if err := cfg.PCMSpec.Validate(); err != nil {
		return nil, fmt.Errorf("pcm output spec: %w", err)
	}
	if err := cfg.DecodedSpec.Validate(); err != nil {
		return nil, fmt.Errorf("decoded output spec: %w", err)
	}
	if cfg.ChunkFrames <= 0 {
		return nil, fmt.Errorf("chunk frames must be positive, got %d", cfg.ChunkFrames)
	}
	switch cfg.Engine {
	case "", "malgo", "oto":
	default:
		return nil, fmt.Errorf("unknown playback engine %q (supported: malgo, oto)", cfg.Engine)
	}

	a := &App{cfg: cfg}

	var src source.Source
	var err error
	if cfg.StdinPath != "" {
		src, err = source.OpenFile(cfg.StdinPath, cfg.InputSpec, cfg.ChunkFrames)
	} else {
		src, err = source.OpenDevice(cfg.SourceName, cfg.InputSpec, cfg.ChunkFrames)
	}
	if err != nil {
		return nil, fmt.Errorf("opening capture source: %w", err)
	}
	a.src = src

	rtr, err := router.New(router.Config{
		DetWindow:   cfg.DetWindow,
		OpenPCMSink: a.openPCMSink,
		OpenSession: a.openSession,
		Observer:    cfg.OnStatus,
	})
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	a.rtr = rtr

	return a, nil
}

// Run drives the loop until Stop is called or a fatal error occurs.
func (a *App) Run() error {
	log.Printf("Running: input=%s chunk_frames=%d det_window=%d",
		a.cfg.InputSpec, a.cfg.ChunkFrames, a.cfg.DetWindow)

	for {
		chunk, err := a.src.ReadChunk()
		if err != nil {
			if a.stopping.Load() {
				return a.rtr.Close()
			}
			_ = a.rtr.Close()
			return fmt.Errorf("capture source: %w", err)
		}
		if err := a.rtr.HandleChunk(chunk); err != nil {
			_ = a.rtr.Close()
			return err
		}
	}
}

// Stop shuts the capture source down, which unblocks Run and lets it wind
// down the router cleanly.
func (a *App) Stop() {
	a.stopping.Store(true)
	_ = a.src.Close()
}

// openPCMSink opens the passthrough destination for PCM mode.
func (a *App) openPCMSink() (sink.Sink, error) {
	if a.cfg.FifoOutPCM != "" {
		return sink.OpenFile(a.cfg.FifoOutPCM, a.cfg.PCMSpec)
	}
	return a.openPlayback(a.cfg.PCMSpec)
}

// openSession builds (or reuses) the decoded-audio destination and wraps
// it in a decoder bridge.
func (a *App) openSession(recovered sink.Sink) (router.Session, error) {
	dest := recovered
	if dest == nil {
		var err error
		if a.cfg.FifoOutDecoded != "" {
			dest, err = sink.OpenFile(a.cfg.FifoOutDecoded, a.cfg.DecodedSpec)
		} else {
			dest, err = a.openPlayback(a.cfg.DecodedSpec)
		}
		if err != nil {
			return nil, err
		}
		if a.cfg.RecordWAV != "" {
			dest, err = sink.NewWAVTee(dest, a.cfg.RecordWAV)
			if err != nil {
				return nil, err
			}
		}
	}
	return bridge.Open(dest, bridge.Config{DecoderPath: a.cfg.DecoderPath})
}

// openPlayback opens a device sink on the configured engine.
func (a *App) openPlayback(spec audio.SampleSpec) (sink.Sink, error) {
	if a.cfg.Engine == "oto" {
		return sink.OpenOto(spec)
	}
	return sink.OpenDevice(a.cfg.SinkName, spec)
}
