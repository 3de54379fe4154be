// ABOUTME: Entry point for the autodec stream router
// ABOUTME: Parses CLI flags, sets up logging/TUI, and starts the loop
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spdif-tools/autodec-go/internal/app"
	"github.com/spdif-tools/autodec-go/internal/router"
	"github.com/spdif-tools/autodec-go/internal/ui"
	"github.com/spdif-tools/autodec-go/pkg/audio"
)

const (
	defaultChunkFrames = 2048
	defaultDetWindow   = 64
)

var (
	sourceName = flag.String("source", "", "Capture device name (ignored if -stdin is set; empty = default device)")
	stdinPath  = flag.String("stdin", "", "Read input from this file/FIFO instead of a capture device")
	sinkName   = flag.String("sink", "", "Playback device name (if no -fifo-out-* is set; empty = default device)")
	engine     = flag.String("engine", "malgo", "Playback engine: malgo or oto")

	inFormat   = flag.String("in-format", "s16le", "Input sample format")
	inRate     = flag.Int("in-rate", 48000, "Input sample rate")
	inChannels = flag.Int("in-channels", 2, "Input channel count")

	fifoOutPCM    = flag.String("fifo-out-pcm", "", "Write passthrough PCM to this file/FIFO in PCM mode")
	outPCMFormat  = flag.String("out-pcm-format", "s16le", "PCM output sample format")
	outPCMRate    = flag.Int("out-pcm-rate", 48000, "PCM output sample rate")
	outPCMChannel = flag.Int("out-pcm-channels", 2, "PCM output channel count")

	fifoOutDecoded    = flag.String("fifo-out-decoded", "", "Write decoded multichannel PCM to this file/FIFO in compressed mode")
	outDecodedFormat  = flag.String("out-decoded-format", "f32le", "Decoded output sample format")
	outDecodedRate    = flag.Int("out-decoded-rate", 48000, "Decoded output sample rate")
	outDecodedChannel = flag.Int("out-decoded-channels", 6, "Decoded output channel count")

	chunkFrames = flag.Int("chunk-frames", defaultChunkFrames, "Frames read per loop iteration")
	detWindow   = flag.Int("det-window", defaultDetWindow, "Chunks without an IEC 61937 preamble before reverting to PCM")

	decoderPath = flag.String("decoder", "ffmpeg", "External decoder binary")
	recordWAV   = flag.String("record-wav", "", "Record decoded audio to this WAV file (integer formats only)")

	logFile    = flag.String("log-file", "autodec.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	useTUI := !(*noTUI || *streamLogs)

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		multiWriter := io.MultiWriter(os.Stdout, f)
		log.SetOutput(multiWriter)
	}

	if *sourceName != "" && *stdinPath != "" {
		log.Fatalf("-source and -stdin are mutually exclusive")
	}

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// TUI setup
	var tuiProg *tea.Program
	if useTUI {
		tuiProg, err = ui.Run()
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
	}

	sourceDesc := *stdinPath
	if sourceDesc == "" {
		if *sourceName != "" {
			sourceDesc = *sourceName
		} else {
			sourceDesc = "default capture device"
		}
	}

	if tuiProg != nil {
		prog := tuiProg
		window := cfg.DetWindow
		inSpec := cfg.InputSpec.String()
		cfg.OnStatus = func(st router.Status) {
			msg := ui.StatusMsg{
				SourceName:       sourceDesc,
				InputSpec:        inSpec,
				Mode:             st.Mode.String(),
				MissStreak:       st.MissStreak,
				DetWindow:        window,
				Chunks:           st.Chunks,
				PCMChunks:        st.PCMChunks,
				CompressedChunks: st.CompressedChunks,
				Sessions:         st.Sessions,
			}
			if st.LastPreamble != nil {
				msg.StreamType = st.LastPreamble.StreamType.String()
				if n, ok := st.LastPreamble.PayloadBytes(); ok {
					msg.PayloadBytes = n
				}
			}
			prog.Send(msg)
		}
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}

	log.Printf("Starting autodec: source=%s chunk_frames=%d det_window=%d",
		sourceDesc, cfg.ChunkFrames, cfg.DetWindow)

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down", sig)
		a.Stop()
		if tuiProg != nil {
			tuiProg.Quit()
		}
	}()

	if tuiProg != nil {
		// The TUI owns the terminal; quitting it (q key) stops the loop.
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			a.Stop()
		}()
	}

	if err := a.Run(); err != nil {
		if tuiProg != nil {
			tuiProg.Quit()
		}
		log.Fatalf("Fatal: %v", err)
	}
	if tuiProg != nil {
		tuiProg.Quit()
	}
}

// buildConfig resolves flags into an app configuration.
func buildConfig() (app.Config, error) {
	inF, err := audio.ParseFormat(*inFormat)
	if err != nil {
		return app.Config{}, err
	}
	pcmF, err := audio.ParseFormat(*outPCMFormat)
	if err != nil {
		return app.Config{}, err
	}
	decF, err := audio.ParseFormat(*outDecodedFormat)
	if err != nil {
		return app.Config{}, err
	}

	return app.Config{
		SourceName:     *sourceName,
		StdinPath:      *stdinPath,
		InputSpec:      audio.SampleSpec{Format: inF, Rate: *inRate, Channels: *inChannels},
		SinkName:       *sinkName,
		Engine:         *engine,
		FifoOutPCM:     *fifoOutPCM,
		PCMSpec:        audio.SampleSpec{Format: pcmF, Rate: *outPCMRate, Channels: *outPCMChannel},
		FifoOutDecoded: *fifoOutDecoded,
		DecodedSpec:    audio.SampleSpec{Format: decF, Rate: *outDecodedRate, Channels: *outDecodedChannel},
		ChunkFrames:    *chunkFrames,
		DetWindow:      *detWindow,
		DecoderPath:    *decoderPath,
		RecordWAV:      *recordWAV,
	}, nil
}
