// ABOUTME: Decoder bridge wrapping an external ffmpeg process as a sink
// ABOUTME: Pumps decoded output back to the wrapped sink frame-aligned
package bridge

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"

	"github.com/google/uuid"
	"github.com/spdif-tools/autodec-go/internal/sink"
	"github.com/spdif-tools/autodec-go/pkg/audio"
)

// Config controls how the external decoder is spawned.
type Config struct {
	// DecoderPath is the decoder binary; defaults to "ffmpeg".
	DecoderPath string
}

// pumpResult is the one-shot handoff from the pump goroutine back to
// Finish. The wrapped sink travels inside it, so no lock ever guards the
// sink: exactly one party holds it at any time.
type pumpResult struct {
	sink sink.Sink
	err  error
}

// Bridge makes an external decoding process look like a plain sink. Bytes
// written to it go to the process input; the pump goroutine forwards the
// process's decoded output to the wrapped sink with frame alignment
// restored.
type Bridge struct {
	id     string
	spec   audio.SampleSpec
	stdin  io.WriteCloser
	wait   func() error
	result chan pumpResult
}

// Open takes exclusive ownership of s, spawns the decoder configured to
// read an IEC 61937 stream and emit raw PCM matching s.Specs(), and starts
// the pump. The sink comes back through Finish.
func Open(s sink.Sink, cfg Config) (*Bridge, error) {
	spec := s.Specs()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("wrapped sink spec: %w", err)
	}

	bin := cfg.DecoderPath
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("decoder binary not found: %w", err)
	}

	cmd := exec.Command(path,
		"-hide_banner", "-loglevel", "warning",
		"-f", "spdif", "-i", "pipe:0",
		"-f", spec.Format.String(),
		"-ac", strconv.Itoa(spec.Channels),
		"-ar", strconv.Itoa(spec.Rate),
		"pipe:1",
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning decoder: %w", err)
	}

	b := start(s, stdin, stdout, cmd.Wait)
	log.Printf("Decoder session %s started: %s -> %s", b.id, path, spec)
	return b, nil
}

// start wires a bridge over already-open pipes. Split from Open so tests
// can stand in for the process.
func start(s sink.Sink, stdin io.WriteCloser, stdout io.Reader, wait func() error) *Bridge {
	b := &Bridge{
		id:     uuid.NewString()[:8],
		spec:   s.Specs(),
		stdin:  stdin,
		wait:   wait,
		result: make(chan pumpResult, 1),
	}
	go b.pump(s, stdout)
	return b
}

// Write forwards compressed bytes into the decoder's input. It blocks when
// the process input buffer is full; there is no internal buffering and no
// timeout.
func (b *Bridge) Write(p []byte) error {
	if _, err := b.stdin.Write(p); err != nil {
		return fmt.Errorf("write compressed stream to decoder: %w", err)
	}
	return nil
}

// Specs returns the spec of the decoded output, i.e. the wrapped sink's.
func (b *Bridge) Specs() audio.SampleSpec {
	return b.spec
}

// Finish closes the decoder's input, joins the pump, waits for the process
// to exit, and hands back the original wrapped sink for reuse.
func (b *Bridge) Finish() (sink.Sink, error) {
	// Closing stdin signals end-of-stream so the process can flush and
	// exit, which in turn ends the pump.
	_ = b.stdin.Close()

	res := <-b.result

	// The pump has drained stdout; only now is it safe to reap the
	// process.
	if err := b.wait(); err != nil {
		// A nonzero exit was still observed; log it and keep the sink.
		if _, ok := err.(*exec.ExitError); ok {
			log.Printf("Decoder session %s: process exited with error: %v", b.id, err)
		} else {
			return nil, fmt.Errorf("waiting for decoder exit: %w", err)
		}
	}

	if res.err != nil {
		return nil, fmt.Errorf("decoder pump: %w", res.err)
	}
	log.Printf("Decoder session %s finished", b.id)
	return res.sink, nil
}

// pump reads decoded bytes from the process output and republishes them
// through the wrapped sink, forwarding only whole frames and retaining the
// unaligned remainder. After a sink write failure it keeps draining the
// process so a full output pipe cannot deadlock the session.
func (b *Bridge) pump(s sink.Sink, r io.Reader) {
	var res pumpResult
	res.sink = s
	defer func() {
		if v := recover(); v != nil {
			res = pumpResult{sink: nil, err: fmt.Errorf("pump panicked: %v", v)}
		}
		if res.err != nil {
			// The process output was not drained to EOF. Close it so the
			// process hits a broken pipe and exits instead of blocking
			// Finish's wait on a full pipe.
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
		}
		b.result <- res
	}()

	frameBytes := b.spec.FrameBytes()
	buf := make([]byte, 64*1024)
	var stash []byte
	out := s // nil once forwarding is deactivated

	for {
		n, err := r.Read(buf)
		if n > 0 {
			stash = append(stash, buf[:n]...)
			aligned := len(stash) - len(stash)%frameBytes
			if aligned > 0 {
				if out != nil {
					if werr := out.Write(stash[:aligned]); werr != nil {
						log.Printf("Decoder session %s: sink write failed: %v; dropping decoded audio to keep decoder drained", b.id, werr)
						out = nil
					}
				}
				stash = append(stash[:0], stash[aligned:]...)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			res.err = fmt.Errorf("read decoder output: %w", err)
			return
		}
	}

	// Flush a sub-frame tail by padding it to a frame boundary; the
	// session is ending, so a failure here is ignored.
	if len(stash) > 0 && out != nil {
		if pad := frameBytes - len(stash)%frameBytes; pad < frameBytes {
			stash = append(stash, make([]byte, pad)...)
		}
		_ = out.Write(stash)
	}
}
