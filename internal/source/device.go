// ABOUTME: Malgo-based capture device source
// ABOUTME: Buffers the realtime capture callback into fixed-size chunks
package source

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/spdif-tools/autodec-go/internal/sink"
	"github.com/spdif-tools/autodec-go/pkg/audio"
)

// Device captures raw audio from an input device via malgo/miniaudio. The
// capture callback feeds a ring buffer; ReadChunk blocks until a full
// chunk is buffered.
type Device struct {
	spec     audio.SampleSpec
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	devID    malgo.DeviceID
	ring     *sink.RingBuffer
	buf      []byte
	dropped  atomic.Int64
}

func captureFormat(f audio.Format) (malgo.FormatType, error) {
	switch f {
	case audio.S16LE:
		return malgo.FormatS16, nil
	case audio.S24LE:
		return malgo.FormatS24, nil
	case audio.S32LE:
		return malgo.FormatS32, nil
	case audio.F32LE:
		return malgo.FormatF32, nil
	default:
		return 0, fmt.Errorf("device capture does not support %s (little-endian formats only)", f)
	}
}

// OpenDevice opens the named capture device, or the system default when
// name is empty, delivering chunkFrames frames per ReadChunk.
func OpenDevice(name string, spec audio.SampleSpec, chunkFrames int) (*Device, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if chunkFrames <= 0 {
		return nil, fmt.Errorf("chunk frames must be positive, got %d", chunkFrames)
	}
	format, err := captureFormat(spec.Format)
	if err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	chunkBytes := chunkFrames * spec.FrameBytes()
	d := &Device{
		spec:     spec,
		malgoCtx: mctx,
		// Room for several chunks so a briefly stalled consumer does not
		// immediately drop capture data.
		ring: sink.NewRingBuffer(8 * chunkBytes),
		buf:  make([]byte, chunkBytes),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = format
	deviceConfig.Capture.Channels = uint32(spec.Channels)
	deviceConfig.SampleRate = uint32(spec.Rate)
	deviceConfig.Alsa.NoMMap = 1

	if name != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			d.teardown()
			return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if info.Name() == name {
				d.devID = info.ID
				deviceConfig.Capture.DeviceID = d.devID.Pointer()
				found = true
				break
			}
		}
		if !found {
			d.teardown()
			return nil, fmt.Errorf("capture device not found: %q", name)
		}
	}

	onRecv := func(pOutput, pInput []byte, frameCount uint32) {
		if n := d.ring.Write(pInput); n < len(pInput) {
			d.dropped.Add(int64(len(pInput) - n))
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		d.teardown()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		d.teardown()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}
	d.device = device

	log.Printf("Capture device opened: %s (%s, %d frames per chunk)", captureName(name), spec, chunkFrames)
	return d, nil
}

// ReadChunk blocks until one full chunk has been captured.
func (d *Device) ReadChunk() ([]byte, error) {
	if err := d.ring.ReadFull(d.buf); err != nil {
		return nil, fmt.Errorf("capture device closed: %w", err)
	}
	return d.buf, nil
}

// Specs returns the capture spec.
func (d *Device) Specs() audio.SampleSpec {
	return d.spec
}

// Dropped returns the number of capture bytes lost to ring overruns.
func (d *Device) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops the device; a blocked ReadChunk returns an error.
func (d *Device) Close() error {
	d.ring.Close()
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	d.teardown()
	return nil
}

func (d *Device) teardown() {
	if d.malgoCtx != nil {
		_ = d.malgoCtx.Uninit()
		d.malgoCtx.Free()
		d.malgoCtx = nil
	}
}

func captureName(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
