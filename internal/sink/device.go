// ABOUTME: Malgo-based playback device sink
// ABOUTME: Feeds a realtime device callback from a byte ring buffer
package sink

import (
	"fmt"
	"log"

	"github.com/gen2brain/malgo"
	"github.com/spdif-tools/autodec-go/pkg/audio"
)

// Device plays raw audio on an output device via malgo/miniaudio. Write
// blocks while the ring buffer is full, which throttles the producer to
// playback speed.
type Device struct {
	spec     audio.SampleSpec
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	devID    malgo.DeviceID
	ring     *RingBuffer
}

// malgoFormat maps a sample format onto a malgo format. The device layer
// only speaks native little-endian layouts.
func malgoFormat(f audio.Format) (malgo.FormatType, error) {
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
		return 0, fmt.Errorf("device output does not support %s (little-endian formats only)", f)
	}
}

// OpenDevice opens the named playback device, or the system default when
// name is empty.
func OpenDevice(name string, spec audio.SampleSpec) (*Device, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	format, err := malgoFormat(spec.Format)
	if err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	d := &Device{
		spec:     spec,
		malgoCtx: mctx,
		// 500ms of buffered audio between the writer and the callback.
		ring: NewRingBuffer(spec.Rate * spec.FrameBytes() / 2),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(spec.Channels)
	deviceConfig.SampleRate = uint32(spec.Rate)
	deviceConfig.Alsa.NoMMap = 1

	if name != "" {
		infos, err := mctx.Devices(malgo.Playback)
		if err != nil {
			d.teardown()
			return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if info.Name() == name {
				d.devID = info.ID
				deviceConfig.Playback.DeviceID = d.devID.Pointer()
				found = true
				break
			}
		}
		if !found {
			d.teardown()
			return nil, fmt.Errorf("playback device not found: %q", name)
		}
	}

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		d.ring.Read(pOutput)
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		d.teardown()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		d.teardown()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	d.device = device

	log.Printf("Playback device opened: %s (%s)", deviceName(name), spec)
	return d, nil
}

// Write queues audio bytes for playback, blocking while the ring is full.
func (d *Device) Write(p []byte) error {
	if err := d.ring.WriteFull(p); err != nil {
		return fmt.Errorf("playback device closed: %w", err)
	}
	return nil
}

// Specs returns the spec the device was opened with.
func (d *Device) Specs() audio.SampleSpec {
	return d.spec
}

// Close stops the device and releases the audio context.
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

func deviceName(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
