package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrStreamStopped is reported through onError when the audio subsystem
// stops a stream that the session did not stop itself.
var ErrStreamStopped = errors.New("device: stream stopped by audio subsystem")

// DefaultDeviceName selects the system default device.
const DefaultDeviceName = "default"

// Backend owns the miniaudio context shared by all streams of a process.
type Backend struct {
	ctx    *malgo.AllocatedContext
	logger *slog.Logger
}

// NewBackend initializes the miniaudio context.
func NewBackend(logger *slog.Logger) (*Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("Audio backend message", slog.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &Backend{ctx: ctx, logger: logger}, nil
}

// Close releases the miniaudio context. All streams must be stopped first.
func (b *Backend) Close() error {
	if err := b.ctx.Uninit(); err != nil {
		return fmt.Errorf("failed to uninit audio context: %w", err)
	}
	b.ctx.Free()
	return nil
}

// ListCaptureDevices returns the names of available capture devices.
func (b *Backend) ListCaptureDevices() ([]string, error) {
	return b.deviceNames(malgo.Capture)
}

// ListPlaybackDevices returns the names of available playback devices.
func (b *Backend) ListPlaybackDevices() ([]string, error) {
	return b.deviceNames(malgo.Playback)
}

func (b *Backend) deviceNames(kind malgo.DeviceType) ([]string, error) {
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

// findDevice resolves a device name to its miniaudio ID. The name "default"
// (or empty) selects the system default, returned as a nil ID.
func (b *Backend) findDevice(kind malgo.DeviceType, name string) (*malgo.DeviceID, error) {
	if name == "" || name == DefaultDeviceName {
		return nil, nil
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name {
			id := info.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("no device named %q (available: %v)", name, deviceNameList(infos))
}

func deviceNameList(infos []malgo.DeviceInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names
}

// MalgoCapture is a Capture backed by a miniaudio input device. miniaudio
// converts the device's native format to the requested one, so Format
// reports the requested values.
type MalgoCapture struct {
	backend *Backend
	name    string
	format  Format
}

// NewCapture creates a capture capability for the named device.
func (b *Backend) NewCapture(name string, format Format) (*MalgoCapture, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture format: %w", err)
	}
	// Resolve eagerly so a bad device name fails at setup, not at Open.
	if _, err := b.findDevice(malgo.Capture, name); err != nil {
		return nil, err
	}
	return &MalgoCapture{backend: b, name: name, format: format}, nil
}

// Format returns the negotiated capture format.
func (c *MalgoCapture) Format() Format {
	return c.format
}

// Open builds and returns the capture stream. onSamples runs on the audio
// thread with a reused scratch block; it must not retain the slice.
func (c *MalgoCapture) Open(onSamples func([]float32), onError func(error)) (Stream, error) {
	id, err := c.backend.findDevice(malgo.Capture, c.name)
	if err != nil {
		return nil, err
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = uint32(c.format.Channels)
	config.SampleRate = uint32(c.format.SampleRate)
	config.Alsa.NoMMap = 1
	if id != nil {
		config.Capture.DeviceID = id.Pointer()
	}

	s := &malgoStream{logger: c.backend.logger, onError: onError}
	var scratch []float32
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * c.format.Channels
			if cap(scratch) < n {
				scratch = make([]float32, n)
			}
			block := scratch[:n]
			bytesToSamples(input, block)
			onSamples(block)
		},
		Stop: s.onStop,
	}

	dev, err := malgo.InitDevice(c.backend.ctx.Context, config, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %q: %w", c.name, err)
	}
	s.device = dev
	return s, nil
}

// MalgoPlayback is a Playback backed by a miniaudio output device.
type MalgoPlayback struct {
	backend *Backend
	name    string
}

// NewPlayback creates a playback capability for the named device.
func (b *Backend) NewPlayback(name string) (*MalgoPlayback, error) {
	if _, err := b.findDevice(malgo.Playback, name); err != nil {
		return nil, err
	}
	return &MalgoPlayback{backend: b, name: name}, nil
}

// Open builds and returns the playback stream. fill runs on the audio thread
// with a reused scratch block it must fully populate.
func (p *MalgoPlayback) Open(format Format, fill func([]float32), onError func(error)) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playback format: %w", err)
	}
	id, err := p.backend.findDevice(malgo.Playback, p.name)
	if err != nil {
		return nil, err
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatF32
	config.Playback.Channels = uint32(format.Channels)
	config.SampleRate = uint32(format.SampleRate)
	config.Alsa.NoMMap = 1
	if id != nil {
		config.Playback.DeviceID = id.Pointer()
	}

	s := &malgoStream{logger: p.backend.logger, onError: onError}
	var scratch []float32
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			n := int(frameCount) * format.Channels
			if cap(scratch) < n {
				scratch = make([]float32, n)
			}
			block := scratch[:n]
			fill(block)
			samplesToBytes(block, output)
		},
		Stop: s.onStop,
	}

	dev, err := malgo.InitDevice(p.backend.ctx.Context, config, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to open playback device %q: %w", p.name, err)
	}
	s.device = dev
	return s, nil
}

// malgoStream wraps a miniaudio device as a Stream.
type malgoStream struct {
	device  *malgo.Device
	logger  *slog.Logger
	onError func(error)

	mu       sync.Mutex
	stopping bool
	stopped  bool
}

func (s *malgoStream) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	return nil
}

// Stop stops the device and releases it. Safe to call more than once.
func (s *malgoStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.stopped = true
	s.mu.Unlock()

	if err := s.device.Stop(); err != nil {
		s.device.Uninit()
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	s.device.Uninit()
	return nil
}

// onStop fires from miniaudio when the device stops. Only an unsolicited
// stop (device lost, backend error) is surfaced as an error.
func (s *malgoStream) onStop() {
	s.mu.Lock()
	wasStopping := s.stopping
	s.mu.Unlock()

	if !wasStopping && s.onError != nil {
		s.onError(ErrStreamStopped)
	}
}

// bytesToSamples decodes little-endian float32 device data.
func bytesToSamples(data []byte, out []float32) {
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
}

// samplesToBytes encodes samples into the device's output buffer.
func samplesToBytes(in []float32, data []byte) {
	for i, s := range in {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
}
