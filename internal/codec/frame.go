package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// BytesPerSample is the wire size of one 32-bit float sample.
	BytesPerSample = 4
)

// Format describes the stream layout shared by both peers.
// It is fixed for the lifetime of a session.
type Format struct {
	SampleRate int // samples per second per channel
	Channels   int // interleaved channel count
}

// Validate checks that the format can produce a well-formed frame.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	}
	return nil
}

// FrameSamples returns the number of samples in one window for the format.
// The per-channel count is truncated before multiplying by the channel
// count, so the total is always a whole number of interleave groups.
func FrameSamples(format Format, window time.Duration) int {
	samplesPerChannel := int(window.Seconds() * float64(format.SampleRate))
	return samplesPerChannel * format.Channels
}

// FrameBytes returns the wire size of one window for the format.
// The result is always a multiple of BytesPerSample and of
// Channels*BytesPerSample: a partial trailing sample is never transmitted.
func FrameBytes(format Format, window time.Duration) int {
	return FrameSamples(format, window) * BytesPerSample
}

// Codec encodes and decodes fixed-window frames for a single session.
// The frame boundary is defined purely by the byte count; a decoder that
// reads fewer bytes than a full frame produces a truncated block and, for
// multi-channel streams, desynchronizes the channel interleave for the
// remainder of the session. The format has no recovery mechanism for this.
type Codec struct {
	format     Format
	window     time.Duration
	frameBytes int
}

// New creates a codec for the given format and window duration.
func New(format Format, window time.Duration) (*Codec, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format: %w", err)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window duration must be positive, got %v", window)
	}
	frameBytes := FrameBytes(format, window)
	if frameBytes == 0 {
		return nil, fmt.Errorf("window %v too short for %d Hz: empty frame", window, format.SampleRate)
	}
	return &Codec{
		format:     format,
		window:     window,
		frameBytes: frameBytes,
	}, nil
}

// FrameBytes returns the wire size of one full frame.
func (c *Codec) FrameBytes() int {
	return c.frameBytes
}

// Format returns the stream format the codec was created with.
func (c *Codec) Format() Format {
	return c.format
}

// Window returns the window duration the codec was created with.
func (c *Codec) Window() time.Duration {
	return c.window
}

// Encode serializes a sample block as little-endian 32-bit floats.
// The block is written as-is; it need not fill a whole window.
func (c *Codec) Encode(block []float32) []byte {
	data := make([]byte, len(block)*BytesPerSample)
	for i, s := range block {
		binary.LittleEndian.PutUint32(data[i*BytesPerSample:], math.Float32bits(s))
	}
	return data
}

// Decode converts wire bytes back into a sample block. A trailing group of
// fewer than 4 bytes is discarded. Short input yields a short block; empty
// input yields nil.
func (c *Codec) Decode(data []byte) []float32 {
	n := len(data) / BytesPerSample
	if n == 0 {
		return nil
	}
	block := make([]float32, n)
	for i := range block {
		block[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*BytesPerSample:]))
	}
	return block
}
