package device

import "fmt"

// Format describes the sample layout a stream produces or consumes.
// Samples are 32-bit floats, interleaved by channel.
type Format struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// Validate checks the format fields.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	}
	return nil
}

// Stream is a running capture or playback stream. Stop releases the
// underlying device; a stopped stream cannot be restarted.
type Stream interface {
	Start() error
	Stop() error
}

// Capture is an audio input capability. The onSamples callback runs on the
// audio subsystem's thread at its own cadence and must complete quickly
// without blocking; the block it receives is only valid for the duration of
// the call. onError reports device glitches, which are diagnostic only.
type Capture interface {
	Format() Format
	Open(onSamples func(block []float32), onError func(err error)) (Stream, error)
}

// Playback is an audio output capability. The fill callback runs on the
// audio subsystem's thread and must write len(out) samples (silence when
// there is nothing to play) without blocking.
type Playback interface {
	Open(format Format, fill func(out []float32), onError func(err error)) (Stream, error)
}
