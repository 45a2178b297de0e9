package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Recorder writes one direction of a call to a WAV file on disk. Samples are
// appended as the session loop hands windows over; the header sizes are
// patched when the recorder is closed. A write failure disables the recorder
// and is logged, it never propagates into the session.
type Recorder struct {
	file       *os.File
	path       string
	logger     *slog.Logger
	sampleRate int
	channels   int

	dataBytes uint32
	disabled  bool
	mu        sync.Mutex
}

// RecorderStats represents recorder state for monitoring
type RecorderStats struct {
	Path      string `json:"path"`
	DataBytes uint32 `json:"data_bytes"`
	Disabled  bool   `json:"disabled"`
}

// NewRecorder creates a WAV recorder in dir. The file name carries the
// direction label and a timestamp, e.g. "capture-20260831-153004.wav".
func NewRecorder(dir, label string, sampleRate, channels int, logger *slog.Logger) (*Recorder, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid recording format: %d Hz, %d channels", sampleRate, channels)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s-%s.wav", label, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file %s: %w", path, err)
	}

	r := &Recorder{
		file:       file,
		path:       path,
		logger:     logger,
		sampleRate: sampleRate,
		channels:   channels,
	}

	// Placeholder header; sizes are patched on Close.
	if err := r.writeHeader(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	return r, nil
}

// Path returns the file the recorder writes to.
func (r *Recorder) Path() string {
	return r.path
}

// Append writes a sample block to the recording. Called from the session
// loop, never from the real-time path.
func (r *Recorder) Append(block []float32) {
	if len(block) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disabled {
		return
	}

	data := make([]byte, len(block)*4)
	for i, s := range block {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}

	if _, err := r.file.Write(data); err != nil {
		r.logger.Warn("Recording write failed, disabling recorder",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		r.disabled = true
		return
	}
	r.dataBytes += uint32(len(data))
}

// Close patches the WAV header sizes and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}

	if _, err := r.file.Seek(0, 0); err == nil {
		if err := r.writeHeaderLocked(); err != nil {
			r.logger.Warn("Failed to finalize recording header",
				slog.String("path", r.path),
				slog.String("error", err.Error()),
			)
		}
	}

	err := r.file.Close()
	r.file = nil
	return err
}

// Stats returns current recorder state.
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RecorderStats{
		Path:      r.path,
		DataBytes: r.dataBytes,
		Disabled:  r.disabled,
	}
}

func (r *Recorder) writeHeader() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeHeaderLocked()
}

func (r *Recorder) writeHeaderLocked() error {
	header := newWAVHeader(r.sampleRate, r.channels, r.dataBytes)
	if err := binary.Write(r.file, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	return nil
}
