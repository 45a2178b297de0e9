package audio

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// wavFileBytes builds a complete float32 WAV file in memory.
func wavFileBytes(t *testing.T, samples []float32, sampleRate, channels int) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	header := newWAVHeader(sampleRate, channels, uint32(len(samples)*4))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		t.Fatalf("Failed to write samples: %v", err)
	}
	return buf.Bytes()
}

func TestNewWAVHeader(t *testing.T) {
	header := newWAVHeader(22050, 2, 1000)

	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		t.Error("Header magic is wrong")
	}
	if header.AudioFormat != wavFormatFloat {
		t.Errorf("Expected format code %d, got %d", wavFormatFloat, header.AudioFormat)
	}
	if header.BitsPerSample != 32 {
		t.Errorf("Expected 32 bits per sample, got %d", header.BitsPerSample)
	}
	if header.ChunkSize != 36+1000 {
		t.Errorf("Expected chunk size %d, got %d", 36+1000, header.ChunkSize)
	}
	if header.Subchunk2Size != 1000 {
		t.Errorf("Expected data size 1000, got %d", header.Subchunk2Size)
	}
	if header.ByteRate != 22050*2*4 {
		t.Errorf("Expected byte rate %d, got %d", 22050*2*4, header.ByteRate)
	}
	if header.BlockAlign != 8 {
		t.Errorf("Expected block align 8, got %d", header.BlockAlign)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := []float32{0.0, 0.5, -0.5, 1.0, -1.0, 0.123456}
	data := wavFileBytes(t, samples, 22050, 1)

	decoded, rate, channels, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", rate)
	}
	if channels != 1 {
		t.Errorf("Expected 1 channel, got %d", channels)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, samples[i], decoded[i])
		}
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	valid := wavFileBytes(t, []float32{0.1, 0.2}, 22050, 1)

	intPCM := wavFileBytes(t, []float32{0.1}, 22050, 1)
	intPCM[20] = 1 // format code 1 (integer PCM)

	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{name: "too short", data: []byte{1, 2, 3}, errorMsg: "WAV data too short"},
		{
			name:     "bad magic",
			data:     append([]byte("JUNK"), valid[4:]...),
			errorMsg: "missing RIFF header",
		},
		{
			name:     "integer PCM rejected",
			data:     intPCM,
			errorMsg: "unsupported audio format",
		},
		{
			name:     "truncated data",
			data:     valid[:len(valid)-4],
			errorMsg: "WAV data truncated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := DecodeWAV(tt.data)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !wavContains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestRecorderWritesPlayableFile(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	r, err := NewRecorder(dir, "capture", 22050, 1, logger)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	r.Append([]float32{0.1, 0.2, 0.3})
	r.Append([]float32{-0.1, -0.2})
	r.Append(nil) // ignored

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatalf("Failed to read recording: %v", err)
	}

	samples, rate, channels, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("Recording is not a valid WAV file: %v", err)
	}
	if rate != 22050 || channels != 1 {
		t.Errorf("Expected 22050 Hz mono, got %d Hz %d channels", rate, channels)
	}
	if len(samples) != 5 {
		t.Fatalf("Expected 5 samples, got %d", len(samples))
	}
	if samples[0] != 0.1 || samples[4] != -0.2 {
		t.Errorf("Unexpected sample data: %v", samples)
	}

	if filepath.Ext(r.Path()) != ".wav" {
		t.Errorf("Expected .wav extension, got %s", r.Path())
	}
}

func TestNewRecorderInvalidFormat(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if _, err := NewRecorder(t.TempDir(), "capture", 0, 1, logger); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if _, err := NewRecorder(t.TempDir(), "capture", 22050, 0, logger); err == nil {
		t.Error("Expected error for zero channels")
	}
}

// wavContains checks if a string contains a substring
func wavContains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return len(substr) == 0
}
