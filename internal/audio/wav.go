package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM/float
	AudioFormat   uint16  // 3 for IEEE float
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

const (
	wavHeaderSize  = 44
	wavFormatFloat = 3 // IEEE 754 float samples
)

// newWAVHeader builds the 44-byte header for a float32 WAV file carrying
// dataBytes of sample data. The Recorder writes it twice: a placeholder at
// creation and the real sizes on Close.
func newWAVHeader(sampleRate, channels int, dataBytes uint32) WAVHeader {
	numChannels := uint16(channels)
	bitsPerSample := uint16(32)

	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataBytes,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatFloat,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataBytes,
	}
}

// DecodeWAV decodes WAV format data back to 32-bit float samples.
// It returns the samples, the sample rate, and the channel count.
func DecodeWAV(data []byte) ([]float32, int, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, 0, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	// Read and validate WAV header
	buf := bytes.NewReader(data)
	var header WAVHeader

	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}

	// Validate WAV format
	if string(header.ChunkID[:]) != "RIFF" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(header.Format[:]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(header.Subchunk2ID[:]) != "data" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if header.AudioFormat != wavFormatFloat {
		return nil, 0, 0, fmt.Errorf("unsupported audio format: %d (only IEEE float is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != 32 {
		return nil, 0, 0, fmt.Errorf("unsupported bit depth: %d (only 32-bit float is supported)", header.BitsPerSample)
	}

	if header.NumChannels < 1 {
		return nil, 0, 0, fmt.Errorf("invalid channel count: %d", header.NumChannels)
	}

	// Calculate number of samples
	numSamples := int(header.Subchunk2Size) / 4
	if numSamples <= 0 {
		return nil, 0, 0, fmt.Errorf("WAV file contains no audio data")
	}

	if wavHeaderSize+numSamples*4 > len(data) {
		return nil, 0, 0, fmt.Errorf("WAV data truncated: header declares %d bytes, have %d",
			header.Subchunk2Size, len(data)-wavHeaderSize)
	}

	// Read audio data
	samples := make([]float32, numSamples)
	if err := binary.Read(buf, binary.LittleEndian, &samples); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read audio data: %w", err)
	}

	return samples, int(header.SampleRate), int(header.NumChannels), nil
}
