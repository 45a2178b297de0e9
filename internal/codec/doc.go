// Package codec implements the fixed-window PCM wire format.
// Each frame is a fixed number of interleaved little-endian 32-bit float
// samples with no header or length prefix; both peers must derive the
// frame size from the same audio format and window duration.
package codec
