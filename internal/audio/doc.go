// Package audio handles audio staging between the real-time device
// callbacks and the session loop, plus WAV encoding for call recording.
// The capture and playback buffers each hold at most one pending sample
// block and never block the real-time side.
package audio
