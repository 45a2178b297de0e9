// Package device is the boundary to the host audio subsystem. It exposes
// capture and playback capabilities as callback-driven streams and provides
// a miniaudio-backed implementation with device selection by name.
package device
