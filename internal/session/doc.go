// Package session implements the duplex streaming engine. A session owns
// the capture and playback staging buffers, drives the windowed
// send/receive loop against the transport, and manages the lifecycle of
// both audio streams.
package session
