// Package transport adapts a stream-oriented network connection to the
// non-blocking read / full-write contract the session loop needs.
package transport
