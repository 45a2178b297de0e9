// Package dsp implements signal conditioning for captured audio.
// It applies a noise gate, collapses pure silence, and rescales the
// remaining samples into the [-1, 1] range before transmission.
package dsp
