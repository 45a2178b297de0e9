// Package api exposes the optional local monitoring HTTP server with
// health, statistics, configuration, and Prometheus metrics endpoints.
// It observes the call; it never participates in the audio path.
package api
