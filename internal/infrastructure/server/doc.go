// Package server assembles the optional HTTP surface: health and worker
// endpoints, Prometheus metrics and the WebSocket controller transport.
package server
