// Package http holds the read-only HTTP endpoints of the host: health,
// the worker table and the engine description.
package http
