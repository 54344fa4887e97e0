// Package ws serves the controller protocol over WebSocket. Every connected
// client may submit commands and receives every event.
package ws
