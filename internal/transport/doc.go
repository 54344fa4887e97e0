// Package transport connects a controller to the orchestrator over a byte
// stream. Commands arrive as one JSON object per line and events leave the
// same way.
package transport
