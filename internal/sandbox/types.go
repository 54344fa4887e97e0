package sandbox

import (
	"errors"
	"time"
)

var (
	// ErrNoEntryPoint is returned by Fill when the content neither evaluates to
	// a function nor defines a global main.
	ErrNoEntryPoint = errors.New("filler defines no entry point")
	// ErrNotFilled is returned by Exec before a successful Fill.
	ErrNotFilled = errors.New("sandbox has not been filled")
	// ErrClosed is returned by operations on a closed runtime.
	ErrClosed = errors.New("sandbox runtime is closed")
)

// Config defines sandbox configuration
type Config struct {
	MaxCallStack  int           // Maximum call stack depth, 0 keeps the goja default
	Timeout       time.Duration // Per-operation timeout, 0 disables it
	EnableConsole bool          // Capture console.log/warn/error/info
}

// Result holds execution result
type Result struct {
	Value    interface{}   // Exported return value
	Console  []LogEntry    // Console output captured during the call
	Duration time.Duration // Execution time
	Error    error         // Execution error
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error, info
	Message string    // Log message
	Time    time.Time // Timestamp
}

// DefaultConfig returns the default configuration: console captured, no timeout.
func DefaultConfig() Config {
	return Config{
		MaxCallStack:  1024,
		Timeout:       0,
		EnableConsole: true,
	}
}
