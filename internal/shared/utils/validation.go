package utils

import (
	"fmt"
	"regexp"

	"github.com/bytedance/sonic"
)

// Controller message limits
const (
	MaxControlSize = 4 * 1024 * 1024 // 4MB - one controller message, filler content included
	MaxTreeDepth   = 64              // deepest subworker nesting accepted from a controller
	MaxIDLength    = 128
)

// SafeIDPattern allows alphanumeric, hyphens, underscores
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// JSONSizeValidator validates JSON size limits
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// DefaultJSONValidator returns a validator sized for controller messages
func DefaultJSONValidator() *JSONSizeValidator {
	return NewJSONSizeValidator(MaxControlSize)
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	size := len(data)
	if size > v.maxSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateJSON validates both size and JSON structure
func (v *JSONSizeValidator) ValidateJSON(data []byte) error {
	// Check size first (faster than parsing)
	if err := v.ValidateSize(data); err != nil {
		return err
	}

	var js interface{}
	if err := sonic.Unmarshal(data, &js); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// ValidateDepth checks a nesting depth against a limit
func ValidateDepth(depth, maxDepth int) error {
	if depth > maxDepth {
		return fmt.Errorf("nesting depth %d exceeds maximum %d", depth, maxDepth)
	}
	return nil
}

// ValidateID validates a node identifier
func ValidateID(id, fieldName string, required bool) error {
	if id == "" {
		if required {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%s exceeds maximum length of %d", fieldName, MaxIDLength)
	}
	if !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}
