package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Size limits (in bytes)
const (
	MaxPayloadSize = 1 * 1024 * 1024 // 1MB - largest single write, put or segment write
)

// String length limits
const (
	MaxNameLength = 128
	MaxIDLength   = 64
)

// SafeIDPattern allows alphanumeric, hyphens, underscores
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	if !utf8.ValidString(value) {
		return fmt.Errorf("%s is not valid UTF-8", fieldName)
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Names end up in log lines and the event stream
	if strings.IndexFunc(value, unicode.IsControl) >= 0 {
		return fmt.Errorf("%s contains control characters", fieldName)
	}

	return nil
}

// ValidateName validates a display name for an actor or resource. Empty
// names are allowed.
func ValidateName(name, fieldName string) error {
	return ValidateString(name, fieldName, 0, MaxNameLength, false)
}

// ValidateID validates an identifier that appears in URL paths, such as a
// scenario name
func ValidateID(id, fieldName string) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, true); err != nil {
		return err
	}

	if !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}

// ValidatePayload checks a payload against MaxPayloadSize
func ValidatePayload(data []byte) error {
	if len(data) > MaxPayloadSize {
		return fmt.Errorf("payload size %d bytes exceeds maximum %d bytes", len(data), MaxPayloadSize)
	}
	return nil
}
