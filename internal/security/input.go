package security

import (
	"errors"
	"strings"
	"unicode"
)

var (
	ErrInputBlank        = errors.New("value is blank")
	ErrInputTooLarge     = errors.New("input exceeds maximum size")
	ErrNullByteDetected  = errors.New("null byte detected in input")
	ErrControlCharacter  = errors.New("control character in input")
	ErrRepetitiveContent = errors.New("excessive repetition detected")
)

// InputValidator checks one free-text field
type InputValidator struct {
	MaxSize       int
	MaxRepetition int
	AllowNewlines bool
	Required      bool
}

func NewInputValidator(maxSize int) *InputValidator {
	return &InputValidator{
		MaxSize:       maxSize,
		MaxRepetition: 32,
	}
}

func (v *InputValidator) Validate(input string) error {
	if strings.TrimSpace(input) == "" {
		if v.Required {
			return ErrInputBlank
		}
		return nil
	}

	if v.MaxSize > 0 && len(input) > v.MaxSize {
		return ErrInputTooLarge
	}

	for _, r := range input {
		if r == 0 {
			return ErrNullByteDetected
		}
		if unicode.IsControl(r) {
			if v.AllowNewlines && (r == '\n' || r == '\r' || r == '\t') {
				continue
			}
			return ErrControlCharacter
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}

	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	runes := []rune(input)
	consecutiveCount := 1

	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
	}

	return false
}

// Sanitize trims surrounding whitespace and collapses inner runs of spaces
func Sanitize(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
