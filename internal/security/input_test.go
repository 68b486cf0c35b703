package security

import (
	"strings"
	"testing"
)

func TestInputValidator_ValidInput(t *testing.T) {
	validator := NewInputValidator(200)
	validInputs := []string{
		"Metformin",
		"Vitamin D3 1000 IU",
		"Amoxicillin-clavulanate",
		"",
		strings.Repeat("ab", 50),
	}

	for _, input := range validInputs {
		if err := validator.Validate(input); err != nil {
			t.Errorf("Valid input rejected: %q (error: %v)", input, err)
		}
	}
}

func TestInputValidator_Required(t *testing.T) {
	validator := NewInputValidator(200)
	validator.Required = true

	for _, input := range []string{"", "   ", "\t"} {
		if err := validator.Validate(input); err != ErrInputBlank {
			t.Errorf("Blank input %q not rejected, got: %v", input, err)
		}
	}
}

func TestInputValidator_TooLarge(t *testing.T) {
	validator := NewInputValidator(100)

	err := validator.Validate(strings.Repeat("ab", 100))
	if err != ErrInputTooLarge {
		t.Errorf("Large input not rejected, got: %v", err)
	}
}

func TestInputValidator_NullByte(t *testing.T) {
	validator := NewInputValidator(200)

	inputsWithNull := []string{
		"hello\x00world",
		"\x00",
		"test\x00",
	}

	for _, input := range inputsWithNull {
		if err := validator.Validate(input); err != ErrNullByteDetected {
			t.Errorf("Null byte not detected in: %q", input)
		}
	}
}

func TestInputValidator_ControlCharacters(t *testing.T) {
	validator := NewInputValidator(200)

	if err := validator.Validate("line\nbreak"); err != ErrControlCharacter {
		t.Errorf("Newline accepted in single-line field, got: %v", err)
	}
	if err := validator.Validate("bell\a"); err != ErrControlCharacter {
		t.Errorf("Bell character accepted, got: %v", err)
	}

	validator.AllowNewlines = true
	if err := validator.Validate("Take with water.\nAvoid grapefruit."); err != nil {
		t.Errorf("Newline rejected in multi-line field: %v", err)
	}
	if err := validator.Validate("escape\x1b[31m"); err != ErrControlCharacter {
		t.Errorf("Escape sequence accepted, got: %v", err)
	}
}

func TestInputValidator_Repetition(t *testing.T) {
	validator := NewInputValidator(200)

	if err := validator.Validate(strings.Repeat("a", 33)); err != ErrRepetitiveContent {
		t.Errorf("Repetitive content not detected, got: %v", err)
	}
	if err := validator.Validate(strings.Repeat("a", 32)); err != nil {
		t.Errorf("Repetition at the limit rejected: %v", err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Metformin  ", "Metformin"},
		{"Vitamin   D3", "Vitamin D3"},
		{"\tAspirin\n", "Aspirin"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.input); got != tt.expected {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
