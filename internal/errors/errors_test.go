package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError(t *testing.T) {
	err := New("TEST_001", "test error")

	if err.Code != "TEST_001" {
		t.Errorf("expected code TEST_001, got %s", err.Code)
	}
	if err.Message != "test error" {
		t.Errorf("expected message 'test error', got %s", err.Message)
	}
}

func TestAppErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := New("TEST_001", "test error", cause)

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "underlying error") {
		t.Errorf("expected error string to contain cause, got %s", errStr)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := New("TEST_001", "test error", cause)

	if err.Unwrap() != cause {
		t.Errorf("expected unwrap to return cause")
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("expected errors.Is to reach the cause")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := New("TEST_001", "test error")
	stdErr := fmt.Errorf("standard error")
	wrapped := fmt.Errorf("context: %w", appErr)

	if !IsAppError(appErr) {
		t.Error("expected IsAppError to return true for AppError")
	}
	if !IsAppError(wrapped) {
		t.Error("expected IsAppError to see through fmt wrapping")
	}
	if IsAppError(stdErr) {
		t.Error("expected IsAppError to return false for standard error")
	}
}

func TestGetCode(t *testing.T) {
	appErr := New("TEST_001", "test error")
	stdErr := fmt.Errorf("standard error")

	if GetCode(appErr) != "TEST_001" {
		t.Errorf("expected code TEST_001, got %s", GetCode(appErr))
	}
	if GetCode(fmt.Errorf("wrapped: %w", appErr)) != "TEST_001" {
		t.Errorf("expected code through wrapping")
	}
	if GetCode(stdErr) != "UNKNOWN" {
		t.Errorf("expected code UNKNOWN for standard error, got %s", GetCode(stdErr))
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(cause, "WRAP_001", "wrapped error")

	if err.Code != "WRAP_001" {
		t.Errorf("expected code WRAP_001, got %s", err.Code)
	}
	if err.Cause != cause {
		t.Error("expected cause to be set")
	}
}

func TestSentinelMatchesByCode(t *testing.T) {
	err := ErrStoreRead.WithCause(fmt.Errorf("disk gone"))

	if !stderrors.Is(err, ErrStoreRead) {
		t.Error("expected copy with cause to match its sentinel")
	}
	if stderrors.Is(err, ErrStoreWrite) {
		t.Error("expected different codes not to match")
	}
	if ErrStoreRead.Cause != nil {
		t.Error("sentinel must not be mutated")
	}
}

func TestPredefinedErrors(t *testing.T) {
	if ErrPushKeysMissing.Code != "PUSH_001" {
		t.Errorf("unexpected code for ErrPushKeysMissing")
	}
	if ErrOccurrenceNotFound.Code != "OCC_001" {
		t.Errorf("unexpected code for ErrOccurrenceNotFound")
	}
	if ErrUnauthorized.Code != "AUTH_001" {
		t.Errorf("unexpected code for ErrUnauthorized")
	}
}
