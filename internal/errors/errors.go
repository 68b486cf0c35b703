package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so wrapped instances compare equal to the sentinels
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrStoreRead  = &AppError{Code: "STORE_001", Message: "schedule store read failed"}
	ErrStoreWrite = &AppError{Code: "STORE_002", Message: "schedule store write failed"}

	ErrPushKeysMissing     = &AppError{Code: "PUSH_001", Message: "push signing keys not configured"}
	ErrSubscriptionGone    = &AppError{Code: "PUSH_002", Message: "push subscription expired"}
	ErrPushService         = &AppError{Code: "PUSH_003", Message: "push service error"}
	ErrPermissionDenied    = &AppError{Code: "NOTIFY_001", Message: "notification permission not granted"}
	ErrMalformedPayload    = &AppError{Code: "PAYLOAD_001", Message: "malformed push payload"}
	ErrOccurrenceNotFound  = &AppError{Code: "OCC_001", Message: "occurrence not found"}
	ErrSchedulerRunning    = &AppError{Code: "SCHED_001", Message: "scheduler already running"}
	ErrServiceWorkerFailed = &AppError{Code: "NOTIFY_002", Message: "service worker notification failed"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithCause returns a copy of a sentinel carrying cause
func (e *AppError) WithCause(cause error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Cause: cause}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
