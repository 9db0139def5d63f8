package services

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrQuotaExceeded         = errors.New("storage limit exceeded")
	ErrUnsupportedFormat     = errors.New("unsupported file format")
	ErrUpdateFailed          = errors.New("update failed")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrRateLimited           = errors.New("too many attempts")
	ErrPasswordNotConfigured = errors.New("missing server password")
)

// ValidationError reports a rejected input field. Message is safe to show to clients.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
