package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInputMismatch     = errors.New("input length mismatch")
	ErrSessionNotFound   = errors.New("session not found")
	ErrDataUnavailable   = errors.New("data unavailable")
	ErrSpecialistFailure = errors.New("specialist failure")
	ErrTimeoutExceeded   = errors.New("timeout exceeded")
	ErrIndexCorrupt      = errors.New("index snapshot corrupt")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
