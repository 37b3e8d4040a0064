package ipc

import (
	"context"
	"errors"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAccessViolation = errors.New("access violation")
	ErrResourceBusy    = errors.New("resource busy")
	ErrClosed          = errors.New("resource closed")
	ErrTimeout         = errors.New("operation timed out")
	ErrOutOfBounds     = errors.New("out of bounds")
	ErrCanceled        = errors.New("operation canceled")
	ErrNotFound        = errors.New("not found")
)

// ErrorKind classifies err into one of the documented failure kinds.
// It returns "" for nil and "Internal" for anything unrecognized.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrAccessViolation):
		return "AccessViolation"
	case errors.Is(err, ErrResourceBusy):
		return "ResourceBusy"
	case errors.Is(err, ErrClosed):
		return "Closed"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrOutOfBounds):
		return "OutOfBounds"
	case errors.Is(err, ErrCanceled):
		return "Canceled"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	}
	return "Internal"
}

// contextError maps a finished context onto Timeout or Canceled
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCanceled
}
