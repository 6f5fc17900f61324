package application

import (
	"context"
	"errors"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// Error categories shared by every use case. Transport adapters map these,
// and only these, to status codes; domain errors are wrapped beneath them.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrRemoteUnavailable = errors.New("remote unavailable")
)

// IDGenerator issues and recognises entity identifiers.
type IDGenerator interface {
	NewID() string
	Valid(id string) bool
}

// StatusText names the error category for spans and logs.
func StatusText(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrRemoteUnavailable):
		return "REMOTE_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
