package apperrors

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid connector configuration")
	ErrUnknownEngine    = errors.New("unknown engine")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrUnknownField     = errors.New("unknown field")
	ErrLimitOutOfBounds = errors.New("limit out of bounds")
	ErrConnectorClosed  = errors.New("connector closed")
	ErrSessionClosed    = errors.New("session closed")
	ErrUnsafeValue      = errors.New("unsafe value rejected")
)
