package model

import "errors"

// Error taxonomy shared by all storage backends. Adapters wrap these with
// operation context via %w; callers classify with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrConnection     = errors.New("connection error")
	ErrRateLimited    = errors.New("rate limited")
	ErrNotImplemented = errors.New("not implemented")
)
