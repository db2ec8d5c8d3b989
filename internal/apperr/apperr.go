// Package apperr holds the error kinds shared across layers. Handlers map
// them onto HTTP statuses; services return them wrapped with context.
package apperr

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
