package domain

import "errors"

// Core operation errors (spec.md §4.3, §7). Handlers map these to the
// HTTP error envelope of spec.md §6 via errors.Is, never by matching
// error strings.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrAddressUnavailable = errors.New("address unavailable")
)
