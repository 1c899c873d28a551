// Package apperr defines the error taxonomy shared by every service.
// The HTTP boundary maps these kinds onto status codes; anything that does
// not wrap one of them is treated as an opaque server fault.
package apperr

import "errors"

var (
	// ErrInvariant marks a client-correctable data problem, such as a
	// duplicate username or an insert that yielded no row.
	ErrInvariant = errors.New("invariant violated")
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks an authenticated subject lacking rights on a resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized marks bad credentials or a bad token.
	ErrUnauthorized = errors.New("unauthorized")
)
