package domain

import "errors"

// Domain errors represent tailing-engine failures.
// These are distinct from infrastructure errors.
var (
	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRootNotFound indicates a source's root location does not exist.
	// Fatal at startup: there is nothing to tail.
	ErrRootNotFound = errors.New("root location not found")

	// ErrUnsupportedType indicates an unknown source or normaliser type.
	ErrUnsupportedType = errors.New("unsupported type")
)
