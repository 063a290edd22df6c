package driven

import "github.com/custodia-labs/chattail-cli/internal/core/domain"

// Normaliser maps one source's raw records to canonical messages.
type Normaliser interface {
	// SourceType returns the source kind this normaliser handles.
	SourceType() string

	// Normalise converts a raw record into zero or more messages.
	// A record can legitimately yield nothing (empty text, injected
	// metadata, unknown record type) or several messages (multi-part
	// content). Malformed payloads are dropped, not surfaced as errors;
	// a non-nil error means the record could not even be inspected.
	Normalise(rec domain.RawRecord) ([]domain.Message, error)
}
