package driven

import "github.com/custodia-labs/chattail-cli/internal/core/domain"

// Emitter renders canonical messages to a sink (terminal, file, ...).
// Emit must not block the poll loop indefinitely; buffering is the
// emitter's responsibility. Messages are passed by value and the engine
// does not retain them after the call.
type Emitter interface {
	Emit(msg domain.Message, unitLabel string)
}
