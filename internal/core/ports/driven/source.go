package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/chattail-cli/internal/core/domain"
)

// Source fetches new transcript records from a backing store.
// Each source kind (session log directory, conversation database)
// implements this interface; the poll loop is written against it and never
// inspects the concrete kind.
//
// Sources are stateless with respect to consumption progress: they receive a
// cursor and return records plus an updated cursor, and never track position
// themselves. A fetch for a unit with no new data returns an empty batch and
// the input cursor; "no new data" is never an error.
type Source interface {
	// Type returns the source kind identifier.
	Type() string

	// SourceID returns the configured source ID.
	SourceID() string

	// Validate checks that the source's root location exists and is
	// readable. Called once at startup; failure is fatal.
	Validate(ctx context.Context) error

	// ListUnits enumerates the units currently visible in the source.
	ListUnits(ctx context.Context) ([]domain.Unit, error)

	// HeadCursor returns the cursor for the unit's current end of content.
	// Used when a unit is seen for the first time: tailing starts at the
	// head, prior history is never replayed.
	HeadCursor(ctx context.Context, unit domain.Unit) (domain.Cursor, error)

	// FetchNew returns the records appended past cursor, in arrival order,
	// and the cursor to resume from. The returned cursor is never smaller
	// than the input. On error the batch must be discarded and the input
	// cursor reused next tick.
	FetchNew(ctx context.Context, unit domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error)

	// PollInterval returns how long the loop suspends between ticks for
	// this source.
	PollInterval() time.Duration

	// Close releases resources.
	Close() error
}
