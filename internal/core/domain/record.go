package domain

import (
	"encoding/json"
	"time"
)

// RawRecord is a source adapter's pre-normalisation output: one parsed log
// line or one resolved conversation bubble. Records are handed to the
// normaliser for the owning source and not retained afterwards.
type RawRecord struct {
	// ID is the stable message identifier carried by the record. Dedup and
	// canonical message IDs derive from it.
	ID string

	// TypeCode is the source's role type code, when the source carries the
	// role outside the payload (stored conversation headers). Zero when the
	// payload itself names the role.
	TypeCode int

	// Data is the source-specific JSON payload.
	Data json.RawMessage

	// ObservedAt is when the adapter read the record.
	ObservedAt time.Time
}
