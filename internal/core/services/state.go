package services

import "github.com/custodia-labs/chattail-cli/internal/core/domain"

// PositionTracker holds the last consumed cursor per unit. It is owned by a
// single Tailer's run context and touched only from the poll goroutine, so
// it needs no locking. State lives for the process lifetime only; a restart
// re-applies the first-sight policy to every unit.
type PositionTracker struct {
	cursors map[string]domain.Cursor
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{
		cursors: make(map[string]domain.Cursor),
	}
}

// Get returns the cursor for a unit. The second return is false when the
// unit has never been seen, which triggers the first-sight policy rather
// than a zero-value cursor.
func (t *PositionTracker) Get(unitID string) (domain.Cursor, bool) {
	c, ok := t.cursors[unitID]
	return c, ok
}

// Advance overwrites the unit's cursor unconditionally. Callers must only
// pass cursors returned by a completed fetch.
func (t *PositionTracker) Advance(unitID string, cursor domain.Cursor) {
	t.cursors[unitID] = cursor
}

// DedupIndex records which message IDs have already been emitted per unit.
// It is the authoritative at-most-once boundary: cursors only bound how much
// a source re-reads, while overlapping fetches are still possible, so every
// candidate message is checked here before emission.
type DedupIndex struct {
	seen map[string]map[string]struct{}
}

// NewDedupIndex creates an empty index.
func NewDedupIndex() *DedupIndex {
	return &DedupIndex{
		seen: make(map[string]map[string]struct{}),
	}
}

// HasSeen reports whether the message ID was already emitted for the unit.
func (d *DedupIndex) HasSeen(unitID, msgID string) bool {
	_, ok := d.seen[unitID][msgID]
	return ok
}

// MarkSeen records the message ID as emitted for the unit.
func (d *DedupIndex) MarkSeen(unitID, msgID string) {
	ids, ok := d.seen[unitID]
	if !ok {
		ids = make(map[string]struct{})
		d.seen[unitID] = ids
	}
	ids[msgID] = struct{}{}
}
