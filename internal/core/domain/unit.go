package domain

import "strings"

// Unit is an addressable, independently tailed stream: one conversation in
// the key-value store, or one session log file on disk. Units are discovered
// fresh on every tick; new units appear at any time, none is removed mid-run.
type Unit struct {
	// ID addresses the unit within its source (conversation id or file path).
	ID string

	// Label is the display/grouping key (conversation name or the file's
	// parent directory name). Unit ordering and filtering use the label.
	Label string
}

// MatchesFilter reports whether the unit's label contains the filter as a
// case-insensitive substring. An empty filter matches everything.
func (u Unit) MatchesFilter(filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.Label), strings.ToLower(filter))
}

// Cursor is an opaque consumption position for a unit. Its meaning is
// source-specific: a byte offset for a log file, a processed-header count
// for a stored conversation. Per unit, cursors are monotonically
// non-decreasing across ticks.
type Cursor int64
