// Package domain holds the core types of the transcript tailing engine:
// canonical messages, units, cursors and raw records. It has no behaviour
// beyond small helpers and no dependencies outside the standard library.
package domain
