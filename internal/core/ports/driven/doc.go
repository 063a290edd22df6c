// Package driven defines the interfaces the tailing engine depends on:
// sources that fetch records, normalisers that shape them, and emitters
// that render them. Adapters implement these ports; the core only ever
// sees the interfaces.
package driven
