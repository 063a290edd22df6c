// Package connectors contains the source implementations that feed the
// tailing engine: sessionlog tails newline-delimited JSON transcript files,
// sessiondb tails conversations stored in an embedded SQLite key-value
// table. Both implement the driven.Source port.
package connectors
