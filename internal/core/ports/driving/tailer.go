package driving

import "context"

// Tailer drives the polling loop over all configured sources.
type Tailer interface {
	// Run blocks, polling sources and emitting new messages, until the
	// context is cancelled. Cancellation is observed at tick boundaries,
	// so shutdown latency is bounded by the shortest poll interval.
	// Returns the context's error on cancellation.
	Run(ctx context.Context) error
}
