package services

import (
	"context"
	"sort"
	"time"

	"github.com/custodia-labs/chattail-cli/internal/core/domain"
	"github.com/custodia-labs/chattail-cli/internal/core/ports/driven"
	"github.com/custodia-labs/chattail-cli/internal/core/ports/driving"
	"github.com/custodia-labs/chattail-cli/internal/logger"
)

// Ensure Tailer implements the interface.
var _ driving.Tailer = (*Tailer)(nil)

// TailerConfig holds the collaborators and options for a Tailer.
type TailerConfig struct {
	// Sources are the stores to tail. Each polls at its own interval.
	Sources []driven.Source

	// Normalisers maps source type to the normaliser for its records.
	Normalisers map[string]driven.Normaliser

	// Emitter receives every new message.
	Emitter driven.Emitter

	// Filter, when non-empty, restricts tailing to units whose label
	// contains it (case-insensitive).
	Filter string

	// Clock is the time source. Defaults to the system clock.
	Clock Clock

	// Wake, when non-nil, ends the inter-tick suspension early and makes
	// every source due immediately. Fed by the filesystem watcher.
	Wake <-chan struct{}
}

// Tailer polls all configured sources on a fixed cadence, normalises new
// records, deduplicates them and forwards survivors to the emitter.
//
// All state (cursors, seen IDs, due times) belongs to one Tailer instance
// and is touched only by its Run goroutine. Multiple independent instances
// can run side by side.
type Tailer struct {
	sources     []driven.Source
	normalisers map[string]driven.Normaliser
	emitter     driven.Emitter
	filter      string
	clock       Clock
	wake        <-chan struct{}

	tracker *PositionTracker
	seen    *DedupIndex
	nextDue map[string]time.Time
}

// NewTailer creates a Tailer from config.
func NewTailer(cfg TailerConfig) *Tailer {
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Tailer{
		sources:     cfg.Sources,
		normalisers: cfg.Normalisers,
		emitter:     cfg.Emitter,
		filter:      cfg.Filter,
		clock:       clock,
		wake:        cfg.Wake,
		tracker:     NewPositionTracker(),
		seen:        NewDedupIndex(),
		nextDue:     make(map[string]time.Time),
	}
}

// Run blocks, polling sources until the context is cancelled. Each pass
// polls every due source, then suspends until the earliest next due time.
// Cancellation is observed at that suspension boundary, so a unit's cursor
// and dedup state are never left half-applied.
func (t *Tailer) Run(ctx context.Context) error {
	for {
		now := t.clock.Now()
		for _, src := range t.sources {
			due, ok := t.nextDue[src.SourceID()]
			if ok && due.After(now) {
				continue
			}
			t.pollSource(ctx, src)
			t.nextDue[src.SourceID()] = t.clock.Now().Add(src.PollInterval())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.clock.After(t.untilNextDue()):
		case <-t.wake:
			// Filesystem activity: make everything due right away.
			t.nextDue = make(map[string]time.Time)
		}
	}
}

// untilNextDue returns how long to suspend before some source is due again.
func (t *Tailer) untilNextDue() time.Duration {
	now := t.clock.Now()
	var min time.Duration = -1
	for _, src := range t.sources {
		d := t.nextDue[src.SourceID()].Sub(now)
		if d < 0 {
			d = 0
		}
		if min < 0 || d < min {
			min = d
		}
	}
	if min < 0 {
		// No sources configured; nothing will ever be due.
		min = time.Second
	}
	return min
}

// pollSource runs one tick for a single source: enumerate, filter, sort,
// then consume each unit in order. Source-level failures skip the tick and
// are retried on the next one; no state is mutated for skipped units.
func (t *Tailer) pollSource(ctx context.Context, src driven.Source) {
	norm, ok := t.normalisers[src.Type()]
	if !ok {
		logger.Warn("no normaliser for source type %q, skipping", src.Type())
		return
	}

	units, err := src.ListUnits(ctx)
	if err != nil {
		logger.Debug("list units for %s failed: %v", src.Type(), err)
		return
	}

	units = t.filterUnits(units)

	// Lexicographic label order gives reproducible interleaving across
	// units with simultaneous new content. ID breaks label ties.
	sort.Slice(units, func(i, j int) bool {
		if units[i].Label != units[j].Label {
			return units[i].Label < units[j].Label
		}
		return units[i].ID < units[j].ID
	})

	for _, unit := range units {
		t.consumeUnit(ctx, src, norm, unit)
	}
}

// filterUnits keeps units whose label matches the configured filter.
func (t *Tailer) filterUnits(units []domain.Unit) []domain.Unit {
	if t.filter == "" {
		return units
	}
	kept := units[:0]
	for _, u := range units {
		if u.MatchesFilter(t.filter) {
			kept = append(kept, u)
		}
	}
	return kept
}

// consumeUnit advances a single unit by one fetch. Tracker and dedup updates
// for the unit are applied together, synchronously, before returning.
func (t *Tailer) consumeUnit(ctx context.Context, src driven.Source, norm driven.Normaliser, unit domain.Unit) {
	cursor, known := t.tracker.Get(unit.ID)
	if !known {
		// First sight: start tailing at the current end, emit nothing.
		head, err := src.HeadCursor(ctx, unit)
		if err != nil {
			logger.Debug("head cursor for %s failed: %v", unit.ID, err)
			return
		}
		t.tracker.Advance(unit.ID, head)
		return
	}

	records, next, err := src.FetchNew(ctx, unit, cursor)
	if err != nil {
		// Transient: cursor stays put, the whole batch is re-attempted
		// next tick rather than advancing past a partial read.
		logger.Debug("fetch for %s failed: %v", unit.ID, err)
		return
	}

	for _, rec := range records {
		msgs, err := norm.Normalise(rec)
		if err != nil {
			logger.Debug("normalise record %s in %s failed: %v", rec.ID, unit.ID, err)
			continue
		}
		for _, msg := range msgs {
			if t.seen.HasSeen(unit.ID, msg.ID) {
				continue
			}
			t.seen.MarkSeen(unit.ID, msg.ID)
			t.emitter.Emit(msg, unit.Label)
		}
	}

	t.tracker.Advance(unit.ID, next)
}
