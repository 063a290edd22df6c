package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/chattail-cli/internal/core/domain"
	"github.com/custodia-labs/chattail-cli/internal/core/ports/driven"
)

// --- Test doubles ---

// fakeSource implements driven.Source with function hooks.
type fakeSource struct {
	typ      string
	id       string
	interval time.Duration
	units    []domain.Unit

	headFn  func(unit domain.Unit) (domain.Cursor, error)
	fetchFn func(unit domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error)

	mu    sync.Mutex
	polls int
}

func newFakeSource(units ...domain.Unit) *fakeSource {
	return &fakeSource{
		typ:      "fake",
		id:       "fake-source",
		interval: 10 * time.Millisecond,
		units:    units,
		headFn: func(domain.Unit) (domain.Cursor, error) {
			return 0, nil
		},
		fetchFn: func(_ domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
			return nil, cursor, nil
		},
	}
}

func (f *fakeSource) Type() string                   { return f.typ }
func (f *fakeSource) SourceID() string               { return f.id }
func (f *fakeSource) Validate(context.Context) error { return nil }
func (f *fakeSource) PollInterval() time.Duration    { return f.interval }
func (f *fakeSource) Close() error                   { return nil }

func (f *fakeSource) ListUnits(context.Context) ([]domain.Unit, error) {
	f.mu.Lock()
	f.polls++
	f.mu.Unlock()
	return f.units, nil
}

func (f *fakeSource) HeadCursor(_ context.Context, unit domain.Unit) (domain.Cursor, error) {
	return f.headFn(unit)
}

func (f *fakeSource) FetchNew(_ context.Context, unit domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
	return f.fetchFn(unit, cursor)
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// fakeNormaliser turns each record's payload into one user message.
type fakeNormaliser struct{}

func (fakeNormaliser) SourceType() string { return "fake" }

func (fakeNormaliser) Normalise(rec domain.RawRecord) ([]domain.Message, error) {
	var text string
	if err := json.Unmarshal(rec.Data, &text); err != nil {
		return nil, nil
	}
	return []domain.Message{{
		ID:         rec.ID,
		Role:       domain.RoleUser,
		Text:       text,
		ObservedAt: rec.ObservedAt,
	}}, nil
}

// captureEmitter records emissions in order.
type captureEmitter struct {
	mu     sync.Mutex
	labels []string
	ids    []string
}

func (e *captureEmitter) Emit(msg domain.Message, unitLabel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.labels = append(e.labels, unitLabel)
	e.ids = append(e.ids, msg.ID)
}

func (e *captureEmitter) emitted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

// fakeClock never fires After; Run only progresses via wake or cancellation.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

// record builds a raw record whose payload is a JSON string.
func record(id, text string) domain.RawRecord {
	data, _ := json.Marshal(text)
	return domain.RawRecord{ID: id, Data: data, ObservedAt: time.Now()}
}

func newTestTailer(src driven.Source, emitter driven.Emitter, filter string) *Tailer {
	return NewTailer(TailerConfig{
		Sources:     []driven.Source{src},
		Normalisers: map[string]driven.Normaliser{"fake": fakeNormaliser{}},
		Emitter:     emitter,
		Filter:      filter,
	})
}

// --- Tests ---

func TestTailer_FirstSightSuppression(t *testing.T) {
	unit := domain.Unit{ID: "u1", Label: "alpha"}
	src := newFakeSource(unit)
	src.headFn = func(domain.Unit) (domain.Cursor, error) { return 42, nil }
	src.fetchFn = func(domain.Unit, domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
		t.Fatal("first sight must not fetch")
		return nil, 0, nil
	}

	emitter := &captureEmitter{}
	tailer := newTestTailer(src, emitter, "")

	tailer.pollSource(context.Background(), src)

	assert.Empty(t, emitter.emitted(), "a newly discovered unit emits nothing")
	cursor, ok := tailer.tracker.Get("u1")
	require.True(t, ok)
	assert.Equal(t, domain.Cursor(42), cursor, "cursor starts at the pre-existing end")
}

func TestTailer_EmitsNewRecordsAfterFirstSight(t *testing.T) {
	unit := domain.Unit{ID: "u1", Label: "alpha"}
	src := newFakeSource(unit)
	src.fetchFn = func(_ domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
		if cursor == 0 {
			return []domain.RawRecord{record("m1", "hello"), record("m2", "world")}, 2, nil
		}
		return nil, cursor, nil
	}

	emitter := &captureEmitter{}
	tailer := newTestTailer(src, emitter, "")

	tailer.pollSource(context.Background(), src) // first sight
	tailer.pollSource(context.Background(), src) // tail new content

	assert.Equal(t, []string{"m1", "m2"}, emitter.emitted())
	cursor, _ := tailer.tracker.Get("u1")
	assert.Equal(t, domain.Cursor(2), cursor)
}

func TestTailer_AtMostOnce_OverlappingFetches(t *testing.T) {
	unit := domain.Unit{ID: "u1", Label: "alpha"}
	src := newFakeSource(unit)
	// The source re-reads a boundary region: every fetch returns the same
	// record again alongside anything new.
	fetches := 0
	src.fetchFn = func(_ domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
		fetches++
		switch fetches {
		case 1:
			return []domain.RawRecord{record("m1", "hello")}, 1, nil
		case 2:
			return []domain.RawRecord{record("m1", "hello"), record("m2", "again")}, 2, nil
		default:
			return nil, cursor, nil
		}
	}

	emitter := &captureEmitter{}
	tailer := newTestTailer(src, emitter, "")

	tailer.tracker.Advance("u1", 0) // skip first sight
	tailer.pollSource(context.Background(), src)
	tailer.pollSource(context.Background(), src)
	tailer.pollSource(context.Background(), src)

	assert.Equal(t, []string{"m1", "m2"}, emitter.emitted(),
		"dedup is the at-most-once boundary even when fetches overlap")
}

func TestTailer_DeterministicInterleaving(t *testing.T) {
	// Listed out of label order on purpose.
	units := []domain.Unit{
		{ID: "u-zeta", Label: "zeta"},
		{ID: "u-alpha", Label: "alpha"},
	}
	src := newFakeSource(units...)
	src.fetchFn = func(unit domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
		if cursor != 0 {
			return nil, cursor, nil
		}
		return []domain.RawRecord{
			record(unit.Label+"-1", "first"),
			record(unit.Label+"-2", "second"),
		}, 2, nil
	}

	emitter := &captureEmitter{}
	tailer := newTestTailer(src, emitter, "")

	tailer.tracker.Advance("u-zeta", 0)
	tailer.tracker.Advance("u-alpha", 0)
	tailer.pollSource(context.Background(), src)

	assert.Equal(t, []string{"alpha-1", "alpha-2", "zeta-1", "zeta-2"}, emitter.emitted(),
		"units interleave in label order, each unit's records stay in arrival order")
}

func TestTailer_FetchErrorLeavesStateUntouched(t *testing.T) {
	unit := domain.Unit{ID: "u1", Label: "alpha"}
	src := newFakeSource(unit)
	fail := true
	src.fetchFn = func(_ domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
		if fail {
			return nil, cursor, errors.New("store locked")
		}
		return []domain.RawRecord{record("m1", "after retry")}, cursor + 1, nil
	}

	emitter := &captureEmitter{}
	tailer := newTestTailer(src, emitter, "")
	tailer.tracker.Advance("u1", 7)

	tailer.pollSource(context.Background(), src)
	cursor, _ := tailer.tracker.Get("u1")
	assert.Equal(t, domain.Cursor(7), cursor, "failed fetch must not advance the cursor")
	assert.Empty(t, emitter.emitted())

	fail = false
	tailer.pollSource(context.Background(), src)
	cursor, _ = tailer.tracker.Get("u1")
	assert.Equal(t, domain.Cursor(8), cursor)
	assert.Equal(t, []string{"m1"}, emitter.emitted())
}

func TestTailer_CursorMonotonicity(t *testing.T) {
	unit := domain.Unit{ID: "u1", Label: "alpha"}
	src := newFakeSource(unit)
	src.fetchFn = func(_ domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
		// Grows by one record per tick.
		return []domain.RawRecord{record("m", "x")}, cursor + 1, nil
	}

	tailer := newTestTailer(src, &captureEmitter{}, "")

	var cursors []domain.Cursor
	for i := 0; i < 5; i++ {
		tailer.pollSource(context.Background(), src)
		c, _ := tailer.tracker.Get("u1")
		cursors = append(cursors, c)
	}

	for i := 1; i < len(cursors); i++ {
		assert.GreaterOrEqual(t, cursors[i], cursors[i-1],
			"cursor sequence must be non-decreasing: %v", cursors)
	}
}

func TestTailer_FilterRestrictsUnits(t *testing.T) {
	units := []domain.Unit{
		{ID: "u1", Label: "backend"},
		{ID: "u2", Label: "frontend"},
	}
	src := newFakeSource(units...)
	src.fetchFn = func(unit domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
		if cursor != 0 {
			return nil, cursor, nil
		}
		return []domain.RawRecord{record(unit.Label, "text")}, 1, nil
	}

	emitter := &captureEmitter{}
	tailer := newTestTailer(src, emitter, "BACK")

	tailer.tracker.Advance("u1", 0)
	tailer.tracker.Advance("u2", 0)
	tailer.pollSource(context.Background(), src)

	assert.Equal(t, []string{"backend"}, emitter.emitted())
}

func TestTailer_EmptyTextNeverEmitted(t *testing.T) {
	unit := domain.Unit{ID: "u1", Label: "alpha"}
	src := newFakeSource(unit)
	src.fetchFn = func(_ domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
		if cursor != 0 {
			return nil, cursor, nil
		}
		// The fake normaliser drops unparsable payloads.
		return []domain.RawRecord{{ID: "bad", Data: json.RawMessage(`{`)}}, 1, nil
	}

	emitter := &captureEmitter{}
	tailer := newTestTailer(src, emitter, "")
	tailer.tracker.Advance("u1", 0)

	tailer.pollSource(context.Background(), src)

	assert.Empty(t, emitter.emitted())
	cursor, _ := tailer.tracker.Get("u1")
	assert.Equal(t, domain.Cursor(1), cursor, "cursor advances past dropped records")
}

func TestTailer_RunStopsOnCancellation(t *testing.T) {
	src := newFakeSource()
	tailer := NewTailer(TailerConfig{
		Sources:     []driven.Source{src},
		Normalisers: map[string]driven.Normaliser{"fake": fakeNormaliser{}},
		Emitter:     &captureEmitter{},
		Clock:       &fakeClock{now: time.Now()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tailer.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.pollCount(), "the pass before the boundary still completes")
}

func TestTailer_WakeTriggersImmediateTick(t *testing.T) {
	src := newFakeSource()
	wake := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewTailer(TailerConfig{
		Sources:     []driven.Source{src},
		Normalisers: map[string]driven.Normaliser{"fake": fakeNormaliser{}},
		Emitter:     &captureEmitter{},
		Clock:       &fakeClock{now: time.Now()},
		Wake:        wake,
	})

	done := make(chan error, 1)
	go func() { done <- tailer.Run(ctx) }()

	// The fake clock never fires, so a second poll can only come from the
	// wake channel.
	require.Eventually(t, func() bool { return src.pollCount() >= 1 }, time.Second, time.Millisecond)
	wake <- struct{}{}
	require.Eventually(t, func() bool { return src.pollCount() >= 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
