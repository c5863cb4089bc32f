package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duelsync/internal/entitystore"
	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/schema"
	"github.com/roach88/duelsync/internal/testutil"
)

// startEngine runs a fresh engine until the test ends.
func startEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e := New(entitystore.New(), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-e.Done()
	})
	return e
}

// =============================================================================
// Queue
// =============================================================================

func TestBatchQueue_FIFO(t *testing.T) {
	q := newBatchQueue()
	for _, src := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(Batch{Kind: BatchBarrier, Source: src}))
	}

	for _, want := range []string{"A", "B", "C"} {
		b, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, b.Source)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestBatchQueue_ClosedRejectsEnqueue(t *testing.T) {
	q := newBatchQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(Batch{Kind: BatchBarrier}))
	_, open := <-q.Wait()
	assert.False(t, open, "closing wakes waiters")
}

func TestBatchQueue_Drain(t *testing.T) {
	q := newBatchQueue()
	q.Enqueue(Batch{Source: "a"})
	q.Enqueue(Batch{Source: "b"})

	drained := q.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, q.Len())
}

// =============================================================================
// Clock
// =============================================================================

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	assert.Equal(t, int64(100), NewClockAt(100).Current())
}

// =============================================================================
// Merging
// =============================================================================

func TestSubmit_SetAndUpdate(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()

	duel := testutil.Challenge(1, testutil.ChallengeOpts{State: "Awaiting"})
	require.NoError(t, e.Submit(ctx, Batch{Kind: BatchSet, Entities: []model.Entity{duel}}))

	round := testutil.Entity(model.Round, ir.Object{"duel_id": ir.String("0x1"), "state": ir.String("Commit")}, ir.String("0x1"))
	require.NoError(t, e.Submit(ctx, Batch{Kind: BatchUpdate, Entities: []model.Entity{round}}))

	got, ok := e.Store().GetEntity(duel.ID)
	require.True(t, ok)
	assert.Equal(t, []string{model.Challenge, model.Round}, got.Models.Names())
}

func TestEnqueue_AppliedInOrder(t *testing.T) {
	e := startEngine(t)

	for i := int64(1); i <= 20; i++ {
		upd := testutil.Challenge(7, testutil.ChallengeOpts{Start: i})
		require.True(t, e.Enqueue(Batch{Kind: BatchUpdate, Entities: []model.Entity{upd}}))
	}
	require.NoError(t, e.Flush(context.Background()))

	got, ok := e.Store().GetEntity(testutil.Challenge(7, testutil.ChallengeOpts{}).ID)
	require.True(t, ok)
	rec, err := model.DecodeChallenge(got)
	require.NoError(t, err)
	assert.Equal(t, int64(20), rec.TimestampStart, "last enqueued update wins")
}

func TestReset_ClearsStore(t *testing.T) {
	m := metrics.New()
	e := startEngine(t, WithMetrics(m))
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, Batch{Kind: BatchSet, Entities: []model.Entity{testutil.Duelist(1, "Bob", 10)}}))
	assert.Equal(t, 1.0, m.Value("duelsync_store_entities"))

	require.NoError(t, e.Submit(ctx, Batch{Kind: BatchReset}))
	assert.Equal(t, 0, e.Store().Len())
	assert.Equal(t, 0.0, m.Value("duelsync_store_entities"))
}

// =============================================================================
// Generations
// =============================================================================

func TestSubmit_StaleGenerationDiscarded(t *testing.T) {
	m := metrics.New()
	e := startEngine(t, WithMetrics(m))
	ctx := context.Background()

	gen := e.Generation()
	e.Advance()

	err := e.Submit(ctx, Batch{
		Kind:       BatchSet,
		Entities:   []model.Entity{testutil.Duelist(1, "Ghost", 1)},
		Generation: gen,
		Source:     "duelists",
	})
	require.Error(t, err)
	assert.True(t, IsStaleError(err))
	assert.Equal(t, 0, e.Store().Len(), "superseded page must not resurrect state")
	assert.Equal(t, 1.0, m.Value("duelsync_stale_batches_discarded_total"))
}

func TestSubmit_CurrentGenerationApplied(t *testing.T) {
	e := startEngine(t, WithClock(NewClockAt(5)))

	err := e.Submit(context.Background(), Batch{
		Kind:       BatchSet,
		Entities:   []model.Entity{testutil.Duelist(1, "Bob", 1)},
		Generation: e.Generation(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Store().Len())
}

// =============================================================================
// Malformed models
// =============================================================================

func TestSubmit_DropsMalformedModels(t *testing.T) {
	m := metrics.New()
	e := startEngine(t, WithRegistry(schema.MustDefault()), WithMetrics(m))

	good := testutil.Duelist(3, "Alice", 10)
	bad := testutil.Entity(model.Scoreboard, ir.Object{"score": ir.Object{}}, testutil.Felt(3)) // no duelist_id
	onlyBad := testutil.Entity(model.Challenge, ir.Object{"duel_id": ir.String("not-a-number")}, testutil.Felt(9))

	err := e.Submit(context.Background(), Batch{
		Kind:     BatchSet,
		Entities: []model.Entity{testutil.Merge(good, bad), onlyBad},
	})
	require.NoError(t, err, "malformed data never fails the batch")

	got, ok := e.Store().GetEntity(good.ID)
	require.True(t, ok)
	assert.Equal(t, []string{model.Duelist}, got.Models.Names())

	_, ok = e.Store().GetEntity(onlyBad.ID)
	assert.False(t, ok)

	assert.Equal(t, 1.0, m.Value("duelsync_malformed_models_dropped_total{model=pistols-Scoreboard}"))
	assert.Equal(t, 1.0, m.Value("duelsync_malformed_models_dropped_total{model=pistols-Challenge}"))
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestRun_StopDrainsQueue(t *testing.T) {
	e := New(entitystore.New())
	for i := int64(1); i <= 3; i++ {
		require.True(t, e.Enqueue(Batch{Kind: BatchSet, Entities: []model.Entity{testutil.Duelist(i, "d", i)}}))
	}
	e.Stop()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 3, e.Store().Len())
	assert.False(t, e.Enqueue(Batch{Kind: BatchBarrier}))
}

func TestRun_CancelRejectsPending(t *testing.T) {
	e := New(entitystore.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- e.Submit(context.Background(), Batch{Kind: BatchSet, Source: "late"})
	}()
	// let Submit enqueue before the loop observes cancellation
	require.Eventually(t, func() bool { return e.QueueLen() == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, e.Run(ctx), context.Canceled)

	select {
	case err := <-errc:
		assert.True(t, IsStoppedError(err))
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after the engine stopped")
	}
}

func TestSubmit_AfterStop(t *testing.T) {
	e := New(entitystore.New())
	e.Stop()

	err := e.Submit(context.Background(), Batch{Kind: BatchBarrier})
	assert.True(t, IsStoppedError(err))
}

func TestSubmit_InvalidKind(t *testing.T) {
	e := startEngine(t)

	err := e.Submit(context.Background(), Batch{Kind: BatchKind(42)})
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalidBatch, re.Code)
}
