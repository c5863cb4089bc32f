// Package mirror runs one synchronization session: it owns the engine,
// the entity cache and the domain views, and drives hydration fetches and
// the live subscription against one indexer.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/duelsync/internal/dedup"
	"github.com/roach88/duelsync/internal/engine"
	"github.com/roach88/duelsync/internal/entitystore"
	"github.com/roach88/duelsync/internal/fetcher"
	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/progress"
	"github.com/roach88/duelsync/internal/query"
	"github.com/roach88/duelsync/internal/schema"
	"github.com/roach88/duelsync/internal/subscriber"
	"github.com/roach88/duelsync/internal/views"
)

// ErrNotStarted is returned by operations that need the engine loop
// before Start has been called.
var ErrNotStarted = errors.New("mirror: not started")

// Mirror is one session against one indexer.
//
// Thread-safety: every method may be called from any goroutine. All
// writes to the cache go through the engine loop started by Start.
type Mirror struct {
	id       string
	client   indexer.Client
	registry *model.Registry
	metrics  *metrics.Collector
	pageSize int
	limit    int

	store      *entitystore.Store
	engine     *engine.Engine
	fetcher    *fetcher.Fetcher
	subscriber *subscriber.Subscriber
	dedup      *dedup.Tracker
	progress   *progress.Tracker

	Challenges *views.Challenges
	Duelists   *views.Duelists
	Players    *views.Players
	Bookmarks  *views.Bookmarks
	Rewards    *views.Rewards
	Config     *views.Config
	Seasons    *views.Seasons
	Tokens     *views.Tokens
	detach     []func()

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	runDone chan struct{}
	runErr  error
	closed  bool
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithRegistry validates merged models against r instead of the built-in
// schema.
func WithRegistry(r *model.Registry) Option {
	return func(m *Mirror) {
		m.registry = r
	}
}

// WithMetrics records session metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Mirror) {
		m.metrics = c
	}
}

// WithPageSize sets the rows requested per page.
func WithPageSize(n int) Option {
	return func(m *Mirror) {
		m.pageSize = n
	}
}

// WithLimit caps the rows of each hydration fetch. 0 uses the query's own
// limit; a negative value disables the cap.
func WithLimit(n int) Option {
	return func(m *Mirror) {
		m.limit = n
	}
}

// New creates a session reading from client. The engine loop does not run
// until Start.
func New(client indexer.Client, opts ...Option) (*Mirror, error) {
	m := &Mirror{
		id:       uuid.Must(uuid.NewV7()).String(),
		client:   client,
		pageSize: fetcher.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	if m.registry == nil {
		reg, err := schema.Default()
		if err != nil {
			return nil, fmt.Errorf("load model schema: %w", err)
		}
		m.registry = reg
	}

	m.store = entitystore.New()
	m.engine = engine.New(m.store,
		engine.WithRegistry(m.registry),
		engine.WithMetrics(m.metrics),
	)
	m.fetcher = fetcher.New(client, m.engine, fetcher.WithMetrics(m.metrics))
	m.subscriber = subscriber.New(client, m.engine,
		subscriber.WithMetrics(m.metrics),
		subscriber.WithErrorHandler(func(id string, err error) {
			slog.Error("live subscription ended",
				"session_id", m.id,
				"subscription_id", id,
				"error", err,
			)
		}),
	)
	m.dedup = dedup.New()
	m.progress = progress.New()

	m.Players = views.NewPlayers()
	m.Challenges = views.NewChallenges(m.Players)
	m.Duelists = views.NewDuelists()
	m.Bookmarks = views.NewBookmarks()
	m.Rewards = views.NewRewards()
	m.Config = views.NewConfig()
	m.Seasons = views.NewSeasons()
	m.Tokens = views.NewTokens()
	m.detach = []func(){
		m.Players.Attach(m.store),
		m.Challenges.Attach(m.store),
		m.Duelists.Attach(m.store),
		m.Bookmarks.Attach(m.store),
		m.Rewards.Attach(m.store),
		m.Config.Attach(m.store),
		m.Seasons.Attach(m.store),
		m.Tokens.Attach(m.store),
	}
	return m, nil
}

// ID returns the session id used in logs.
func (m *Mirror) ID() string {
	return m.id
}

// Store returns the entity cache.
func (m *Mirror) Store() *entitystore.Store {
	return m.store
}

// Metrics returns the session's collector.
func (m *Mirror) Metrics() *metrics.Collector {
	return m.metrics
}

// Start runs the engine loop in the background until ctx is cancelled or
// Close is called.
func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return indexer.ErrClosed
	}
	if m.started {
		return nil
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.runDone = make(chan struct{})
	go func() {
		defer close(m.runDone)
		err := m.engine.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.mu.Lock()
			m.runErr = err
			m.mu.Unlock()
		}
	}()

	slog.Info("mirror session started", "session_id", m.id, "page_size", m.pageSize, "limit", m.limit)
	return nil
}

func (m *Mirror) running() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return indexer.ErrClosed
	case !m.started:
		return ErrNotStarted
	}
	return nil
}

// Hydrate runs the requests concurrently and merges each snapshot into
// the cache. Progress is tracked per purpose. The first failure cancels
// the other fetches; snapshots already merged are kept.
func (m *Mirror) Hydrate(ctx context.Context, reqs ...Request) ([]fetcher.Result, error) {
	if err := m.running(); err != nil {
		return nil, err
	}

	results := make([]fetcher.Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			m.progress.Update(req.Purpose, 0, false)
			res, err := m.fetcher.Fetch(gctx, req.Query, fetcher.Options{
				Purpose:    req.Purpose,
				PageSize:   m.pageSize,
				Limit:      m.limit,
				Stream:     req.Stream,
				OnProgress: m.progress.Update,
			})
			results[i] = res
			if err != nil {
				return fmt.Errorf("hydrate %s: %w", req.Purpose, err)
			}
			return nil
		})
	}
	err := g.Wait()

	slog.Info("hydration finished",
		"session_id", m.id,
		"requests", len(reqs),
		"entities", m.store.Len(),
		"progress", m.progress.Progress(),
		"error", err,
	)
	return results, err
}

// FetchByIDs fetches the ids not yet resolved for purpose. build turns the
// new ids into a query. Ids are committed only after their fetch has been
// merged; a failed fetch releases them so a later call retries.
func (m *Mirror) FetchByIDs(ctx context.Context, purpose string, ids []string, build func([]string) query.Query) (fetcher.Result, error) {
	if err := m.running(); err != nil {
		return fetcher.Result{Purpose: purpose}, err
	}

	claimed := m.dedup.Claim(purpose, ids)
	if skipped := len(ids) - len(claimed); skipped > 0 {
		m.metrics.DedupSkipped.WithLabelValues(purpose).Add(float64(skipped))
	}
	if len(claimed) == 0 {
		slog.Debug("nothing new to fetch", "session_id", m.id, "purpose", purpose, "requested", len(ids))
		return fetcher.Result{Purpose: purpose, Generation: m.engine.Generation()}, nil
	}

	res, err := m.fetcher.Fetch(ctx, build(claimed), fetcher.Options{
		Purpose:    purpose,
		PageSize:   m.pageSize,
		Limit:      -1,
		OnProgress: m.progress.Update,
	})
	if err != nil {
		m.dedup.Release(purpose, claimed)
		return res, fmt.Errorf("fetch %s by id: %w", purpose, err)
	}
	m.settle(purpose, claimed, res.Generation)
	return res, nil
}

// settle commits ids fetched at gen. When the generation moved on in the
// meantime (Reset or Follow) the merge was discarded and the ids are
// released instead, so the next call fetches them again.
func (m *Mirror) settle(purpose string, claimed []string, gen int64) bool {
	if cur := m.engine.Generation(); cur != gen {
		m.dedup.Release(purpose, claimed)
		slog.Debug("fetch by id superseded, ids released",
			"session_id", m.id,
			"purpose", purpose,
			"ids", len(claimed),
			"generation", gen,
			"current", cur,
		)
		return false
	}
	m.dedup.Commit(purpose, claimed)
	return true
}

// HydrateDuelists fetches the duelists referenced by cached challenges
// that have not been fetched yet.
func (m *Mirror) HydrateDuelists(ctx context.Context) (fetcher.Result, error) {
	return m.FetchByIDs(ctx, PurposeDuelists, m.Challenges.DuelistIDs(), DuelistsByID)
}

// HydrateChallenges fetches the duels cached duelists are in that are
// neither cached nor fetched yet.
func (m *Mirror) HydrateChallenges(ctx context.Context) (fetcher.Result, error) {
	current := m.Duelists.CurrentDuels()
	cached := newSet(m.Challenges.Query(views.ChallengeFilter{DuelIDs: current}, views.ChallengeColumnTime, views.Ascending))
	missing := make([]string, 0, len(current))
	for _, id := range current {
		if !cached[id] {
			missing = append(missing, id)
		}
	}
	return m.FetchByIDs(ctx, PurposeChallengesByID, missing, ChallengesByID)
}

// HydrateRewards fetches the reward events of the given duelists, skipping
// duelists whose rewards were already fetched.
func (m *Mirror) HydrateRewards(ctx context.Context, duelistIDs []string) (fetcher.Result, error) {
	return m.FetchByIDs(ctx, PurposeRewardsByDuelist, duelistIDs, RewardsByDuelist)
}

// HydrateTokens fetches the configuration of token contracts not fetched
// yet.
func (m *Mirror) HydrateTokens(ctx context.Context, addresses []string) (fetcher.Result, error) {
	return m.FetchByIDs(ctx, PurposeTokensByID, addresses, TokensByID)
}

// CurrentSeason returns the season the config names as current. It is
// false until both the config and that season are cached.
func (m *Mirror) CurrentSeason() (views.SeasonRow, bool) {
	cfg, ok := m.Config.Current()
	if !ok || cfg.CurrentSeasonID == 0 {
		return views.SeasonRow{}, false
	}
	return m.Seasons.Season(cfg.CurrentSeasonID)
}

func newSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Follow makes q the live subscription. Switching to a different query
// advances the generation first, so updates of the old feed still queued
// and fetches still in flight are discarded.
func (m *Mirror) Follow(ctx context.Context, q query.Query) error {
	if err := m.running(); err != nil {
		return err
	}
	if m.following(q) {
		return nil
	}
	gen := m.engine.Advance()
	if err := m.subscriber.Switch(ctx, q); err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	slog.Info("following", "session_id", m.id, "generation", gen, "models", q.EntityModels)
	return nil
}

func (m *Mirror) following(q query.Query) bool {
	cur, ok := m.subscriber.Query()
	if !ok {
		return false
	}
	a, errA := cur.Hash()
	b, errB := q.Hash()
	return errA == nil && errB == nil && a == b
}

// Unfollow closes the live subscription, if any.
func (m *Mirror) Unfollow() {
	m.subscriber.Close()
}

// SubscriptionErr returns the error that ended the last subscription.
func (m *Mirror) SubscriptionErr() error {
	return m.subscriber.Err()
}

// Reset clears the session for an account or network switch: pending
// work is superseded, the subscription is closed and the cache, views,
// dedup ledger and progress are emptied. The indexer is not touched.
func (m *Mirror) Reset(ctx context.Context) error {
	if err := m.running(); err != nil {
		return err
	}
	gen := m.engine.Advance()
	m.subscriber.Close()
	err := m.engine.Submit(ctx, engine.Batch{
		Kind:       engine.BatchReset,
		Generation: gen,
		Source:     "reset",
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	m.dedup.Reset()
	m.progress.Reset()
	slog.Info("mirror session reset", "session_id", m.id, "generation", gen)
	return nil
}

// Sync waits until every batch queued so far has been merged.
func (m *Mirror) Sync(ctx context.Context) error {
	if err := m.running(); err != nil {
		return err
	}
	return m.engine.Flush(ctx)
}

// Progress returns the mean hydration progress in [0,1].
func (m *Mirror) Progress() float64 {
	return m.progress.Progress()
}

// Finished reports whether every hydration purpose has completed.
func (m *Mirror) Finished() bool {
	return m.progress.Finished()
}

// Stats summarizes the session state.
type Stats struct {
	SessionID    string  `json:"session_id"`
	Generation   int64   `json:"generation"`
	Entities     int     `json:"entities"`
	Changes      int64   `json:"changes"`
	Challenges   int     `json:"challenges"`
	Duelists     int     `json:"duelists"`
	Players      int     `json:"players"`
	Bookmarks    int     `json:"bookmarks"`
	Rewards      int     `json:"rewards"`
	Seasons      int     `json:"seasons"`
	Tokens       int     `json:"tokens"`
	Progress     float64 `json:"progress"`
	Subscription string  `json:"subscription,omitempty"`
}

// Stats returns a snapshot of the session counters.
func (m *Mirror) Stats() Stats {
	sub, _ := m.subscriber.Active()
	return Stats{
		SessionID:    m.id,
		Generation:   m.engine.Generation(),
		Entities:     m.store.Len(),
		Changes:      m.store.Seq(),
		Challenges:   m.Challenges.Len(),
		Duelists:     m.Duelists.Len(),
		Players:      m.Players.Len(),
		Bookmarks:    m.Bookmarks.Len(),
		Rewards:      m.Rewards.Len(),
		Seasons:      m.Seasons.Len(),
		Tokens:       m.Tokens.Len(),
		Progress:     m.progress.Progress(),
		Subscription: sub,
	}
}

// Close ends the subscription, lets the engine apply what is queued and
// detaches the views. Safe to call more than once.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	cancel, runDone := m.cancel, m.runDone
	m.mu.Unlock()

	m.subscriber.Close()
	if started {
		m.engine.Stop()
		<-runDone
		cancel()
	}
	for _, detach := range m.detach {
		detach()
	}

	m.mu.Lock()
	err := m.runErr
	m.mu.Unlock()
	slog.Info("mirror session closed", "session_id", m.id, "entities", m.store.Len())
	return err
}
