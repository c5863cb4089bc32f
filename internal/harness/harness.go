package harness

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/duelsync/internal/fixture"
	"github.com/roach88/duelsync/internal/indexer/sqlite"
	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/mirror"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
	"github.com/roach88/duelsync/internal/schema"
	"github.com/roach88/duelsync/internal/views"
)

// DeliveryTimeout bounds how long a write step waits for the live feed.
var DeliveryTimeout = 5 * time.Second

// Harness runs one scenario: a fresh in-memory indexer and a mirror
// session reading from it.
type Harness struct {
	scenario *Scenario
	registry *model.Registry
	indexer  *sqlite.Indexer
	mirror   *mirror.Mirror
	follow   *query.Query
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Open an in-memory indexer and write the seed
//  2. Start a mirror session against it
//  3. Execute the steps in order
//  4. Evaluate the assertions against the final state
//
// A step that fails is recorded in the trace and ends the run; the
// assertions are still evaluated.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	reg, err := schema.Default()
	if err != nil {
		return nil, fmt.Errorf("load model schema: %w", err)
	}

	ix, err := sqlite.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory indexer: %w", err)
	}
	defer ix.Close()

	seed, err := fixture.Records(scenario.Seed, reg)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if len(seed) > 0 {
		if _, err := ix.Write(ctx, seed...); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	opts := []mirror.Option{mirror.WithRegistry(reg), mirror.WithLimit(scenario.Limit)}
	if scenario.PageSize > 0 {
		opts = append(opts, mirror.WithPageSize(scenario.PageSize))
	}
	m, err := mirror.New(ix, opts...)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	if err := m.Start(ctx); err != nil {
		return nil, err
	}

	h := &Harness{scenario: scenario, registry: reg, indexer: ix, mirror: m}
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Kind(), err))
			break
		}
	}
	if err := m.Sync(ctx); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	result.State = h.state()
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, m) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	switch step.Kind() {
	case StepHydrate:
		results, err := h.mirror.Hydrate(ctx, h.requests(step.Hydrate)...)
		for _, res := range results {
			result.AddTrace(TraceEvent{
				Step:      index,
				Kind:      StepHydrate,
				Purpose:   res.Purpose,
				Entities:  len(res.Entities),
				Pages:     res.Pages,
				Truncated: res.Truncated,
			})
		}
		return err

	case StepFetchDuelists:
		res, err := h.mirror.HydrateDuelists(ctx)
		result.AddTrace(TraceEvent{
			Step:     index,
			Kind:     StepFetchDuelists,
			Purpose:  mirror.PurposeDuelists,
			Entities: len(res.Entities),
			Pages:    res.Pages,
		})
		return err

	case StepFetchChallenges:
		res, err := h.mirror.HydrateChallenges(ctx)
		result.AddTrace(TraceEvent{
			Step:     index,
			Kind:     StepFetchChallenges,
			Purpose:  mirror.PurposeChallengesByID,
			Entities: len(res.Entities),
			Pages:    res.Pages,
		})
		return err

	case StepFetchRewards:
		ids := step.FetchRewards
		if slices.Contains(ids, "all") {
			ids = h.mirror.Duelists.Query(views.DuelistFilter{}, views.DuelistColumnName, views.Ascending)
		}
		res, err := h.mirror.HydrateRewards(ctx, ids)
		result.AddTrace(TraceEvent{
			Step:     index,
			Kind:     StepFetchRewards,
			Purpose:  mirror.PurposeRewardsByDuelist,
			Entities: len(res.Entities),
			Pages:    res.Pages,
		})
		return err

	case StepFetchTokens:
		res, err := h.mirror.HydrateTokens(ctx, step.FetchTokens)
		result.AddTrace(TraceEvent{
			Step:     index,
			Kind:     StepFetchTokens,
			Purpose:  mirror.PurposeTokensByID,
			Entities: len(res.Entities),
			Pages:    res.Pages,
		})
		return err

	case StepFollow:
		q := mirror.FollowQuery(h.scenario.TableID)
		if err := h.mirror.Follow(ctx, q); err != nil {
			return err
		}
		h.follow = &q
		result.AddTrace(TraceEvent{Step: index, Kind: StepFollow})
		return h.awaitStream(ctx)

	case StepWrite:
		entities, err := fixture.Records(step.Write, h.registry)
		if err != nil {
			return err
		}
		if _, err := h.indexer.Write(ctx, entities...); err != nil {
			return err
		}
		result.AddTrace(TraceEvent{Step: index, Kind: StepWrite, Entities: len(entities)})
		if h.follow == nil {
			return nil
		}
		return h.awaitDelivery(ctx, entities)

	case StepReset:
		if err := h.mirror.Reset(ctx); err != nil {
			return err
		}
		h.follow = nil
		result.AddTrace(TraceEvent{Step: index, Kind: StepReset})
		return nil
	}
	return fmt.Errorf("unknown step")
}

func (h *Harness) requests(names []string) []mirror.Request {
	var reqs []mirror.Request
	for _, name := range names {
		switch name {
		case "default":
			reqs = append(reqs, mirror.DefaultHydration(h.scenario.TableID)...)
		case mirror.PurposeChallenges:
			reqs = append(reqs, mirror.Request{Purpose: name, Query: mirror.ChallengesQuery(h.scenario.TableID)})
		case mirror.PurposeDuelists:
			reqs = append(reqs, mirror.Request{Purpose: name, Query: mirror.DuelistsQuery()})
		case mirror.PurposePlayers:
			reqs = append(reqs, mirror.Request{Purpose: name, Query: mirror.PlayersQuery()})
		case mirror.PurposeBookmarks:
			reqs = append(reqs, mirror.Request{Purpose: name, Query: mirror.BookmarksQuery("")})
		case mirror.PurposeRewards:
			reqs = append(reqs, mirror.Request{Purpose: name, Query: mirror.RewardsQuery()})
		case mirror.PurposeSeasons:
			reqs = append(reqs, mirror.Request{Purpose: name, Query: mirror.SeasonsQuery()})
		}
	}
	return reqs
}

// awaitStream waits until the indexer has registered the subscription,
// so writes of later steps are delivered.
func (h *Harness) awaitStream(ctx context.Context) error {
	return poll(ctx, func() bool { return h.indexer.OpenStreams() > 0 })
}

// awaitDelivery waits until every written model the live query matches
// is in the cache.
func (h *Harness) awaitDelivery(ctx context.Context, written []model.Entity) error {
	var want []model.Entity
	for _, e := range written {
		if out, ok := query.Apply(*h.follow, e); ok {
			want = append(want, out)
		}
	}
	err := poll(ctx, func() bool {
		for _, e := range want {
			if !h.cached(e) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("live updates not delivered: %w", err)
	}
	return h.mirror.Sync(ctx)
}

func (h *Harness) cached(e model.Entity) bool {
	got, ok := h.mirror.Store().GetEntity(e.ID)
	if !ok {
		return false
	}
	for name, obj := range e.Models {
		have, ok := got.Models[name]
		if !ok {
			return false
		}
		a, errA := ir.MarshalCanonical(obj)
		b, errB := ir.MarshalCanonical(have)
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

func (h *Harness) state() State {
	m := h.mirror
	return State{
		StoreEntities: m.Store().Len(),
		Challenges:    m.Challenges.Entries(),
		Duelists:      m.Duelists.Entries(),
		Players:       m.Players.Entries(),
		Bookmarks:     m.Bookmarks.Entries(),
		Rewards:       m.Rewards.Entries(),
		Seasons:       m.Seasons.Entries(),
		Tokens:        m.Tokens.Entries(),
	}
}

func poll(ctx context.Context, done func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, DeliveryTimeout)
	defer cancel()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for !done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
