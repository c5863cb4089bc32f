// Package fetcher hydrates the cache: it pages through an indexer query and
// hands the accumulated snapshot to the engine.
package fetcher

import (
	"context"
	"log/slog"

	"github.com/roach88/duelsync/internal/engine"
	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

// DefaultPageSize is the number of rows requested per page.
const DefaultPageSize = 100

// Sink receives merged batches. *engine.Engine implements it.
type Sink interface {
	Submit(ctx context.Context, b engine.Batch) error
	Generation() int64
}

// Options tune one fetch.
type Options struct {
	// Purpose labels the fetch in progress reports, logs and metrics.
	Purpose string

	// PageSize is the number of rows per request (default DefaultPageSize).
	PageSize int

	// Limit caps the total number of rows. 0 uses the query's Limit;
	// a negative value disables the cap.
	Limit int

	// Stream merges every page as it arrives instead of one snapshot at
	// the end.
	Stream bool

	OnPage     func(entities []model.Entity, page int)
	OnProgress func(purpose string, page int, finished bool)
}

// Result describes a completed fetch.
type Result struct {
	Purpose    string
	Pages      int
	Entities   []model.Entity // deduplicated, in first-seen order
	Truncated  bool           // the row cap was reached; data may be incomplete
	Generation int64
}

// IDs returns the ids of the fetched entities.
func (r Result) IDs() []string {
	ids := make([]string, len(r.Entities))
	for i, e := range r.Entities {
		ids[i] = e.ID
	}
	return ids
}

// Fetcher runs paginated fetches against one indexer.
//
// Thread-safety: a Fetcher is stateless between calls; concurrent Fetch
// calls are safe.
type Fetcher struct {
	client  indexer.Client
	sink    Sink
	metrics *metrics.Collector
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMetrics records page and truncation counts on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// New creates a Fetcher reading from client and merging into sink.
func New(client indexer.Client, sink Sink, opts ...Option) *Fetcher {
	f := &Fetcher{client: client, sink: sink}
	for _, opt := range opts {
		opt(f)
	}
	if f.metrics == nil {
		f.metrics = metrics.New()
	}
	return f
}

// Fetch requests pages until one comes back short, the cursor is exhausted
// or the row cap is reached, then merges the snapshot with SetEntities
// semantics. The fetch is pinned to the sink's generation at the time of
// the call; if the generation moves on, the fetch stops and nothing more
// is merged.
//
// A failed page aborts the fetch with a *Error. With Stream set, pages
// merged before the failure are kept.
func (f *Fetcher) Fetch(ctx context.Context, q query.Query, opts Options) (Result, error) {
	res := Result{Purpose: opts.Purpose, Generation: f.sink.Generation()}

	if err := query.Validate(q); err != nil {
		return res, &Error{Kind: KindInvalidQuery, Purpose: opts.Purpose, Err: err}
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	limit := opts.Limit
	if limit == 0 {
		limit = q.Limit
	}
	if limit > 0 && pageSize > limit {
		pageSize = limit
	}
	pageQuery := q.WithLimit(pageSize)

	acc := newAccumulator()
	cursor := ""
	total := 0

	for page := 1; ; page++ {
		pg, err := f.client.GetPage(ctx, pageQuery, cursor)
		if err != nil {
			f.metrics.FetchFailures.WithLabelValues(opts.Purpose).Inc()
			slog.Warn("fetch aborted",
				"purpose", opts.Purpose,
				"page", page,
				"rows_so_far", total,
				"error", err,
			)
			return res, &Error{Kind: KindTransport, Purpose: opts.Purpose, Page: page, Err: err}
		}
		f.metrics.PagesFetched.WithLabelValues(opts.Purpose).Inc()
		res.Pages = page

		if gen := f.sink.Generation(); gen != res.Generation {
			f.metrics.StaleBatches.Inc()
			slog.Debug("fetch superseded, discarding page",
				"purpose", opts.Purpose,
				"page", page,
				"generation", res.Generation,
				"current", gen,
			)
			return res, &Error{
				Kind:    KindSuperseded,
				Purpose: opts.Purpose,
				Page:    page,
				Err:     engine.NewStaleError(opts.Purpose, res.Generation, gen),
			}
		}

		rows := pg.Rows
		if limit > 0 && total+len(rows) >= limit {
			rows = rows[:limit-total]
			res.Truncated = true
		}
		total += len(rows)
		acc.add(rows)

		if opts.OnPage != nil {
			opts.OnPage(rows, page)
		}

		if opts.Stream && len(rows) > 0 {
			err := f.sink.Submit(ctx, engine.Batch{
				Kind:       engine.BatchSet,
				Entities:   rows,
				Generation: res.Generation,
				Source:     opts.Purpose,
			})
			if err != nil {
				return res, mergeError(opts.Purpose, page, err)
			}
		}

		finished := res.Truncated || len(pg.Rows)+pg.Dropped < pageSize || pg.NextCursor == ""
		if finished {
			break
		}
		if opts.OnProgress != nil {
			opts.OnProgress(opts.Purpose, page, false)
		}
		cursor = pg.NextCursor
	}

	res.Entities = acc.entities()

	if !opts.Stream {
		err := f.sink.Submit(ctx, engine.Batch{
			Kind:       engine.BatchSet,
			Entities:   res.Entities,
			Generation: res.Generation,
			Source:     opts.Purpose,
		})
		if err != nil {
			return res, mergeError(opts.Purpose, res.Pages, err)
		}
	}

	if res.Truncated {
		f.metrics.Truncations.WithLabelValues(opts.Purpose).Inc()
		slog.Warn("fetch reached its row limit, result may be incomplete",
			"purpose", opts.Purpose,
			"limit", limit,
			"pages", res.Pages,
		)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(opts.Purpose, res.Pages, true)
	}

	slog.Debug("fetch complete",
		"purpose", opts.Purpose,
		"pages", res.Pages,
		"entities", len(res.Entities),
		"truncated", res.Truncated,
	)
	return res, nil
}

// accumulator merges rows across pages. A repeated id merges model by
// model, so the last occurrence of each model wins.
type accumulator struct {
	order []string
	byID  map[string]model.Entity
}

func newAccumulator() *accumulator {
	return &accumulator{byID: make(map[string]model.Entity)}
}

func (a *accumulator) add(rows []model.Entity) {
	for _, row := range rows {
		cur, ok := a.byID[row.ID]
		if !ok {
			a.order = append(a.order, row.ID)
			a.byID[row.ID] = row.Clone()
			continue
		}
		if len(row.Keys) > 0 {
			cur.Keys = row.Clone().Keys
		}
		if cur.Models == nil {
			cur.Models = make(model.Bag, len(row.Models))
		}
		for name, obj := range row.Models {
			cur.Models[name] = obj.Clone()
		}
		a.byID[row.ID] = cur
	}
}

func (a *accumulator) entities() []model.Entity {
	out := make([]model.Entity, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.byID[id])
	}
	return out
}
