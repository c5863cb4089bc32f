package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/duelsync/internal/config"
	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/indexer/sqlite"
	"github.com/roach88/duelsync/internal/indexer/torii"
	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/mirror"
)

// openIndexer connects to the remote indexer when configured, otherwise
// opens the local SQLite indexer.
func openIndexer(cfg config.Config, collector *metrics.Collector) (indexer.Client, func() error, error) {
	if cfg.Remote() {
		c, err := torii.New(cfg.IndexerURL, torii.WithMetrics(collector))
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("using remote indexer", "url", cfg.IndexerURL)
		return c, func() error { return nil }, nil
	}

	ix, err := sqlite.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("using local indexer", "db", cfg.Database)
	return ix, ix.Close, nil
}

// session is a started mirror over the configured indexer.
type session struct {
	cfg     config.Config
	mirror  *mirror.Mirror
	metrics *metrics.Collector
	closeIx func() error
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	collector := metrics.New()
	client, closeIx, err := openIndexer(cfg, collector)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open indexer", err)
	}

	m, err := mirror.New(client,
		mirror.WithMetrics(collector),
		mirror.WithPageSize(cfg.PageSize),
		mirror.WithLimit(cfg.Limit),
	)
	if err != nil {
		closeIx()
		return nil, WrapExitError(ExitCommandError, "failed to create session", err)
	}
	// The engine runs until Close; ctx only bounds the session's fetches.
	if err := m.Start(context.WithoutCancel(ctx)); err != nil {
		m.Close()
		closeIx()
		return nil, WrapExitError(ExitCommandError, "failed to start session", err)
	}
	return &session{cfg: cfg, mirror: m, metrics: collector, closeIx: closeIx}, nil
}

// hydrate runs the startup fetches: the table's challenges, every duelist
// and player, then the duelists the challenges reference.
func (s *session) hydrate(ctx context.Context) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	if _, err := s.mirror.Hydrate(ctx, mirror.DefaultHydration(s.cfg.TableID)...); err != nil {
		return err
	}
	if _, err := s.mirror.HydrateDuelists(ctx); err != nil {
		return fmt.Errorf("referenced duelists: %w", err)
	}
	return s.mirror.Sync(ctx)
}

func (s *session) Close() error {
	err := s.mirror.Close()
	if cerr := s.closeIx(); err == nil {
		err = cerr
	}
	return err
}
