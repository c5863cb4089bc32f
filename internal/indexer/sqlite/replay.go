package sqlite

import (
	"context"
	"fmt"
	"log/slog"
)

// Rebuild re-materializes the models table from the ledger: for every
// (entity, model) the value with the highest seq wins. The result is the
// same however often it runs.
func (ix *Indexer) Rebuild(ctx context.Context) (int64, error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("rebuild: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM models`); err != nil {
		return 0, fmt.Errorf("rebuild: clear models: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO models (entity_id, model, data, seq)
		SELECT l.entity_id, l.model, l.data, l.seq
		FROM ledger l
		WHERE l.seq = (
			SELECT MAX(seq) FROM ledger
			WHERE entity_id = l.entity_id AND model = l.model
		)
		ORDER BY l.seq ASC
	`)
	if err != nil {
		return 0, fmt.Errorf("rebuild: materialize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rebuild: rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("rebuild: commit: %w", err)
	}

	slog.Info("models rebuilt from ledger", "models", n)
	return n, nil
}
