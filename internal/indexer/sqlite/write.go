package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
)

// Write appends every model of every entity to the ledger and updates the
// materialized state, in one transaction. Entities must carry their key
// tuple; the id is derived from it, and a mismatching ID is rejected.
//
// After commit, each entity is published to matching subscribers with
// only the models written here.
//
// Returns the ledger seq of the last write.
func (ix *Indexer) Write(ctx context.Context, entities ...model.Entity) (int64, error) {
	if ix.isClosed() {
		return 0, indexer.ErrClosed
	}

	written := make([]model.Entity, 0, len(entities))
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var lastSeq int64
	for _, e := range entities {
		if len(e.Keys) == 0 {
			return 0, fmt.Errorf("write: entity %q has no keys", e.ID)
		}
		id, err := ir.EntityID(e.Keys...)
		if err != nil {
			return 0, fmt.Errorf("write: %w", err)
		}
		if e.ID != "" && e.ID != id {
			return 0, fmt.Errorf("write: entity id %s does not match its keys (%s)", e.ID, id)
		}
		if len(e.Models) == 0 {
			continue
		}
		keysJSON, err := marshalKeys(e.Keys)
		if err != nil {
			return 0, fmt.Errorf("write: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, keys) VALUES (?, ?)
			ON CONFLICT(id) DO NOTHING
		`, id, keysJSON); err != nil {
			return 0, fmt.Errorf("write entity %s: %w", id, err)
		}

		for _, name := range e.Models.Names() {
			data, err := marshalModel(e.Models[name])
			if err != nil {
				return 0, fmt.Errorf("write %s of %s: %w", name, id, err)
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO ledger (entity_id, model, data) VALUES (?, ?, ?)
			`, id, name, data)
			if err != nil {
				return 0, fmt.Errorf("append ledger %s of %s: %w", name, id, err)
			}
			seq, err := res.LastInsertId()
			if err != nil {
				return 0, fmt.Errorf("append ledger: seq: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO models (entity_id, model, data, seq) VALUES (?, ?, ?, ?)
				ON CONFLICT(entity_id, model) DO UPDATE SET data = excluded.data, seq = excluded.seq
			`, id, name, data, seq); err != nil {
				return 0, fmt.Errorf("materialize %s of %s: %w", name, id, err)
			}
			lastSeq = seq
		}

		out := e.Clone()
		out.ID = id
		written = append(written, out)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write: commit: %w", err)
	}

	slog.Debug("ledger write", "entities", len(written), "seq", lastSeq)
	for _, e := range written {
		if err := ix.publish(ctx, e); err != nil {
			slog.Warn("publish failed", "entity", e.ID, "error", err)
		}
	}
	return lastSeq, nil
}
