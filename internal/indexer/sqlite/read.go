package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

// GetPage implements indexer.Client.
//
// The cursor is the id of the last entity scanned. Rows come in entity-id
// order; each candidate selected by the SQL prefilter is checked with
// query.Apply before it counts toward the page.
func (ix *Indexer) GetPage(ctx context.Context, q query.Query, cursor string) (indexer.Page, error) {
	if ix.isClosed() {
		return indexer.Page{}, indexer.ErrClosed
	}
	if err := query.Validate(q); err != nil {
		return indexer.Page{}, err
	}
	size := q.Limit
	if size <= 0 {
		size = query.DefaultLimit
	}

	var page indexer.Page
	after := cursor
	for {
		candidates, err := ix.scan(ctx, q, after, size)
		if err != nil {
			return indexer.Page{}, err
		}
		if len(candidates) == 0 {
			return page, nil
		}
		if err := ix.loadModels(ctx, candidates); err != nil {
			return indexer.Page{}, err
		}

		for i, e := range candidates {
			after = e.ID
			out, ok := query.Apply(q, e)
			if !ok {
				continue
			}
			page.Rows = append(page.Rows, out)
			if len(page.Rows) == size {
				// More rows may follow unless this was the last candidate
				// of a short scan.
				if i < len(candidates)-1 || len(candidates) == size {
					page.NextCursor = after
				}
				return page, nil
			}
		}
		if len(candidates) < size {
			return page, nil
		}
	}
}

// scan selects up to batch candidate entities after the cursor.
func (ix *Indexer) scan(ctx context.Context, q query.Query, after string, batch int) ([]model.Entity, error) {
	stmt, params, err := ix.compiler.Page(q, after, batch)
	if err != nil {
		return nil, err
	}
	rows, err := ix.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var id, keys string
		if err := rows.Scan(&id, &keys); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		k, err := unmarshalKeys(keys)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", id, err)
		}
		out = append(out, model.Entity{ID: id, Keys: k, Models: make(model.Bag)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

// loadModels fills the model bags of entities in a single query.
func (ix *Indexer) loadModels(ctx context.Context, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	byID := make(map[string]model.Entity, len(entities))
	params := make([]any, len(entities))
	for i, e := range entities {
		byID[e.ID] = e
		params[i] = e.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(entities)), ", ")

	rows, err := ix.db.QueryContext(ctx, `
		SELECT entity_id, model, data FROM models
		WHERE entity_id IN (`+placeholders+`)
		ORDER BY entity_id COLLATE BINARY ASC, model COLLATE BINARY ASC
	`, params...)
	if err != nil {
		return fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, data string
		if err := rows.Scan(&id, &name, &data); err != nil {
			return fmt.Errorf("scan model: %w", err)
		}
		obj, err := unmarshalModel(data)
		if err != nil {
			return fmt.Errorf("%s of %s: %w", name, id, err)
		}
		byID[id].Models[name] = obj
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate models: %w", err)
	}
	return nil
}

// Entity returns the materialized state of one entity.
func (ix *Indexer) Entity(ctx context.Context, id string) (model.Entity, bool, error) {
	var keys string
	err := ix.db.QueryRowContext(ctx, `SELECT keys FROM entities WHERE id = ?`, id).Scan(&keys)
	if err == sql.ErrNoRows {
		return model.Entity{}, false, nil
	}
	if err != nil {
		return model.Entity{}, false, fmt.Errorf("read entity %s: %w", id, err)
	}
	k, err := unmarshalKeys(keys)
	if err != nil {
		return model.Entity{}, false, fmt.Errorf("entity %s: %w", id, err)
	}
	e := model.Entity{ID: id, Keys: k, Models: make(model.Bag)}
	if err := ix.loadModels(ctx, []model.Entity{e}); err != nil {
		return model.Entity{}, false, err
	}
	return e, true, nil
}

// LedgerEntry is one appended model write.
type LedgerEntry struct {
	Seq      int64
	EntityID string
	Model    string
	Data     string
}

// Ledger returns up to limit ledger entries with seq greater than after,
// in seq order. Returns an empty slice (not nil) when there are none.
func (ix *Indexer) Ledger(ctx context.Context, after int64, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	rows, err := ix.db.QueryContext(ctx, `
		SELECT seq, entity_id, model, data FROM ledger
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	entries := []LedgerEntry{}
	for rows.Next() {
		var le LedgerEntry
		if err := rows.Scan(&le.Seq, &le.EntityID, &le.Model, &le.Data); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		entries = append(entries, le)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return entries, nil
}

// Stats counts the rows of each table.
type Stats struct {
	Entities int64 `json:"entities"`
	Models   int64 `json:"models"`
	Ledger   int64 `json:"ledger"`
	LastSeq  int64 `json:"last_seq"`
}

// Stats returns the current table sizes.
func (ix *Indexer) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := ix.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM models),
			(SELECT COUNT(*) FROM ledger),
			(SELECT COALESCE(MAX(seq), 0) FROM ledger)
	`).Scan(&st.Entities, &st.Models, &st.Ledger, &st.LastSeq)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
