package querysql

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/query"
)

// =============================================================================
// Generated SQL
// =============================================================================

func TestWhere_EmptyQuery(t *testing.T) {
	sql, params, err := NewCompiler().Where(query.New())
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", sql)
	assert.Empty(t, params)
}

func TestWhere_ParameterizesValues(t *testing.T) {
	q := query.New().
		WithEntityModels("pistols-Challenge").
		WithClause(query.Where("pistols-Challenge", "state", query.Eq, ir.String("Resolved")))

	sql, params, err := NewCompiler().Where(q)
	require.NoError(t, err)

	assert.NotContains(t, sql, "Resolved", "values are never interpolated")
	assert.NotContains(t, sql, "pistols-Challenge")
	assert.Contains(t, sql, "json_extract(m.data, ?) = ?")
	assert.Equal(t, []any{"pistols-Challenge", "pistols-Challenge", "$.state", "Resolved", "$.state"}, params)
}

func TestPage_OrdersByID(t *testing.T) {
	sql, params, err := NewCompiler().Page(query.New(), "0x5", 10)
	require.NoError(t, err)
	assert.Contains(t, sql, "e.id > ?")
	assert.Contains(t, sql, "ORDER BY e.id COLLATE BINARY ASC")
	assert.Contains(t, sql, "LIMIT ?")
	assert.Equal(t, []any{"0x5", 10}, params)

	_, _, err = NewCompiler().Page(query.New(), "", 0)
	assert.Error(t, err)
}

func TestClause_EmptyComposites(t *testing.T) {
	c := NewCompiler()

	sql, _, err := c.Clause(query.CompositeClause{Op: query.OpAnd})
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", sql)

	sql, _, err = c.Clause(query.CompositeClause{Op: query.OpOr})
	require.NoError(t, err)
	assert.Equal(t, "1 = 0", sql)

	_, _, err = c.Clause(query.CompositeClause{Op: "XOR"})
	assert.Error(t, err)
}

func TestClause_KeysSkipsWildcards(t *testing.T) {
	cl := query.Keys(query.FixedLen, nil, ir.Int(1), nil)
	sql, params, err := NewCompiler().Clause(cl)
	require.NoError(t, err)
	assert.Contains(t, sql, "json_array_length(e.keys) = ?")
	assert.Equal(t, []any{2, "$[0]", "0x1"}, params, "key values are normalized felts")
}

func TestClause_CustomAlias(t *testing.T) {
	c := &Compiler{EntityAlias: "ent"}
	sql, _, err := c.Clause(query.Where("pistols-Duelist", "name", query.Gt, ir.String("a")))
	require.NoError(t, err)
	assert.Contains(t, sql, "m.entity_id = ent.id")
}

func TestClause_UnsafeFieldFallsBackToPresence(t *testing.T) {
	sql, params, err := NewCompiler().Clause(query.Where("pistols-Duelist", "name'); DROP", query.Eq, ir.String("x")))
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.Equal(t, []any{"pistols-Duelist"}, params)
}

// =============================================================================
// Prefilter semantics against SQLite
// =============================================================================

type row struct {
	id     string
	keys   string
	models map[string]string
}

func openDB(t *testing.T, rows ...row) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE entities (id TEXT PRIMARY KEY, keys TEXT NOT NULL);
		CREATE TABLE models (entity_id TEXT NOT NULL, model TEXT NOT NULL, data TEXT NOT NULL,
			PRIMARY KEY (entity_id, model));
	`)
	require.NoError(t, err)
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO entities (id, keys) VALUES (?, ?)`, r.id, r.keys)
		require.NoError(t, err)
		for name, data := range r.models {
			_, err := db.Exec(`INSERT INTO models (entity_id, model, data) VALUES (?, ?, ?)`, r.id, name, data)
			require.NoError(t, err)
		}
	}
	return db
}

func selectIDs(t *testing.T, db *sql.DB, q query.Query) []string {
	t.Helper()
	stmt, params, err := NewCompiler().Page(q, "", 100)
	require.NoError(t, err)
	rows, err := db.Query(stmt, params...)
	require.NoError(t, err)
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id, keys string
		require.NoError(t, rows.Scan(&id, &keys))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func TestPrefilter_AgainstSQLite(t *testing.T) {
	db := openDB(t,
		row{"a", `["0x1"]`, map[string]string{
			"pistols-Challenge": `{"duel_id":"0x1","state":"Resolved","timestamps":{"end":100}}`,
		}},
		row{"b", `["0x2"]`, map[string]string{
			"pistols-Challenge": `{"duel_id":"0x2","state":{"InProgress":[]},"timestamps":{"end":0}}`,
		}},
		row{"c", `["0x3"]`, map[string]string{
			"pistols-Duelist": `{"duelist_id":"0x3","name":"0x626f62"}`,
		}},
		row{"d", `["0xa","0xb"]`, map[string]string{
			"pistols-ChallengeRewardsEvent": `{"duel_id":"0xa","duelist_id":"0xb"}`,
		}},
	)

	tests := []struct {
		name string
		q    query.Query
		want []string
	}{
		{"all", query.New(), []string{"a", "b", "c", "d"}},
		{"entity models", query.New().WithEntityModels("pistols-Duelist"), []string{"c"}},
		{
			"eq text keeps variant objects",
			query.New().WithClause(query.Where("pistols-Challenge", "state", query.Eq, ir.String("Resolved"))),
			[]string{"a", "b"},
		},
		{
			"in text",
			query.New().WithClause(query.Where("pistols-Challenge", "state", query.In, ir.Strings("Awaiting"))),
			[]string{"b"},
		},
		{
			"numeric comparison needs the field",
			query.New().WithClause(query.Where("pistols-Challenge", "timestamps.end", query.Gt, ir.Int(50))),
			[]string{"a", "b"},
		},
		{
			"fixed keys",
			query.New().WithClause(query.Keys(query.FixedLen, nil, ir.Int(10), nil)),
			[]string{"d"},
		},
		{
			"variable keys prefix",
			query.New().WithClause(query.Keys(query.VariableLen, nil, ir.String("0x03"))),
			[]string{"c"},
		},
		{
			"or",
			query.New().WithClause(query.Or(
				query.Keys(query.FixedLen, nil, ir.Int(1)),
				query.Keys(query.FixedLen, []string{"pistols-Duelist"}, nil),
			)),
			[]string{"a", "c"},
		},
		{
			"empty in",
			query.New().WithClause(query.Where("pistols-Challenge", "state", query.In, ir.Array{})),
			[]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectIDs(t, db, tt.q))
		})
	}
}
