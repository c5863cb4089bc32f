package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
)

func challengeQuery() Query {
	return New().
		WithEntityModels(model.Challenge, model.Round).
		WithClause(And(
			Where(model.Challenge, "table_id", Eq, ir.String("0x4c6f72647331")),
			Where(model.Challenge, "state", In, ir.Strings("Awaiting", "InProgress")),
		)).
		WithLimit(500)
}

// =============================================================================
// Builders
// =============================================================================

func TestBuilders_AreValueCopies(t *testing.T) {
	base := New().WithEntityModels(model.Challenge)
	narrowed := base.WithLimit(10).WithHashedKeys()

	assert.Equal(t, DefaultLimit, base.Limit)
	assert.False(t, base.IncludeHashedKeys)
	assert.Equal(t, 10, narrowed.Limit)
	assert.True(t, narrowed.IncludeHashedKeys)
}

func TestAndOr_UnwrapSingleAndDropNil(t *testing.T) {
	only := Where(model.Challenge, "winner", Eq, ir.Int(1))
	assert.Equal(t, only, And(nil, only))

	c := Or(only, only)
	comp, ok := c.(CompositeClause)
	require.True(t, ok)
	assert.Equal(t, OpOr, comp.Op)
	assert.Len(t, comp.Clauses, 2)
}

func TestQueryModels(t *testing.T) {
	q := New().
		WithEntityModels(model.Round).
		WithClause(Or(
			Where(model.Challenge, "winner", Eq, ir.Int(1)),
			Keys(FixedLen, []string{model.Scoreboard}, ir.Int(1)),
		))
	assert.Equal(t, []string{model.Challenge, model.Round, model.Scoreboard}, q.Models())
}

// =============================================================================
// Wire shape
// =============================================================================

func TestMarshalJSON_WireShape(t *testing.T) {
	q := New().
		WithEntityModels(model.ChallengeRewards).
		WithClause(Or(
			Keys(FixedLen, []string{model.ChallengeRewards}, nil, ir.String("0x7")),
			Where(model.Challenge, "state", Eq, ir.String("Resolved")),
		)).
		WithLimit(100)

	data, err := json.Marshal(q)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"entityModels": ["pistols-ChallengeRewardsEvent"],
		"clause": {
			"op": "OR",
			"children": [
				{"keys": [null, "0x7"], "models": ["pistols-ChallengeRewardsEvent"], "pattern": "FixedLen"},
				{"model": "pistols-Challenge", "field": "state", "op": "Eq", "value": "Resolved"}
			]
		},
		"limit": 100,
		"includeHashedKeys": false
	}`, string(data))
}

func TestMarshalJSON_NilClause(t *testing.T) {
	data, err := json.Marshal(Query{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entityModels":[],"clause":null,"limit":0,"includeHashedKeys":false}`, string(data))
}

func TestParse_RoundTrip(t *testing.T) {
	q := challengeQuery().WithHashedKeys()

	data, err := json.Marshal(q)
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, q, back)
}

func TestParse_KeysWildcards(t *testing.T) {
	q, err := Parse([]byte(`{"entityModels":[],"clause":{"keys":[null,"0x2"],"models":[],"pattern":"VariableLen"},"limit":5,"includeHashedKeys":true}`))
	require.NoError(t, err)

	kc, ok := q.Clause.(KeysClause)
	require.True(t, ok)
	assert.Nil(t, kc.Keys[0])
	assert.Equal(t, ir.String("0x2"), kc.Keys[1])
	assert.Equal(t, VariableLen, kc.Pattern)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`[]`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"limit":1.5}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"clause":{"children":"nope"}}`))
	assert.Error(t, err)
}

// =============================================================================
// Hash
// =============================================================================

func TestHash_StableAcrossBuilderOrder(t *testing.T) {
	a := New().WithLimit(10).WithEntityModels(model.Challenge).WithHashedKeys()
	b := New().WithHashedKeys().WithEntityModels(model.Challenge).WithLimit(10)

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHash_ChangesWithParameters(t *testing.T) {
	table := func(id string) Query {
		return New().WithClause(Where(model.Challenge, "table_id", Eq, ir.String(id)))
	}

	h1, err := table("Season1").Hash()
	require.NoError(t, err)
	h2, err := table("Season2").Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.Len(t, h1, 64)
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		problems []string
	}{
		{"empty query is valid", Query{}, nil},
		{"valid nested", challengeQuery(), nil},
		{"negative limit", Query{Limit: -1}, []string{"limit -1 is negative"}},
		{"unknown op", New().WithClause(Where(model.Challenge, "x", Op("Like"), ir.String("a"))), []string{`clause: unknown operator "Like"`}},
		{"in without array", New().WithClause(Where(model.Challenge, "x", In, ir.Int(1))), []string{"clause: In requires an array value"}},
		{"empty names", New().WithClause(Where("", "", Eq, ir.Int(1))), []string{"clause: empty model name", "clause: empty field name"}},
		{"bad pattern nested", New().WithClause(Or(Keys("Prefix", nil, ir.Int(1)), Keys(FixedLen, nil, ir.Int(2)))), []string{`clause.children[0]: unknown pattern "Prefix"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if tt.problems == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.problems, verr.Problems)
		})
	}
}

// =============================================================================
// Match / Apply
// =============================================================================

func testEntity(t *testing.T, keys []ir.Value, bag model.Bag) model.Entity {
	t.Helper()
	e, err := model.NewEntity(keys, bag)
	require.NoError(t, err)
	return e
}

func TestMatch_Member(t *testing.T) {
	e := testEntity(t, []ir.Value{ir.Int(1)}, model.Bag{
		model.Challenge: ir.Object{
			"duel_id":    ir.String("0x1"),
			"state":      ir.String("Resolved"),
			"winner":     ir.Int(2),
			"timestamps": ir.Object{"end": ir.Int(100)},
		},
	})

	tests := []struct {
		name   string
		clause Clause
		want   bool
	}{
		{"eq hex vs int", Where(model.Challenge, "duel_id", Eq, ir.Int(1)), true},
		{"neq", Where(model.Challenge, "winner", Neq, ir.Int(2)), false},
		{"gt nested path", Where(model.Challenge, "timestamps.end", Gt, ir.Int(99)), true},
		{"lte", Where(model.Challenge, "timestamps.end", Lte, ir.Int(99)), false},
		{"in", Where(model.Challenge, "state", In, ir.Strings("Resolved", "Draw")), true},
		{"not in", Where(model.Challenge, "state", NotIn, ir.Strings("Resolved")), false},
		{"missing model", Where(model.Round, "state", Eq, ir.String("Finished")), false},
		{"missing field", Where(model.Challenge, "quote", Eq, ir.String("")), false},
		{"gt on incomparable", Where(model.Challenge, "state", Gt, ir.Int(1)), false},
		{"variant object equals tag", Where(model.Challenge, "state", Eq, ir.Object{"Resolved": ir.Null{}}), true},
		{"empty and", CompositeClause{Op: OpAnd}, true},
		{"empty or", CompositeClause{Op: OpOr}, false},
		{"nil", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.clause, e))
		})
	}
}

func TestMatch_Keys(t *testing.T) {
	e := testEntity(t, []ir.Value{ir.String("0x1"), ir.Int(7)}, model.Bag{
		model.ChallengeRewards: ir.Object{"duel_id": ir.Int(1), "duelist_id": ir.Int(7)},
	})

	tests := []struct {
		name   string
		clause KeysClause
		want   bool
	}{
		{"fixed exact", Keys(FixedLen, nil, ir.Int(1), ir.String("0x7")), true},
		{"fixed wildcard", Keys(FixedLen, nil, nil, ir.Int(7)), true},
		{"fixed wrong length", Keys(FixedLen, nil, ir.Int(1)), false},
		{"variable prefix", Keys(VariableLen, nil, ir.Int(1)), true},
		{"variable too long", Keys(VariableLen, nil, ir.Int(1), ir.Int(7), ir.Int(0)), false},
		{"model filter hit", Keys(VariableLen, []string{model.ChallengeRewards}, ir.Int(1)), true},
		{"model filter miss", Keys(VariableLen, []string{model.Challenge}, ir.Int(1)), false},
		{"wrong key", Keys(FixedLen, nil, ir.Int(2), ir.Int(7)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.clause, e))
		})
	}
}

func TestApply_NarrowsModels(t *testing.T) {
	e := testEntity(t, []ir.Value{ir.Int(5)}, model.Bag{
		model.Duelist:    ir.Object{"duelist_id": ir.Int(5)},
		model.Scoreboard: ir.Object{"duelist_id": ir.Int(5)},
	})

	out, ok := Apply(New().WithEntityModels(model.Scoreboard), e)
	require.True(t, ok)
	assert.Equal(t, []string{model.Scoreboard}, out.Models.Names())
	assert.Nil(t, out.Keys)

	out, ok = Apply(New().WithHashedKeys(), e)
	require.True(t, ok)
	assert.Len(t, out.Models, 2)
	assert.Equal(t, e.Keys, out.Keys)

	_, ok = Apply(New().WithEntityModels(model.Round), e)
	assert.False(t, ok, "no requested model left")
}
