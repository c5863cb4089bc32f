package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
)

func TestDefault_AllModelsRegistered(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	for _, name := range []string{
		model.Challenge, model.Round, model.Duelist, model.DuelistChallenge,
		model.DuelistMemorial, model.Scoreboard, model.Player, model.PlayerOnline,
		model.PlayerBookmarkEvent, model.ChallengeRewards,
		model.Config, model.SeasonConfig, model.Leaderboard, model.TokenConfig,
	} {
		_, ok := r.Spec(name)
		assert.True(t, ok, "missing %s", name)
	}

	spec, _ := r.Spec(model.PlayerBookmarkEvent)
	assert.Equal(t, []string{"player_address", "target_address", "target_id"}, spec.Keys)

	season, _ := r.Spec(model.SeasonConfig)
	board, _ := r.Spec(model.Leaderboard)
	assert.Equal(t, season.Keys, board.Keys, "a season and its leaderboard share one entity")
}

func TestDefault_FlagsMissingKeyField(t *testing.T) {
	r := MustDefault()

	e := model.Entity{ID: "x", Models: model.Bag{
		model.Duelist: ir.Object{"name": ir.String("0x426f62")},
	}}
	err := r.Check(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duelist_id")
}

func TestCompile_InvalidKind(t *testing.T) {
	src := `
#Kind: "felt" | "int" | "bool" | "string" | "enum" | "struct"
#Model: { keys: [string, ...string], fields: [string]: #Kind }
namespace: "test"
models: [string]: #Model
models: Thing: { keys: ["id"], fields: { id: "float" } }
`
	_, err := Compile("bad.cue", []byte(src))
	require.Error(t, err)
}

func TestCompile_KeyNotDeclared(t *testing.T) {
	src := `
namespace: "test"
models: Thing: { keys: ["id"], fields: { other: "int" } }
`
	_, err := Compile("bad.cue", []byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a declared field")
}

func TestCompile_MissingNamespace(t *testing.T) {
	_, err := Compile("bad.cue", []byte(`models: Thing: { keys: ["id"], fields: { id: "int" } }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace")
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.cue")
	src := `
namespace: "arena"
models: Fighter: { keys: ["fighter_id"], fields: { fighter_id: "felt", power: "int" } }
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"arena-Fighter"}, r.Names())
}
