package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_Duration(t *testing.T) {
	db := seededDB(t)

	stdout, stderr, err := execute(t, "watch", "--db", db, "--table", "Season1",
		"--duration", "100ms", "--interval", "20ms", "--format", "json")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stderr, "Following live updates")

	var result WatchResult
	resp := decodeEnvelope(t, stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "duration elapsed", result.Reason)
	assert.Equal(t, 2, result.Stats.Challenges)
	assert.Equal(t, 4, result.Stats.Duelists)
}

func TestWatch_Interrupted(t *testing.T) {
	db := seededDB(t)

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"watch", "--db", db, "--interval", "10ms"})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)
	require.NoError(t, cmd.ExecuteContext(ctx), "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "Stopped (interrupted)")
}

func TestWatchLoop_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	reason, err := watchLoop(ctx, nil, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "duration elapsed", reason)
}

func TestServeMetrics(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "duelsync_up 1\n")
	})

	stop, err := serveMetrics("127.0.0.1:0", h)
	require.NoError(t, err)
	stop()

	_, err = serveMetrics("not an address", h)
	assert.Error(t, err)
}

// =============================================================================
// serve
// =============================================================================

func TestServe_StopsWithContext(t *testing.T) {
	db := seededDB(t)

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"serve", "--db", db, "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, stderr.String(), "Serving "+db)
}

func TestServe_RejectsRemote(t *testing.T) {
	_, _, err := execute(t, "serve", "--indexer-url", "http://127.0.0.1:1")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServe_BadAddress(t *testing.T) {
	db := filepath.Join(t.TempDir(), "x.db")
	_, _, err := execute(t, "serve", "--db", db, "--addr", "not an address")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
