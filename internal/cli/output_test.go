package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Name string `json:"name"`
}

func (g greeting) Text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "hello %s\n", g.Name)
	return err
}

func TestOutputFormatter_Success(t *testing.T) {
	t.Run("text uses Texter", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf}

		require.NoError(t, f.Success(greeting{Name: "alice"}))
		assert.Equal(t, "hello alice\n", buf.String())
	})

	t.Run("text falls back to fmt", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf}

		require.NoError(t, f.Success(42))
		assert.Equal(t, "42\n", buf.String())
	})

	t.Run("json envelope", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "json", Writer: &buf, SessionID: "s-1"}

		require.NoError(t, f.Success(greeting{Name: "bob"}))

		var resp map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp["status"])
		assert.Equal(t, "s-1", resp["session_id"])
		assert.Equal(t, map[string]any{"name": "bob"}, resp["data"])
		assert.NotContains(t, resp, "error")
	})
}

func TestOutputFormatter_Report(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Report(greeting{Name: "carol"}, &CLIError{Code: CodeFixture, Message: "2 problem(s) found"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeFixture, resp.Error.Code)
	assert.NotNil(t, resp.Data, "data is kept alongside the error")

	t.Run("text ignores the failure", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf}

		require.NoError(t, f.Report(greeting{Name: "dave"}, &CLIError{Code: CodeFixture}))
		assert.Equal(t, "hello dave\n", buf.String())
	})
}

func TestOutputFormatter_Fail(t *testing.T) {
	cause := errors.New("connection refused")

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf}

		err := f.Fail(ExitCommandError, CodeIndexer, "failed to open indexer", cause)

		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "Error [E_INDEXER]: failed to open indexer\n", buf.String())
	})

	t.Run("verbose text shows details", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf, Verbose: true}

		_ = f.Fail(ExitFailure, CodeSync, "hydration failed", cause)
		assert.Contains(t, buf.String(), "Details: connection refused")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "json", Writer: &buf}

		err := f.Fail(ExitFailure, CodeSync, "hydration failed", cause)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeSync, resp.Error.Code)
		assert.Equal(t, "connection refused", resp.Error.Details)
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut}

	f.VerboseLog("quiet")
	assert.Empty(t, errOut.String())

	f.Verbose = true
	f.VerboseLog("loaded %d", 3)
	assert.Equal(t, "loaded 3\n", errOut.String())
	assert.Empty(t, out.String(), "diagnostics never reach stdout")
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "bad")), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestTable_Text(t *testing.T) {
	tbl := &table{header: []string{"ID", "NAME"}}
	tbl.add("0xa", "alice")
	tbl.add("0xbbb", "bob")

	var buf bytes.Buffer
	require.NoError(t, tbl.Text(&buf))
	assert.Equal(t, "ID     NAME\n0xa    alice\n0xbbb  bob\n", buf.String())
}
