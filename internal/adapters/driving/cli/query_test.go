package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
)

// resetQueryFlags clears flag state left behind by a previous Execute.
func resetQueryFlags() {
	queryCmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

// execute runs the root command with args against a temp config dir
// and returns the combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetQueryFlags()
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestQueryCmd_Use(t *testing.T) {
	assert.Equal(t, "query [question]", queryCmd.Use)
}

func TestQueryCmd_HasFlags(t *testing.T) {
	for _, name := range []string{
		"k", "gap-threshold", "distance-threshold", "max-iterations",
		"no-filter", "json", "show-text",
	} {
		assert.NotNil(t, queryCmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestQueryCmd_TableOutput(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "query", "how do saving throws work")

	require.NoError(t, err)
	assert.Contains(t, out, "Saving Throws")
	assert.Contains(t, out, "0.1200")
	assert.Contains(t, out, "threshold cutoff")
	assert.Contains(t, out, "2 result(s)")
}

func TestQueryCmd_JSONOutput(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "query", "--json", "how do saving throws work")

	require.NoError(t, err)
	assert.Contains(t, out, `"id": "chunk-1"`)
	assert.Contains(t, out, `"title": "Saving Throws"`)
	assert.Contains(t, out, `"distance": 0.12`)
	assert.Contains(t, out, `"request_id": "req-1"`)

	// Candidate keys are snake_case and the predicate stays internal.
	assert.NotContains(t, out, `"ID"`)
	assert.NotContains(t, out, `"Predicate"`)
}

func TestQueryCmd_PassesQueryAndFlags(t *testing.T) {
	mock, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "query", "-k", "5", "--no-filter", "the question")

	require.NoError(t, err)
	assert.Equal(t, "the question", mock.gotQuery)
	assert.Equal(t, 5, mock.gotOpts.K)
	assert.True(t, mock.gotOpts.FilteringDisabled)
}

func TestQueryCmd_ConfigDefaultsApply(t *testing.T) {
	mock, cleanup := setupTestServices()
	defer cleanup()
	resetQueryFlags()
	defer resetQueryFlags()

	dir := t.TempDir()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"--config-dir", dir, "config", "set", "retrieval.k", "7"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"--config-dir", dir, "query", "question"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, 7, mock.gotOpts.K)
}

func TestQueryCmd_ConfigDisablesFiltering(t *testing.T) {
	mock, cleanup := setupTestServices()
	defer cleanup()
	resetQueryFlags()
	defer resetQueryFlags()

	dir := t.TempDir()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"--config-dir", dir, "config", "set", "retrieval.filtering", "false"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"--config-dir", dir, "query", "question"})
	require.NoError(t, rootCmd.Execute())

	assert.True(t, mock.gotOpts.FilteringDisabled)
}

func TestQueryCmd_RetrievalError(t *testing.T) {
	mock, cleanup := setupTestServices()
	defer cleanup()
	mock.result = nil
	mock.err = errMock

	_, err := execute(t, "query", "question")

	require.Error(t, err)
	assert.ErrorIs(t, err, errMock)
}

func TestQueryCmd_InteractiveLoop(t *testing.T) {
	mock, cleanup := setupTestServices()
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("first question\nquit\n"))

	out, err := execute(t, "query")

	require.NoError(t, err)
	assert.Equal(t, "first question", mock.gotQuery)
	assert.Contains(t, out, "Saving Throws")
}

func TestQueryCmd_InteractiveSkipsBlankLines(t *testing.T) {
	mock, cleanup := setupTestServices()
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("\n\nreal question\nexit\n"))

	_, err := execute(t, "query")

	require.NoError(t, err)
	assert.Equal(t, "real question", mock.gotQuery)
}

func TestPrintResultTable_NoResults(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	printResultTable(rootCmd, &domain.RetrievalResult{})

	assert.Contains(t, buf.String(), "No results.")
}
