package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepsTextOutput(t *testing.T) {
	dbPath := seedDB(t,
		"CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT, score INTEGER)",
	)

	buf := &bytes.Buffer{}
	cmd := NewDepsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "SELECT id, name FROM players ORDER BY id"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "players(id,name)")
}

func TestDepsWholeTableForAggregates(t *testing.T) {
	dbPath := seedDB(t, "CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT)")

	buf := &bytes.Buffer{}
	cmd := NewDepsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "SELECT COUNT(*) FROM players"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "players(*)")
}

func TestDepsJSONOutput(t *testing.T) {
	dbPath := seedDB(t,
		"CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT, score INTEGER)",
	)

	buf := &bytes.Buffer{}
	cmd := NewDepsCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "SELECT name, score FROM players"})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	tables, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data should be a table map, got %T", resp.Data)
	require.Contains(t, tables, "players")
	cols, ok := tables["players"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"name", "score"}, cols)
}

func TestDepsRejectsWriteStatement(t *testing.T) {
	dbPath := seedDB(t, "CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT)")

	cmd := NewDepsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "UPDATE players SET name = 'x'"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query cannot be tracked")
	assert.Contains(t, err.Error(), "not read-only")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDepsUnknownTable(t *testing.T) {
	dbPath := seedDB(t, "CREATE TABLE players (id INTEGER PRIMARY KEY)")

	cmd := NewDepsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "SELECT * FROM missing"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query cannot be tracked")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDepsMissingDBFlag(t *testing.T) {
	cmd := NewDepsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"SELECT 1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestDepsHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewDepsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "region")
	assert.Contains(t, output, "--db")
}
