package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kusari/internal/models"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`storage:
  data_dir: %s
embedding:
  provider: mock
  dimensions: 8
index:
  default_dimension: 8
`, filepath.Join(dir, "db"))
	path := filepath.Join(dir, "kusari.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func runCommand(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_EndToEnd(t *testing.T) {
	cfgPath := writeTestConfig(t)
	batch := filepath.Join(t.TempDir(), "problems.txt")
	require.NoError(t, os.WriteFile(batch, []byte("first problem\n\nsecond problem\n  third problem  \n"), 0o600))

	out, err := runCommand(t, cfgPath, "embed", "--batch", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Embedded and stored 3 new items.")

	out, err = runCommand(t, cfgPath, "embed", "--batch", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "No new items to embed.")

	out, err = runCommand(t, cfgPath, "list")
	require.NoError(t, err)
	assert.Equal(t, "[0] batch_0: first problem\n[1] batch_1: second problem\n[2] batch_2: third problem\n", out)

	out, err = runCommand(t, cfgPath, "search", "--text", "second problem", "--top-k", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] Index: 1, Distance: 0.0000")

	out, err = runCommand(t, cfgPath, "--output", "json", "chain", "--text", "third problem")
	require.NoError(t, err)
	var chainRes models.ChainResult
	require.NoError(t, json.Unmarshal([]byte(out), &chainRes))
	assert.Equal(t, models.StopConverged, chainRes.Stop)
	assert.Empty(t, chainRes.Steps)

	out, err = runCommand(t, cfgPath, "remove", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed item 1")

	out, err = runCommand(t, cfgPath, "--output", "json", "status")
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.Items)
	assert.Equal(t, 2, st.IndexSize)
	assert.Equal(t, 8, st.Dimension)

	out, err = runCommand(t, cfgPath, "find", "third")
	require.NoError(t, err)
	assert.Contains(t, out, "[2] batch_2")
}

func TestEmbed_File(t *testing.T) {
	cfgPath := writeTestConfig(t)
	file := filepath.Join(t.TempDir(), "integral.txt")
	require.NoError(t, os.WriteFile(file, []byte("integrate x^2 from 0 to 1\n"), 0o600))

	out, err := runCommand(t, cfgPath, "embed", "--file", file)
	require.NoError(t, err)
	assert.Equal(t, "Embedded and stored: "+file+" as item 0\n", out)

	out, err = runCommand(t, cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "[0] integral.txt: ")
}

func TestEmbed_RequiresOneSource(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCommand(t, cfgPath, "embed")
	assert.Error(t, err)
}

func TestRemove_UnknownID(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCommand(t, cfgPath, "remove", "42")
	assert.ErrorContains(t, err, "no item with id 42")

	_, err = runCommand(t, cfgPath, "remove", "abc")
	assert.ErrorContains(t, err, "invalid item id")
}

func TestSearch_EmptyStore(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCommand(t, cfgPath, "search", "--text", "anything")
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)
}

func TestQueryText(t *testing.T) {
	file := filepath.Join(t.TempDir(), "q.txt")
	require.NoError(t, os.WriteFile(file, []byte("  from a file \n"), 0o600))

	q, err := queryText("", file)
	require.NoError(t, err)
	assert.Equal(t, "from a file", q)

	q, err = queryText(" inline ", "")
	require.NoError(t, err)
	assert.Equal(t, "inline", q)

	_, err = queryText("a", file)
	assert.Error(t, err)
	_, err = queryText("", "")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := runCommand(t, writeTestConfig(t), "version")
	require.NoError(t, err)
	assert.Equal(t, "kusari test\n", out)
}
