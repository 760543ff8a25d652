package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

func writeSeedFile(t *testing.T, dir string) string {
	t.Helper()
	fixtures := []seedFixture{
		{
			ChunkID:  "chunk-1",
			DocID:    "doc-1",
			Vertical: retrieval.VerticalLegal,
			Text:     "The minimum wage order applies to all scheduled employments.",
		},
	}
	data, err := json.Marshal(fixtures)
	require.NoError(t, err)
	path := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func writeProjectConfig(t *testing.T, dir, seedPath string) {
	t.Helper()
	yaml := "index:\n  backend: local\n  local_seed_path: " + seedPath + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "retrieveqa.yaml"), []byte(yaml), 0644))
}

func TestQueryCmd_RunsAgainstSeededLocalIndex(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	seedPath := writeSeedFile(t, tmpDir)
	writeProjectConfig(t, tmpDir, seedPath)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--config-dir", tmpDir, "query", "what is the minimum wage order", "--no-internet"})

	err := cmd.Execute()
	require.NoError(t, err)

	var out retrieval.RetrievalOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "what is the minimum wage order", out.OriginalQuery)
}

func TestQueryCmd_RequiresExactlyOneArg(t *testing.T) {
	cmd := newQueryCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	assert.Error(t, err)
}

func TestQueryCmd_AddedToRoot(t *testing.T) {
	rootCmd := NewRootCmd()

	queryCmd, _, err := rootCmd.Find([]string{"query"})

	require.NoError(t, err)
	assert.Equal(t, "query <question>", queryCmd.Use)
}
