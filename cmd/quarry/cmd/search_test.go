package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/evidence"
)

// writeScanFixture lays out a two-file corpus plus a config selecting
// the artifact-free scan backend, returning the config path.
func writeScanFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	corpusDir := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(corpusDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corpusDir, "alpha.txt"),
		[]byte("alpha document about retrieval engines"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(corpusDir, "beta.txt"),
		[]byte("beta document about something else"), 0o644))

	cfgPath := filepath.Join(dir, "quarry.yaml")
	cfgYAML := "version: 1\ncorpus:\n  root: " + corpusDir + "\nbackend:\n  id: scan\n  name: test\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))
	return cfgPath
}

func runRoot(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestBuildCmd_PrintsSnapshotIdentity(t *testing.T) {
	// Given: a scan-backend corpus fixture
	cfgPath := writeScanFixture(t)

	// When: running build
	output, err := runRoot(t, cfgPath, "build")

	// Then: the snapshot and configuration ids are printed
	require.NoError(t, err)
	assert.Contains(t, output, "snapshot_id:")
	assert.Contains(t, output, "configuration_id:")
	assert.Contains(t, output, "retriever:        scan")
}

func TestSearchCmd_TextOutput(t *testing.T) {
	// Given: a scan-backend corpus fixture
	cfgPath := writeScanFixture(t)

	// When: searching for a term only one document contains
	output, err := runRoot(t, cfgPath, "search", "retrieval", "--format", "text")

	// Then: the matching document ranks and the other is absent
	require.NoError(t, err)
	assert.Contains(t, output, "alpha.txt")
	assert.NotContains(t, output, "beta.txt")
	assert.Contains(t, output, "stage=scan")
}

func TestSearchCmd_JSONEnvelope(t *testing.T) {
	// Given: a scan-backend corpus fixture
	cfgPath := writeScanFixture(t)

	// When: searching with the JSON format
	output, err := runRoot(t, cfgPath, "search", "document", "--format", "json", "--limit", "1")

	// Then: the envelope decodes and the limit is honored
	require.NoError(t, err)
	var res evidence.Result
	require.NoError(t, json.Unmarshal([]byte(output), &res))
	assert.Equal(t, "document", res.QueryText)
	assert.Equal(t, "scan", res.RetrieverID)
	require.Len(t, res.Evidence, 1)
	assert.Equal(t, 1, res.Evidence[0].Rank)
	assert.Equal(t, 2, res.Stats["candidates"])
}

func TestSearchCmd_ExistingSnapshotByID(t *testing.T) {
	// Given: a built snapshot
	cfgPath := writeScanFixture(t)
	buildOut, err := runRoot(t, cfgPath, "build")
	require.NoError(t, err)

	var snapshotID string
	for _, line := range bytes.Split([]byte(buildOut), []byte("\n")) {
		if bytes.HasPrefix(line, []byte("snapshot_id:")) {
			snapshotID = string(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("snapshot_id:"))))
		}
	}
	require.NotEmpty(t, snapshotID)

	// When: querying that snapshot directly
	output, err := runRoot(t, cfgPath, "search", "retrieval", "--snapshot", snapshotID, "--format", "json")

	// Then: the result carries the requested snapshot id
	require.NoError(t, err)
	var res evidence.Result
	require.NoError(t, json.Unmarshal([]byte(output), &res))
	assert.Equal(t, snapshotID, res.SnapshotID)
}

func TestSearchCmd_UnknownSnapshotFails(t *testing.T) {
	// Given: a scan-backend corpus fixture with no snapshots built
	cfgPath := writeScanFixture(t)

	// When: querying a snapshot id that was never built
	_, err := runRoot(t, cfgPath, "search", "anything", "--snapshot", "deadbeefdeadbeefdeadbeef")

	// Then: the lookup fails
	require.Error(t, err)
}

func TestSearchCmd_RejectsInvalidBudget(t *testing.T) {
	// Given: a scan-backend corpus fixture
	cfgPath := writeScanFixture(t)

	// When: requesting a zero item limit
	_, err := runRoot(t, cfgPath, "search", "retrieval", "--limit", "0")

	// Then: budget validation rejects it before any query runs
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_total_items")
}
