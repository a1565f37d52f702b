package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/corpus"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

func TestNewManifest_DeterministicID(t *testing.T) {
	a, err := NewManifest("lexical", "run-a", map[string]any{"chunk_size": 800, "overlap": 100})
	require.NoError(t, err)
	b, err := NewManifest("lexical", "run-b", map[string]any{"overlap": 100, "chunk_size": 800})
	require.NoError(t, err)

	// Key order and manifest name do not affect the configuration id.
	assert.Equal(t, a.ConfigurationID, b.ConfigurationID)
	assert.Len(t, a.ConfigurationID, 24)
}

func TestNewManifest_IDChangesWithConfig(t *testing.T) {
	a, _ := NewManifest("lexical", "x", map[string]any{"chunk_size": 800})
	b, _ := NewManifest("lexical", "x", map[string]any{"chunk_size": 900})
	c, _ := NewManifest("scan", "x", map[string]any{"chunk_size": 800})

	assert.NotEqual(t, a.ConfigurationID, b.ConfigurationID)
	assert.NotEqual(t, a.ConfigurationID, c.ConfigurationID)
}

func TestNew_SnapshotIDPinnedToCatalog(t *testing.T) {
	m, _ := NewManifest("scan", "x", nil)
	c := corpus.NewMemoryCorpus("mem://x", t.TempDir())
	c.AddText("a", "text")

	s1 := New(m, c)
	s2 := New(m, c)
	assert.Equal(t, s1.SnapshotID, s2.SnapshotID,
		"same configuration and catalog state reuse the snapshot id")

	c.Touch()
	s3 := New(m, c)
	assert.NotEqual(t, s1.SnapshotID, s3.SnapshotID,
		"a changed catalog produces a new snapshot id")
}

func TestCheckFresh(t *testing.T) {
	m, _ := NewManifest("scan", "x", nil)
	c := corpus.NewMemoryCorpus("mem://x", t.TempDir())
	c.AddText("a", "text")

	snap := New(m, c)
	require.NoError(t, snap.CheckFresh(c))

	c.Touch()
	err := snap.CheckFresh(c)
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeSnapshotStale, qerrors.GetCode(err))
}

func TestArtifactNames(t *testing.T) {
	s := Snapshot{SnapshotID: "abc123"}
	assert.Equal(t, "abc123.embedfile.embeddings.npy", s.ArtifactName("embedfile", "embeddings.npy"))
	assert.Equal(t, "abc123.embedfile.chunks.jsonl", s.ArtifactName("embedfile", "chunks.jsonl"))
	assert.Equal(t, "abc123.sqlite", s.IndexName())
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	m, _ := NewManifest("scan", "x", map[string]any{"snippet_chars": 120})
	snap := Snapshot{
		SnapshotID:         "deadbeef",
		Configuration:      m,
		CorpusURI:          "mem://x",
		CatalogGeneratedAt: time.Unix(100, 0).UTC(),
		CreatedAt:          time.Unix(200, 0).UTC(),
		Artifacts:          []string{"deadbeef.sqlite"},
		Stats:              map[string]string{"items": "3"},
	}

	require.NoError(t, store.Save(&snap))
	require.True(t, store.Exists("deadbeef"))

	loaded, err := store.Load("deadbeef")
	require.NoError(t, err)
	assert.Equal(t, snap, *loaded)
}

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load("nope")
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeSnapshotNotFound, qerrors.GetCode(err))
}
