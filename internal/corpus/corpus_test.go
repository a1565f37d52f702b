package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCorpus_ItemsAndText(t *testing.T) {
	m := NewMemoryCorpus("mem://test", t.TempDir())
	m.AddText("a", "alpha beta")
	m.AddItem(Item{ID: "b", RelPath: "b.bin", MediaType: "application/octet-stream"}, "")

	items, err := m.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)

	text, ok, err := m.ReadText(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alpha beta", text)

	_, ok, err = m.ReadText(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, ok, "binary item is not text-bearing")

	_, _, err = m.ReadText(context.Background(), "nope")
	require.Error(t, err)
}

func TestMemoryCorpus_TouchAdvancesCatalog(t *testing.T) {
	m := NewMemoryCorpus("mem://test", t.TempDir())
	before := m.CatalogGeneratedAt()
	m.AddText("a", "text")
	assert.True(t, m.CatalogGeneratedAt().After(before))
}

func TestTextSource_ExtractionOverride(t *testing.T) {
	m := NewMemoryCorpus("mem://test", t.TempDir())
	m.AddText("a", "raw text")
	m.SetExtractedText("pdf-x", "a", "extracted text")

	ctx := context.Background()

	// No extractor configured: raw text wins.
	src := TextSource{Corpus: m}
	text, ok, err := src.Text(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "raw text", text)

	// Extractor configured and present: extraction wins.
	src = TextSource{Corpus: m, ExtractorID: "pdf-x", ExtractionSnapshotID: "snap1"}
	text, _, err = src.Text(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)

	// Extractor configured but no extraction for the item: raw fallback.
	src = TextSource{Corpus: m, ExtractorID: "other"}
	text, _, err = src.Text(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "raw text", text)
}

func TestDirCorpus_ScansTextFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), []byte{0, 1, 2}, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden", "x.txt"), []byte("secret"), 0o644))

	c, err := NewDirCorpus(dir, "")
	require.NoError(t, err)

	items, err := c.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2, "hidden files are skipped")

	var textItem, binItem Item
	for _, item := range items {
		switch item.RelPath {
		case "doc.txt":
			textItem = item
		case "data.bin":
			binItem = item
		}
	}

	text, ok, err := c.ReadText(context.Background(), textItem.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "text/plain", textItem.MediaType)

	_, ok, err = c.ReadText(context.Background(), binItem.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirCorpus_StableOrderAndIDs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	c1, err := NewDirCorpus(dir, "")
	require.NoError(t, err)
	c2, err := NewDirCorpus(dir, "")
	require.NoError(t, err)

	items1, _ := c1.Items(context.Background())
	items2, _ := c2.Items(context.Background())
	assert.Equal(t, items1, items2, "catalog order and ids are stable across scans")
	assert.Equal(t, "a.txt", items1[0].RelPath)
}
