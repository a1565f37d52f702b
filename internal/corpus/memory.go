package corpus

import (
	"context"
	"sort"
	"time"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// MemoryCorpus is an in-memory corpus used by tests and examples.
// Items are kept in insertion order; the catalog timestamp is advanced
// explicitly via Touch.
type MemoryCorpus struct {
	uri         string
	root        string
	generatedAt time.Time
	items       []Item
	texts       map[string]string
	extracted   map[string]string // extractorID \x00 itemID -> text
}

// NewMemoryCorpus creates an empty corpus writing artifacts under root.
func NewMemoryCorpus(uri, root string) *MemoryCorpus {
	return &MemoryCorpus{
		uri:         uri,
		root:        root,
		generatedAt: time.Unix(0, 0).UTC(),
		texts:       make(map[string]string),
		extracted:   make(map[string]string),
	}
}

// AddText appends a text-bearing item and bumps the catalog timestamp.
func (m *MemoryCorpus) AddText(id, text string) {
	m.AddItem(Item{ID: id, RelPath: id + ".txt", MediaType: "text/plain", SourceURI: "mem://" + id}, text)
}

// AddItem appends an item. Pass text == "" for non-text items.
func (m *MemoryCorpus) AddItem(item Item, text string) {
	m.items = append(m.items, item)
	if text != "" {
		m.texts[item.ID] = text
	}
	m.Touch()
}

// SetExtractedText registers extraction-pipeline output for an item.
func (m *MemoryCorpus) SetExtractedText(extractorID, itemID, text string) {
	m.extracted[extractorID+"\x00"+itemID] = text
}

// Touch advances the catalog timestamp, invalidating existing snapshots.
func (m *MemoryCorpus) Touch() {
	m.generatedAt = m.generatedAt.Add(time.Second)
}

// URI implements Corpus.
func (m *MemoryCorpus) URI() string { return m.uri }

// Root implements Corpus.
func (m *MemoryCorpus) Root() string { return m.root }

// CatalogGeneratedAt implements Corpus.
func (m *MemoryCorpus) CatalogGeneratedAt() time.Time { return m.generatedAt }

// Items implements Corpus. The returned slice is a copy in insertion order.
func (m *MemoryCorpus) Items(ctx context.Context) ([]Item, error) {
	out := make([]Item, len(m.items))
	copy(out, m.items)
	return out, nil
}

// ReadText implements Corpus.
func (m *MemoryCorpus) ReadText(ctx context.Context, itemID string) (string, bool, error) {
	if text, ok := m.texts[itemID]; ok {
		return text, true, nil
	}
	for _, item := range m.items {
		if item.ID == itemID {
			return "", false, nil
		}
	}
	return "", false, qerrors.ValidationError("unknown item %q", itemID)
}

// ReadExtractedText implements ExtractedTextReader.
func (m *MemoryCorpus) ReadExtractedText(ctx context.Context, extractorID, snapshotID, itemID string) (string, bool, error) {
	text, ok := m.extracted[extractorID+"\x00"+itemID]
	return text, ok, nil
}

// SortedItemIDs is a test helper returning item ids in lexical order.
func (m *MemoryCorpus) SortedItemIDs() []string {
	ids := make([]string, 0, len(m.items))
	for _, item := range m.items {
		ids = append(ids, item.ID)
	}
	sort.Strings(ids)
	return ids
}
