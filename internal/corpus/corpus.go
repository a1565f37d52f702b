// Package corpus defines the catalog-store collaborator interfaces the
// retrieval backends consume, plus two implementations: an in-memory
// fixture corpus and a filesystem corpus backing the CLI.
//
// The catalog store itself (how items get there, how the catalog
// timestamp advances) is owned by an external component; backends only
// read the ordered item listing and item text.
package corpus

import (
	"context"
	"time"
)

// Item is one catalog entry.
type Item struct {
	ID        string
	RelPath   string
	MediaType string
	SourceURI string
	Tags      []string
	Metadata  map[string]string
}

// Corpus exposes an ordered item catalog and the artifact root where
// snapshots are materialized.
type Corpus interface {
	// URI identifies the corpus (recorded in snapshots for provenance).
	URI() string

	// Root is the directory snapshot artifacts are written to.
	Root() string

	// CatalogGeneratedAt is the catalog version timestamp. Backends pin
	// snapshots to it and treat a mismatch as stale.
	CatalogGeneratedAt() time.Time

	// Items returns the catalog in stable order.
	Items(ctx context.Context) ([]Item, error)

	// ReadText returns the item's text and whether the item is
	// text-bearing at all. Non-text items return ("", false, nil).
	ReadText(ctx context.Context, itemID string) (string, bool, error)
}

// ExtractedTextReader is the optional extraction-pipeline collaborator.
// When a backend is configured with an extractor id and extraction
// snapshot id, extracted text takes precedence over raw item text.
type ExtractedTextReader interface {
	// ReadExtractedText returns extracted text for the item, or ok=false
	// when no extraction exists for it.
	ReadExtractedText(ctx context.Context, extractorID, snapshotID, itemID string) (string, bool, error)
}

// TextSource resolves the effective text for an item: the extraction
// override when configured and present, the raw item text otherwise.
type TextSource struct {
	Corpus               Corpus
	ExtractorID          string
	ExtractionSnapshotID string
}

// Text returns the effective text for the item and whether the item is
// text-bearing.
func (s TextSource) Text(ctx context.Context, itemID string) (string, bool, error) {
	if s.ExtractorID != "" {
		if reader, ok := s.Corpus.(ExtractedTextReader); ok {
			text, found, err := reader.ReadExtractedText(ctx, s.ExtractorID, s.ExtractionSnapshotID, itemID)
			if err != nil {
				return "", false, err
			}
			if found {
				return text, true, nil
			}
		}
	}
	return s.Corpus.ReadText(ctx, itemID)
}
