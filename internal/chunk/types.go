// Package chunk splits item text into contiguous spans with stable
// character offsets. Chunks are the unit indexed and embedded by the
// retrieval backends.
package chunk

import (
	"strings"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// TextChunk is a transient chunk carrying its text. It is never persisted;
// the persisted projection is ChunkRecord and text is recovered by
// re-slicing the source at query time.
type TextChunk struct {
	// ChunkID is monotonically increasing within one build.
	ChunkID int
	// ItemID identifies the source item.
	ItemID string
	// SpanStart is the inclusive start offset into the item text.
	SpanStart int
	// SpanEnd is the exclusive end offset. Always > SpanStart.
	SpanEnd int
	// Text is the chunk content, exactly text[SpanStart:SpanEnd].
	Text string
}

// Record returns the persisted projection of the chunk.
func (c TextChunk) Record() Record {
	return Record{ItemID: c.ItemID, SpanStart: c.SpanStart, SpanEnd: c.SpanEnd}
}

// Record is the persisted chunk projection, one JSON object per line in
// the <snapshot_id>.<backend_id>.chunks.jsonl artifact.
type Record struct {
	ItemID    string `json:"item_id"`
	SpanStart int    `json:"span_start"`
	SpanEnd   int    `json:"span_end"`
}

// Validate checks the span invariant: span_end > span_start >= 0.
func (r Record) Validate() error {
	if r.SpanStart < 0 || r.SpanEnd <= r.SpanStart {
		return qerrors.ValidationError(
			"chunk record for item %s has invalid span [%d, %d)",
			r.ItemID, r.SpanStart, r.SpanEnd)
	}
	return nil
}

// Chunker splits a document's text into spans.
//
// Implementations assign monotonically increasing chunk ids starting at
// startingChunkID, yield zero chunks for empty or whitespace-only input,
// and never return an error at chunk time: invalid parameters are
// rejected at constructor time instead.
type Chunker interface {
	Chunk(itemID, text string, startingChunkID int) []TextChunk
}

// isBlank reports whether the text contains only whitespace.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
