package chunk

import (
	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// Default window parameters for character chunking.
const (
	DefaultWindow  = 1200
	DefaultOverlap = 200
)

// FixedCharChunker splits text into fixed-size character windows.
// Consecutive windows overlap by Overlap characters; the final window may
// be shorter than Window.
type FixedCharChunker struct {
	window  int
	overlap int
}

// NewFixedCharChunker validates the window parameters eagerly.
// overlap >= window is a configuration error, not something to clamp.
func NewFixedCharChunker(window, overlap int) (*FixedCharChunker, error) {
	if window <= 0 {
		return nil, qerrors.ConfigError("chunk window must be > 0, got %d", window)
	}
	if overlap < 0 {
		return nil, qerrors.ConfigError("chunk overlap must be >= 0, got %d", overlap)
	}
	if overlap >= window {
		return nil, qerrors.ConfigError(
			"chunk overlap %d must be smaller than window %d", overlap, window)
	}
	return &FixedCharChunker{window: window, overlap: overlap}, nil
}

// Chunk splits text into windows advancing by window-overlap characters.
// Whitespace-only windows are dropped; their span is not merged into a
// neighbor.
func (c *FixedCharChunker) Chunk(itemID, text string, startingChunkID int) []TextChunk {
	if isBlank(text) {
		return nil
	}

	step := c.window - c.overlap
	var chunks []TextChunk
	nextID := startingChunkID

	for start := 0; start < len(text); start += step {
		end := start + c.window
		if end > len(text) {
			end = len(text)
		}
		piece := text[start:end]
		if isBlank(piece) {
			continue
		}
		chunks = append(chunks, TextChunk{
			ChunkID:   nextID,
			ItemID:    itemID,
			SpanStart: start,
			SpanEnd:   end,
			Text:      piece,
		})
		nextID++
		if end == len(text) {
			break
		}
	}

	return chunks
}
