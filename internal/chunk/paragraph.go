package chunk

import (
	"strings"
)

// ParagraphChunker splits text on blank-line boundaries, producing one
// chunk per run of non-blank lines.
type ParagraphChunker struct{}

// NewParagraphChunker returns a paragraph chunker. It has no parameters
// and therefore no construction-time failure modes.
func NewParagraphChunker() *ParagraphChunker {
	return &ParagraphChunker{}
}

// Chunk yields one chunk per paragraph. Paragraph spans cover the run of
// non-blank lines without the surrounding blank lines; whitespace-only
// paragraphs are skipped.
func (c *ParagraphChunker) Chunk(itemID, text string, startingChunkID int) []TextChunk {
	if isBlank(text) {
		return nil
	}

	var chunks []TextChunk
	nextID := startingChunkID

	offset := 0
	paraStart := -1
	paraEnd := 0

	flush := func() {
		if paraStart < 0 {
			return
		}
		piece := text[paraStart:paraEnd]
		if !isBlank(piece) {
			chunks = append(chunks, TextChunk{
				ChunkID:   nextID,
				ItemID:    itemID,
				SpanStart: paraStart,
				SpanEnd:   paraEnd,
				Text:      piece,
			})
			nextID++
		}
		paraStart = -1
	}

	for offset <= len(text) {
		lineEnd := strings.IndexByte(text[offset:], '\n')
		var line string
		var next int
		if lineEnd < 0 {
			line = text[offset:]
			next = len(text) + 1
		} else {
			line = text[offset : offset+lineEnd]
			next = offset + lineEnd + 1
		}

		if isBlank(line) {
			flush()
		} else {
			if paraStart < 0 {
				paraStart = offset
			}
			paraEnd = offset + len(line)
		}
		offset = next
	}
	flush()

	return chunks
}
