package chunk

import (
	"unicode"
	"unicode/utf8"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// Token is a tokenizer output span. SpanEnd > SpanStart and tokens do
// not overlap.
type Token struct {
	Token     string
	SpanStart int
	SpanEnd   int
}

// Tokenizer produces non-overlapping tokens with character spans.
type Tokenizer interface {
	Tokenize(text string) []Token
}

// WhitespaceTokenizer splits on Unicode whitespace, preserving exact
// offsets of each token.
type WhitespaceTokenizer struct{}

// Tokenize returns the runs of non-whitespace characters.
func (WhitespaceTokenizer) Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, Token{Token: text[start:i], SpanStart: start, SpanEnd: i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i += size
	}
	if start >= 0 {
		tokens = append(tokens, Token{Token: text[start:], SpanStart: start, SpanEnd: len(text)})
	}
	return tokens
}

// FixedTokenChunker windows over tokens rather than characters. The chunk's
// character span runs from the first token's start to the last token's end,
// so inter-token whitespace inside the window is preserved verbatim.
type FixedTokenChunker struct {
	tokenizer Tokenizer
	window    int
	overlap   int
}

// NewFixedTokenChunker validates window parameters eagerly; window and
// overlap are token counts.
func NewFixedTokenChunker(tokenizer Tokenizer, window, overlap int) (*FixedTokenChunker, error) {
	if tokenizer == nil {
		return nil, qerrors.ConfigError("token chunker requires a tokenizer")
	}
	if window <= 0 {
		return nil, qerrors.ConfigError("token window must be > 0, got %d", window)
	}
	if overlap < 0 {
		return nil, qerrors.ConfigError("token overlap must be >= 0, got %d", overlap)
	}
	if overlap >= window {
		return nil, qerrors.ConfigError(
			"token overlap %d must be smaller than window %d", overlap, window)
	}
	return &FixedTokenChunker{tokenizer: tokenizer, window: window, overlap: overlap}, nil
}

// Chunk windows over the token stream advancing by window-overlap tokens.
func (c *FixedTokenChunker) Chunk(itemID, text string, startingChunkID int) []TextChunk {
	tokens := c.tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.window - c.overlap
	var chunks []TextChunk
	nextID := startingChunkID

	for start := 0; start < len(tokens); start += step {
		end := start + c.window
		if end > len(tokens) {
			end = len(tokens)
		}
		spanStart := tokens[start].SpanStart
		spanEnd := tokens[end-1].SpanEnd
		chunks = append(chunks, TextChunk{
			ChunkID:   nextID,
			ItemID:    itemID,
			SpanStart: spanStart,
			SpanEnd:   spanEnd,
			Text:      text[spanStart:spanEnd],
		})
		nextID++
		if end == len(tokens) {
			break
		}
	}

	return chunks
}
