package embed

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// StaticEmbedder generates embeddings using a seeded hash-based approach.
// Works without external dependencies (no network, no model download) and
// is reproducible across runs for a fixed seed. It is the reference
// implementation of the provider contract and the provider used in tests.
type StaticEmbedder struct {
	mu     sync.RWMutex
	seed   uint64
	closed bool
}

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches alphanumeric sequences
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a deterministic embedder for the given seed.
func NewStaticEmbedder(seed uint64) *StaticEmbedder {
	return &StaticEmbedder{seed: seed}
}

// EmbedTexts generates one L2-normalized vector per text.
func (e *StaticEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, qerrors.InternalError("static embedder is closed", nil)
	}
	e.mu.RUnlock()

	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = e.embedOne(text)
	}
	return results, nil
}

func (e *StaticEmbedder) embedOne(text string) []float32 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions)
	}

	vector := make([]float32, StaticDimensions)

	for _, token := range tokenizeText(trimmed) {
		vector[e.hashToIndex(token)] += tokenWeight
	}

	normalized := normalizeForNgrams(trimmed)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[e.hashToIndex(ngram)] += ngramWeight
	}

	return NormalizeVector(vector)
}

// tokenizeText splits text into lowercased alphanumeric tokens.
func tokenizeText(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		tokens = append(tokens, strings.ToLower(word))
	}
	return tokens
}

// normalizeForNgrams prepares text for n-gram extraction.
func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// extractNgrams extracts n-character sliding windows.
func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

// hashToIndex uses seeded FNV-64 to map a string to a vector index.
func (e *StaticEmbedder) hashToIndex(s string) int {
	h := fnv.New64()
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], e.seed)
	_, _ = h.Write(seedBytes[:])
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(StaticDimensions))
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
