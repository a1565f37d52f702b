package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// fakeEmbedder returns canned vectors per text, zero vectors otherwise.
// It lets tests pin exact similarity orderings at small dimensions.
type fakeEmbedder struct {
	dims    int
	vectors map[string][]float32
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dims)
		copy(vec, f.vectors[text])
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return f.dims }
func (f *fakeEmbedder) ModelName() string { return "fake-test-embedder" }
func (f *fakeEmbedder) Close() error      { return nil }

// doubleEmbedder violates the one-vector-per-text contract.
type doubleEmbedder struct {
	inner embed.Embedder
}

func (d *doubleEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := d.inner.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	return append(vectors, vectors...), nil
}

func (d *doubleEmbedder) Dimensions() int   { return d.inner.Dimensions() }
func (d *doubleEmbedder) ModelName() string { return d.inner.ModelName() }
func (d *doubleEmbedder) Close() error      { return d.inner.Close() }

func TestRegistry_KnownIDs(t *testing.T) {
	r := NewRegistry(embed.NewStaticEmbedder(42))

	assert.Equal(t, []string{
		"embedfile", "embedhnsw", "embedmem", "hybrid", "lexical", "scan", "tfvector",
	}, r.IDs())

	for _, id := range r.IDs() {
		b, err := r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, id, b.ID())
	}
}

func TestRegistry_UnknownIDNamesKnownBackends(t *testing.T) {
	r := NewRegistry(embed.NewStaticEmbedder(42))

	_, err := r.Get("bleve")
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeUnknownBackend, qerrors.GetCode(err))
	assert.Contains(t, err.Error(), `unknown backend "bleve"`)
	for _, id := range r.IDs() {
		assert.Contains(t, err.Error(), id)
	}
}
