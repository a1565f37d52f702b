package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_EmptyBatch(t *testing.T) {
	e := NewStaticEmbedder(1)
	defer e.Close()

	vecs, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)

	vecs, err = e.EmbedTexts(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	a := NewStaticEmbedder(42)
	b := NewStaticEmbedder(42)
	defer a.Close()
	defer b.Close()

	va, err := a.EmbedTexts(context.Background(), []string{"retrieval engines rank evidence"})
	require.NoError(t, err)
	vb, err := b.EmbedTexts(context.Background(), []string{"retrieval engines rank evidence"})
	require.NoError(t, err)

	assert.Equal(t, va, vb, "same seed and text must produce identical vectors")
}

func TestStaticEmbedder_SeedChangesVectors(t *testing.T) {
	a := NewStaticEmbedder(1)
	b := NewStaticEmbedder(2)
	defer a.Close()
	defer b.Close()

	va, err := a.EmbedTexts(context.Background(), []string{"same text"})
	require.NoError(t, err)
	vb, err := b.EmbedTexts(context.Background(), []string{"same text"})
	require.NoError(t, err)

	assert.NotEqual(t, va[0], vb[0])
}

func TestStaticEmbedder_OutputIsUnitNorm(t *testing.T) {
	e := NewStaticEmbedder(7)
	defer e.Close()

	vecs, err := e.EmbedTexts(context.Background(), []string{"alpha beta gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Len(t, vecs[0], StaticDimensions)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestStaticEmbedder_WhitespaceIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder(7)
	defer e.Close()

	vecs, err := e.EmbedTexts(context.Background(), []string{"  \t\n "})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	for _, v := range vecs[0] {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_ClosedErrors(t *testing.T) {
	e := NewStaticEmbedder(7)
	require.NoError(t, e.Close())

	_, err := e.EmbedTexts(context.Background(), []string{"x"})
	require.Error(t, err)
}

// A query vector identical to a stored normalized vector yields cosine
// similarity 1.0 within floating-point tolerance.
func TestDot_SelfSimilarity(t *testing.T) {
	e := NewStaticEmbedder(3)
	defer e.Close()

	vecs, err := e.EmbedTexts(context.Background(), []string{"cosine symmetry check"})
	require.NoError(t, err)

	sim := Dot(vecs[0], vecs[0])
	assert.InDelta(t, 1.0, sim, 1e-5)
}

func TestNormalizeVector_ZeroVectorUnchanged(t *testing.T) {
	v := make([]float32, 4)
	out := NormalizeVector(v)
	assert.Equal(t, []float32{0, 0, 0, 0}, out)
}
