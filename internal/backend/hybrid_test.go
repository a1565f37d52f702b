package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/corpus"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

// stubBackend returns canned per-item scores and records the budget it
// was queried with, so fusion math and budget expansion are observable.
type stubBackend struct {
	id        string
	results   map[string]float64
	gotBudget *budget.Budget
}

func (s *stubBackend) ID() string { return s.id }

func (s *stubBackend) BuildSnapshot(ctx context.Context, c corpus.Corpus, name string, configuration map[string]any) (*snapshot.Snapshot, error) {
	manifest, err := snapshot.NewManifest(s.id, name, configuration)
	if err != nil {
		return nil, err
	}
	snap := snapshot.New(manifest, c)
	if err := snapshot.NewStore(c.Root()).Save(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *stubBackend) Query(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, queryText string, b budget.Budget) (*evidence.Result, error) {
	s.gotBudget = &b

	var candidates []evidence.Evidence
	for itemID, score := range s.results {
		candidates = append(candidates, evidence.Evidence{
			ItemID:          itemID,
			MediaType:       "text/plain",
			Score:           score,
			Text:            "stub evidence for " + itemID,
			Stage:           s.id,
			ConfigurationID: snap.Configuration.ConfigurationID,
			SnapshotID:      snap.SnapshotID,
		})
	}
	evidence.SortCandidates(candidates)
	kept := b.Apply(candidates)
	return evidence.NewResult(queryText, snap.SnapshotID, snap.Configuration.ConfigurationID, s.id, len(candidates), kept), nil
}

func stubRegistry(lex, emb *stubBackend) *Registry {
	r := NewRegistry(scenarioEmbedder())
	r.Register(lex)
	r.Register(emb)
	return r
}

func TestHybrid_FusesWeightedScores(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://hybrid", t.TempDir())
	c.AddText("doc", "anything")

	lex := &stubBackend{id: "stublex", results: map[string]float64{}}
	emb := &stubBackend{id: "stubemb", results: map[string]float64{"only-emb": 0.8}}
	r := stubRegistry(lex, emb)
	h, err := r.Get("hybrid")
	require.NoError(t, err)

	snap, err := h.BuildSnapshot(ctx, c, "default", map[string]any{
		"lexical_backend":   "stublex",
		"embedding_backend": "stubemb",
		"lexical_weight":    0.3,
		"embedding_weight":  0.7,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Stats["lexical_snapshot_id"])
	assert.NotEmpty(t, snap.Stats["embedding_snapshot_id"])

	res, err := h.Query(ctx, c, snap, "anything", budget.Budget{MaxTotalItems: 5})
	require.NoError(t, err)

	// An item retrieved only by the embedding child at 0.8 fuses to
	// 0.8 * 0.7 = 0.56 with a zero lexical stage score.
	require.Len(t, res.Evidence, 1)
	ev := res.Evidence[0]
	assert.Equal(t, "only-emb", ev.ItemID)
	assert.InDelta(t, 0.56, ev.Score, 1e-9)
	assert.Equal(t, "hybrid", ev.Stage)
	assert.Equal(t, 0.0, ev.StageScores["lexical"])
	assert.Equal(t, 0.8, ev.StageScores["embedding"])
	assert.Equal(t, snap.SnapshotID, ev.SnapshotID)
}

func TestHybrid_MergesByItemID(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://hybrid", t.TempDir())
	c.AddText("doc", "anything")

	lex := &stubBackend{id: "stublex", results: map[string]float64{"shared": 1.0, "lex-only": 0.4}}
	emb := &stubBackend{id: "stubemb", results: map[string]float64{"shared": 0.5}}
	r := stubRegistry(lex, emb)
	h, err := r.Get("hybrid")
	require.NoError(t, err)

	snap, err := h.BuildSnapshot(ctx, c, "default", map[string]any{
		"lexical_backend":   "stublex",
		"embedding_backend": "stubemb",
	})
	require.NoError(t, err)

	res, err := h.Query(ctx, c, snap, "anything", budget.Budget{MaxTotalItems: 5})
	require.NoError(t, err)

	require.Len(t, res.Evidence, 2)
	assert.Equal(t, "shared", res.Evidence[0].ItemID)
	assert.InDelta(t, 0.75, res.Evidence[0].Score, 1e-9)
	assert.Equal(t, "lex-only", res.Evidence[1].ItemID)
	assert.InDelta(t, 0.2, res.Evidence[1].Score, 1e-9)
}

func TestHybrid_ExpandsChildBudgets(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://hybrid", t.TempDir())
	c.AddText("doc", "anything")

	lex := &stubBackend{id: "stublex", results: map[string]float64{}}
	emb := &stubBackend{id: "stubemb", results: map[string]float64{}}
	r := stubRegistry(lex, emb)
	h, err := r.Get("hybrid")
	require.NoError(t, err)

	snap, err := h.BuildSnapshot(ctx, c, "default", map[string]any{
		"lexical_backend":   "stublex",
		"embedding_backend": "stubemb",
	})
	require.NoError(t, err)

	_, err = h.Query(ctx, c, snap, "anything", budget.Budget{MaxTotalItems: 2, Offset: 1, MaxItemsPerSource: 1})
	require.NoError(t, err)

	require.NotNil(t, lex.gotBudget)
	assert.Equal(t, 15, lex.gotBudget.MaxTotalItems)
	assert.Equal(t, 0, lex.gotBudget.Offset)
	assert.Equal(t, 5, lex.gotBudget.MaxItemsPerSource)
	assert.Equal(t, lex.gotBudget, emb.gotBudget)
}

func TestHybrid_ConfigValidation(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://hybrid", t.TempDir())
	c.AddText("doc", "anything")

	r := NewRegistry(scenarioEmbedder())
	h, err := r.Get("hybrid")
	require.NoError(t, err)

	_, err = h.BuildSnapshot(ctx, c, "default", map[string]any{
		"lexical_weight":   0.5,
		"embedding_weight": 0.6,
	})
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeConfigInvalid, qerrors.GetCode(err))

	_, err = h.BuildSnapshot(ctx, c, "default", map[string]any{
		"lexical_backend": "hybrid",
	})
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeConfigInvalid, qerrors.GetCode(err))
	assert.Contains(t, err.Error(), "compose itself")

	_, err = h.BuildSnapshot(ctx, c, "default", map[string]any{
		"lexical_backend": "nonexistent",
	})
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeUnknownBackend, qerrors.GetCode(err))
}

func TestHybrid_EndToEnd(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://hybrid", t.TempDir())
	c.AddText("item-alpha", "alpha")
	c.AddText("item-beta", "beta")
	c.AddText("item-gamma", "gamma")

	r := NewRegistry(scenarioEmbedder())
	h, err := r.Get("hybrid")
	require.NoError(t, err)

	snap, err := h.BuildSnapshot(ctx, c, "default", map[string]any{
		"lexical_weight":   0.4,
		"embedding_weight": 0.6,
	})
	require.NoError(t, err)

	// "alpha query" matches item-alpha lexically and its vector is the
	// query direction, so it must fuse to the top.
	res, err := h.Query(ctx, c, snap, "alpha query", budget.Budget{MaxTotalItems: 2})
	require.NoError(t, err)

	require.NotEmpty(t, res.Evidence)
	assert.LessOrEqual(t, len(res.Evidence), 2)
	assert.Equal(t, "item-alpha", res.Evidence[0].ItemID)
	assert.Equal(t, "hybrid", res.Evidence[0].Stage)
	ranks := make([]int, 0, len(res.Evidence))
	for _, ev := range res.Evidence {
		ranks = append(ranks, ev.Rank)
	}
	assert.Equal(t, []int{1, 2}[:len(res.Evidence)], ranks)
}
