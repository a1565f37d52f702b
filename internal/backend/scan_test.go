package backend

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/corpus"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

func TestScan_RanksBySubstringCount(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://scan", t.TempDir())
	c.AddText("doc1", "alpha beta alpha")
	c.AddText("doc2", "beta only here")
	c.AddText("doc3", "gamma gamma gamma")

	b := NewScanBackend()
	snap, err := b.BuildSnapshot(ctx, c, "default", nil)
	require.NoError(t, err)
	assert.Equal(t, "3", snap.Stats["items"])
	assert.Equal(t, "3", snap.Stats["text_items"])

	res, err := b.Query(ctx, c, snap, "Alpha", budget.Budget{MaxTotalItems: 10})
	require.NoError(t, err)

	// Only doc1 contains "alpha"; it occurs twice.
	require.Len(t, res.Evidence, 1)
	assert.Equal(t, "doc1", res.Evidence[0].ItemID)
	assert.Equal(t, 2.0, res.Evidence[0].Score)
	assert.Equal(t, 1, res.Evidence[0].Rank)
	assert.Equal(t, "scan", res.Evidence[0].Stage)
	assert.Equal(t, 1, res.Stats["candidates"])
	assert.Equal(t, 1, res.Stats["returned"])
}

func TestScan_TieBreaksByItemID(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://scan", t.TempDir())
	c.AddText("zeta", "beta")
	c.AddText("alpha", "beta")

	b := NewScanBackend()
	snap, err := b.BuildSnapshot(ctx, c, "default", nil)
	require.NoError(t, err)

	res, err := b.Query(ctx, c, snap, "beta", budget.Budget{MaxTotalItems: 10})
	require.NoError(t, err)

	require.Len(t, res.Evidence, 2)
	assert.Equal(t, "alpha", res.Evidence[0].ItemID)
	assert.Equal(t, "zeta", res.Evidence[1].ItemID)
}

func TestScan_SnippetCentersEarliestMatch(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://scan", t.TempDir())
	text := strings.Repeat("x", 500) + " needle " + strings.Repeat("y", 500)
	c.AddText("doc", text)

	b := NewScanBackend()
	snap, err := b.BuildSnapshot(ctx, c, "default", map[string]any{"snippet_max_chars": 40})
	require.NoError(t, err)

	res, err := b.Query(ctx, c, snap, "needle", budget.Budget{MaxTotalItems: 1})
	require.NoError(t, err)

	require.Len(t, res.Evidence, 1)
	ev := res.Evidence[0]
	assert.Len(t, ev.Text, 40)
	assert.Contains(t, ev.Text, "needle")
	assert.Equal(t, text[ev.SpanStart:ev.SpanEnd], ev.Text)
}

func TestScan_StaleSnapshot(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://scan", t.TempDir())
	c.AddText("doc", "alpha")

	b := NewScanBackend()
	snap, err := b.BuildSnapshot(ctx, c, "default", nil)
	require.NoError(t, err)

	c.Touch()
	_, err = b.Query(ctx, c, snap, "alpha", budget.Budget{MaxTotalItems: 1})
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeSnapshotStale, qerrors.GetCode(err))
}

func TestScan_RejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	c := corpus.NewMemoryCorpus("mem://scan", t.TempDir())
	c.AddText("doc", "alpha")

	_, err := NewScanBackend().BuildSnapshot(ctx, c, "default", map[string]any{"snippet_max_chars": 0})
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeConfigInvalid, qerrors.GetCode(err))
}

// gatedCorpus blocks the first Items call until released so a second
// build can pile up behind it.
type gatedCorpus struct {
	*corpus.MemoryCorpus
	itemsCalls atomic.Int32
	started    chan struct{}
	gate       chan struct{}
}

func (g *gatedCorpus) Items(ctx context.Context) ([]corpus.Item, error) {
	if g.itemsCalls.Add(1) == 1 {
		close(g.started)
		<-g.gate
	}
	return g.MemoryCorpus.Items(ctx)
}

func TestScan_ConcurrentBuildsShareOneExecution(t *testing.T) {
	g := &gatedCorpus{
		MemoryCorpus: corpus.NewMemoryCorpus("mem://scan", t.TempDir()),
		started:      make(chan struct{}),
		gate:         make(chan struct{}),
	}
	g.AddText("doc", "alpha beta")

	b := NewScanBackend()
	type result struct {
		snap *snapshot.Snapshot
		err  error
	}
	results := make(chan result, 2)
	go func() {
		snap, err := b.BuildSnapshot(context.Background(), g, "default", nil)
		results <- result{snap, err}
	}()
	<-g.started
	go func() {
		snap, err := b.BuildSnapshot(context.Background(), g, "default", nil)
		results <- result{snap, err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(g.gate)

	first := <-results
	second := <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Equal(t, first.snap.SnapshotID, second.snap.SnapshotID)
	assert.Equal(t, int32(1), g.itemsCalls.Load(), "the second concurrent build should reuse the in-flight one")
}
