package backend

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/coder/hnsw"
	"github.com/google/renameio"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/corpus"
	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

const (
	embedHNSWID        = "embedhnsw"
	hnswArtifactSuffix = "hnsw"

	hnswDefaultM        = 16
	hnswDefaultEfSearch = 20
)

// EmbedHNSWBackend is the approximate-nearest-neighbor embedding
// variant. It persists an HNSW graph export next to the usual chunk
// records; graph keys are chunk-record row indices. Results are
// approximate; the exact embedding backends remain the reference
// behavior.
type EmbedHNSWBackend struct {
	embedder embed.Embedder
}

var _ Backend = (*EmbedHNSWBackend)(nil)

// NewEmbedHNSWBackend creates the HNSW embedding backend.
func NewEmbedHNSWBackend(embedder embed.Embedder) *EmbedHNSWBackend {
	return &EmbedHNSWBackend{embedder: embedder}
}

// ID returns "embedhnsw".
func (e *EmbedHNSWBackend) ID() string { return embedHNSWID }

func newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = hnswDefaultM
	graph.EfSearch = hnswDefaultEfSearch
	return graph
}

// BuildSnapshot embeds all chunks and exports the HNSW graph atomically
// alongside the chunk-record artifact.
func (e *EmbedHNSWBackend) BuildSnapshot(ctx context.Context, c corpus.Corpus, name string, configuration map[string]any) (*snapshot.Snapshot, error) {
	cfg, err := parseEmbedIndexConfig(configuration)
	if err != nil {
		return nil, err
	}
	manifest, err := snapshot.NewManifest(embedHNSWID, name, configuration)
	if err != nil {
		return nil, err
	}
	snap := snapshot.New(manifest, c)
	store := snapshot.StoreFor(c.Root())

	return store.BuildOnce(snap.SnapshotID, func() (*snapshot.Snapshot, error) {
		err := e.buildGraph(ctx, c, cfg, &snap)
		if err != nil {
			return nil, err
		}

		if err := store.Save(&snap); err != nil {
			return nil, err
		}
		slog.Debug("embedhnsw_snapshot_built",
			slog.String("snapshot_id", snap.SnapshotID),
			slog.String("chunks", snap.Stats["chunks"]))
		return &snap, nil
	})
}

// buildGraph materializes the HNSW graph and chunk records under the
// cross-process build lock.
func (e *EmbedHNSWBackend) buildGraph(ctx context.Context, c corpus.Corpus, cfg embedIndexConfig, snap *snapshot.Snapshot) error {
	return snapshot.WithBuildLock(c.Root(), snap.SnapshotID, func() error {
		records, texts, err := collectChunks(ctx, c, cfg)
		if err != nil {
			return err
		}
		vectors, err := e.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return qerrors.ConsistencyError(
				"embedding provider returned %d vectors for %d chunk texts in snapshot %s",
				len(vectors), len(texts), snap.SnapshotID)
		}

		graph := newGraph()
		for i, vec := range vectors {
			graph.Add(hnsw.MakeNode(uint64(i), embed.NormalizeVector(vec)))
		}

		graphName := snap.ArtifactName(embedHNSWID, hnswArtifactSuffix)
		t, err := renameio.TempFile("", filepath.Join(c.Root(), graphName))
		if err != nil {
			return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
		}
		defer t.Cleanup()
		if err := graph.Export(t); err != nil {
			return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
		}
		if err := t.CloseAtomicallyReplace(); err != nil {
			return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
		}

		recordsName := snap.ArtifactName(embedHNSWID, chunksArtifactSuffix)
		if err := snapshot.WriteRecords(filepath.Join(c.Root(), recordsName), records); err != nil {
			return err
		}
		snap.Artifacts = append(snap.Artifacts, graphName, recordsName)
		snap.Stats["chunks"] = strconv.Itoa(len(records))
		return nil
	})
}

// Query imports the graph and searches it for the top candidates.
func (e *EmbedHNSWBackend) Query(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, queryText string, b budget.Budget) (*evidence.Result, error) {
	cfg, err := parseEmbedIndexConfig(snap.Configuration.Configuration)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := snap.CheckFresh(c); err != nil {
		return nil, err
	}

	queryVec, err := embedQueryVector(ctx, e.embedder, queryText)
	if err != nil {
		return nil, err
	}

	records, err := snapshot.ReadRecords(filepath.Join(c.Root(), snap.ArtifactName(embedHNSWID, chunksArtifactSuffix)))
	if err != nil {
		return nil, err
	}

	graphPath := filepath.Join(c.Root(), snap.ArtifactName(embedHNSWID, hnswArtifactSuffix))
	f, err := os.Open(graphPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qerrors.ArtifactMissing(snap.SnapshotID, graphPath, err)
		}
		return nil, qerrors.Wrap(qerrors.ErrCodeArtifactCorrupt, err)
	}
	defer f.Close()

	graph := newGraph()
	// coder/hnsw Import requires an io.ByteReader.
	if err := graph.Import(bufio.NewReader(f)); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeArtifactCorrupt, err)
	}
	if graph.Len() != len(records) {
		return nil, qerrors.ConsistencyError(
			"snapshot %s has %d graph nodes but %d chunk records",
			snap.SnapshotID, graph.Len(), len(records))
	}

	var scored []rowScore
	if graph.Len() > 0 {
		for _, node := range graph.Search(queryVec, b.FetchLimit(defaultOverFetch)) {
			scored = append(scored, rowScore{
				row:   int(node.Key),
				score: float64(embed.Dot(queryVec, node.Value)),
			})
		}
		sortRowScores(scored)
	}

	candidates, err := evidenceFromRows(ctx, c, snap, embedHNSWID, cfg, records, scored)
	if err != nil {
		return nil, err
	}
	return finishEmbedQuery(snap, embedHNSWID, queryText, b, candidates), nil
}
