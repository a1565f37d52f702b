package backend

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/corpus"
	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

const embedMemID = "embedmem"

// EmbedMemBackend is the in-memory dense-embedding index. It shares the
// artifact format with the file-backed variant but loads the whole
// matrix per query, which is acceptable only because the index is
// size-capped at build time.
type EmbedMemBackend struct {
	embedder embed.Embedder
}

var _ Backend = (*EmbedMemBackend)(nil)

// NewEmbedMemBackend creates the in-memory embedding backend.
func NewEmbedMemBackend(embedder embed.Embedder) *EmbedMemBackend {
	return &EmbedMemBackend{embedder: embedder}
}

// ID returns "embedmem".
func (e *EmbedMemBackend) ID() string { return embedMemID }

// BuildSnapshot rejects corpora whose chunk count exceeds the configured
// cap, never degrading, then persists the same artifact pair as the
// file-backed variant.
func (e *EmbedMemBackend) BuildSnapshot(ctx context.Context, c corpus.Corpus, name string, configuration map[string]any) (*snapshot.Snapshot, error) {
	cfg, err := parseEmbedIndexConfig(configuration)
	if err != nil {
		return nil, err
	}
	manifest, err := snapshot.NewManifest(embedMemID, name, configuration)
	if err != nil {
		return nil, err
	}
	snap := snapshot.New(manifest, c)
	store := snapshot.StoreFor(c.Root())

	return store.BuildOnce(snap.SnapshotID, func() (*snapshot.Snapshot, error) {
		err := snapshot.WithBuildLock(c.Root(), snap.SnapshotID, func() error {
			records, texts, err := collectChunks(ctx, c, cfg)
			if err != nil {
				return err
			}
			if len(records) > cfg.MaxChunks {
				return qerrors.ValidationError(
					"corpus produced %d chunks, exceeding the in-memory index cap of %d", len(records), cfg.MaxChunks)
			}
			return buildEmbeddingArtifacts(ctx, c, &snap, embedMemID, records, texts, e.embedder)
		})
		if err != nil {
			return nil, err
		}

		if err := store.Save(&snap); err != nil {
			return nil, err
		}
		slog.Debug("embedmem_snapshot_built",
			slog.String("snapshot_id", snap.SnapshotID),
			slog.String("chunks", snap.Stats["chunks"]))
		return &snap, nil
	})
}

// Query loads the full matrix, computes the complete score vector, and
// selects the global top candidates directly.
func (e *EmbedMemBackend) Query(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, queryText string, b budget.Budget) (*evidence.Result, error) {
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

	records, err := snapshot.ReadRecords(filepath.Join(c.Root(), snap.ArtifactName(embedMemID, chunksArtifactSuffix)))
	if err != nil {
		return nil, err
	}
	matrix, cols, err := snapshot.ReadMatrix(filepath.Join(c.Root(), snap.ArtifactName(embedMemID, embeddingsArtifactSuffix)))
	if err != nil {
		return nil, err
	}

	if len(matrix) != len(records) {
		return nil, qerrors.ConsistencyError(
			"snapshot %s has %d embedding rows but %d chunk records",
			snap.SnapshotID, len(matrix), len(records))
	}
	if len(matrix) > 0 && cols != len(queryVec) {
		return nil, qerrors.ConsistencyError(
			"snapshot %s stores %d-dimensional embeddings but the query embedded to %d dimensions",
			snap.SnapshotID, cols, len(queryVec))
	}

	scored := make([]rowScore, len(matrix))
	for i, vec := range matrix {
		scored[i] = rowScore{row: i, score: float64(embed.Dot(queryVec, vec))}
	}
	sortRowScores(scored)
	if limit := b.FetchLimit(defaultOverFetch); len(scored) > limit {
		scored = scored[:limit]
	}

	candidates, err := evidenceFromRows(ctx, c, snap, embedMemID, cfg, records, scored)
	if err != nil {
		return nil, err
	}
	return finishEmbedQuery(snap, embedMemID, queryText, b, candidates), nil
}
