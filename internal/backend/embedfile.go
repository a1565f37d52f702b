package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/corpus"
	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

const embedFileID = "embedfile"

// EmbedFileBackend is the file-backed dense-embedding index. Queries
// stream the persisted matrix in fixed-size row batches, keeping only
// each batch's local top candidates before a final merge, so peak
// memory stays bounded no matter how large the matrix grows.
type EmbedFileBackend struct {
	embedder embed.Embedder
}

var _ Backend = (*EmbedFileBackend)(nil)

// NewEmbedFileBackend creates the file-backed embedding backend.
func NewEmbedFileBackend(embedder embed.Embedder) *EmbedFileBackend {
	return &EmbedFileBackend{embedder: embedder}
}

// ID returns "embedfile".
func (e *EmbedFileBackend) ID() string { return embedFileID }

// BuildSnapshot chunks every text-bearing item, embeds all chunk texts
// in one provider call, and persists the matrix and chunk-record
// artifacts atomically.
func (e *EmbedFileBackend) BuildSnapshot(ctx context.Context, c corpus.Corpus, name string, configuration map[string]any) (*snapshot.Snapshot, error) {
	cfg, err := parseEmbedIndexConfig(configuration)
	if err != nil {
		return nil, err
	}
	manifest, err := snapshot.NewManifest(embedFileID, name, configuration)
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
			return buildEmbeddingArtifacts(ctx, c, &snap, embedFileID, records, texts, e.embedder)
		})
		if err != nil {
			return nil, err
		}

		if err := store.Save(&snap); err != nil {
			return nil, err
		}
		slog.Debug("embedfile_snapshot_built",
			slog.String("snapshot_id", snap.SnapshotID),
			slog.String("chunks", snap.Stats["chunks"]))
		return &snap, nil
	})
}

// Query embeds the query, then scans the matrix batch by batch with a
// two-level top-k: per-batch partial selection, then a merge across
// batches, never materializing a full sorted score array.
func (e *EmbedFileBackend) Query(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, queryText string, b budget.Budget) (*evidence.Result, error) {
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

	records, err := snapshot.ReadRecords(filepath.Join(c.Root(), snap.ArtifactName(embedFileID, chunksArtifactSuffix)))
	if err != nil {
		return nil, err
	}
	reader, err := snapshot.OpenMatrix(filepath.Join(c.Root(), snap.ArtifactName(embedFileID, embeddingsArtifactSuffix)))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if reader.Rows != len(records) {
		return nil, qerrors.ConsistencyError(
			"snapshot %s has %d embedding rows but %d chunk records",
			snap.SnapshotID, reader.Rows, len(records))
	}
	if reader.Rows > 0 && reader.Cols != len(queryVec) {
		return nil, qerrors.ConsistencyError(
			"snapshot %s stores %d-dimensional embeddings but the query embedded to %d dimensions",
			snap.SnapshotID, reader.Cols, len(queryVec))
	}

	limit := b.FetchLimit(defaultOverFetch)
	var merged []rowScore
	row := 0
	for {
		batch, err := reader.ReadBatch(cfg.BatchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		local := make([]rowScore, 0, len(batch))
		for i, vec := range batch {
			local = append(local, rowScore{row: row + i, score: float64(embed.Dot(queryVec, vec))})
		}
		row += len(batch)

		sortRowScores(local)
		if len(local) > limit {
			local = local[:limit]
		}
		merged = append(merged, local...)
	}
	sortRowScores(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	candidates, err := evidenceFromRows(ctx, c, snap, embedFileID, cfg, records, merged)
	if err != nil {
		return nil, err
	}
	return finishEmbedQuery(snap, embedFileID, queryText, b, candidates), nil
}
