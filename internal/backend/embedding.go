package backend

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/chunk"
	"github.com/quarrylabs/quarry/internal/corpus"
	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

const (
	// defaultOverFetch is the candidate over-fetch factor applied before
	// the budget pass: per-source and character constraints can
	// eliminate top-ranked candidates.
	defaultOverFetch = 10

	defaultEmbedChunkSize    = 512
	defaultEmbedChunkOverlap = 64
	defaultBatchSize         = 256
	defaultMaxChunks         = 100000

	embeddingsArtifactSuffix = "embeddings.npy"
	chunksArtifactSuffix     = "chunks.jsonl"
)

// embedIndexConfig is shared by every embedding-index variant.
type embedIndexConfig struct {
	ChunkSize    int
	ChunkOverlap int

	// BatchSize bounds the file-backed variant's per-read row count.
	BatchSize int
	// MaxChunks is the in-memory variant's hard build-time cap.
	MaxChunks int

	SnippetMaxChars int

	// ExtractorID and ExtractionSnapshotID select an extraction-pipeline
	// text source richer than raw item text, when the corpus supports it.
	ExtractorID          string
	ExtractionSnapshotID string
}

func parseEmbedIndexConfig(configuration map[string]any) (embedIndexConfig, error) {
	cfg := embedIndexConfig{}
	var err error
	if cfg.ChunkSize, err = cfgInt(configuration, "chunk_size", defaultEmbedChunkSize); err != nil {
		return cfg, err
	}
	if cfg.ChunkOverlap, err = cfgInt(configuration, "chunk_overlap", defaultEmbedChunkOverlap); err != nil {
		return cfg, err
	}
	if _, err = chunk.NewFixedCharChunker(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return cfg, err
	}
	if cfg.BatchSize, err = cfgInt(configuration, "batch_size", defaultBatchSize); err != nil {
		return cfg, err
	}
	if cfg.BatchSize < 1 {
		return cfg, qerrors.ConfigError("batch_size must be >= 1, got %d", cfg.BatchSize)
	}
	if cfg.MaxChunks, err = cfgInt(configuration, "max_chunks", defaultMaxChunks); err != nil {
		return cfg, err
	}
	if cfg.MaxChunks < 1 {
		return cfg, qerrors.ConfigError("max_chunks must be >= 1, got %d", cfg.MaxChunks)
	}
	if cfg.SnippetMaxChars, err = cfgInt(configuration, "snippet_max_chars", defaultSnippetMaxChars); err != nil {
		return cfg, err
	}
	if cfg.SnippetMaxChars < 1 {
		return cfg, qerrors.ConfigError("snippet_max_chars must be >= 1, got %d", cfg.SnippetMaxChars)
	}
	if cfg.ExtractorID, err = cfgString(configuration, "extractor_id", ""); err != nil {
		return cfg, err
	}
	if cfg.ExtractionSnapshotID, err = cfgString(configuration, "extraction_snapshot_id", ""); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg embedIndexConfig) textSource(c corpus.Corpus) corpus.TextSource {
	return corpus.TextSource{
		Corpus:               c,
		ExtractorID:          cfg.ExtractorID,
		ExtractionSnapshotID: cfg.ExtractionSnapshotID,
	}
}

// collectChunks chunks every text-bearing item of the corpus, returning
// parallel chunk records and texts in catalog order.
func collectChunks(ctx context.Context, c corpus.Corpus, cfg embedIndexConfig) ([]chunk.Record, []string, error) {
	chunker, err := chunk.NewFixedCharChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}
	source := cfg.textSource(c)

	items, err := c.Items(ctx)
	if err != nil {
		return nil, nil, err
	}
	var records []chunk.Record
	var texts []string
	for _, item := range items {
		text, ok, err := source.Text(ctx, item.ID)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		for _, ch := range chunker.Chunk(item.ID, text, len(records)) {
			records = append(records, ch.Record())
			texts = append(texts, ch.Text)
		}
	}
	return records, texts, nil
}

// buildEmbeddingArtifacts embeds all chunk texts in one provider call
// and persists the normalized matrix plus the parallel chunk records.
func buildEmbeddingArtifacts(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, backendID string, records []chunk.Record, texts []string, embedder embed.Embedder) error {
	vectors, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return qerrors.ConsistencyError(
			"embedding provider returned %d vectors for %d chunk texts in snapshot %s",
			len(vectors), len(texts), snap.SnapshotID)
	}
	for _, vec := range vectors {
		embed.NormalizeVector(vec)
	}

	matrixName := snap.ArtifactName(backendID, embeddingsArtifactSuffix)
	recordsName := snap.ArtifactName(backendID, chunksArtifactSuffix)
	if err := snapshot.WriteMatrix(filepath.Join(c.Root(), matrixName), vectors, embedder.Dimensions()); err != nil {
		return err
	}
	if err := snapshot.WriteRecords(filepath.Join(c.Root(), recordsName), records); err != nil {
		return err
	}

	snap.Artifacts = append(snap.Artifacts, matrixName, recordsName)
	snap.Stats["chunks"] = strconv.Itoa(len(records))
	snap.Stats["dimensions"] = strconv.Itoa(embedder.Dimensions())
	return nil
}

// embedQueryVector embeds the query text, which must yield exactly one
// vector, and L2-normalizes it.
func embedQueryVector(ctx context.Context, embedder embed.Embedder, queryText string) ([]float32, error) {
	vectors, err := embedder.EmbedTexts(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, qerrors.ProviderShapeError(
			"embedding provider returned %d vectors for a single-text query embed", len(vectors))
	}
	return embed.NormalizeVector(vectors[0]), nil
}

// rowScore pairs a matrix row index with its similarity score.
type rowScore struct {
	row   int
	score float64
}

// sortRowScores orders best-first with row index as the deterministic
// tie-break.
func sortRowScores(scored []rowScore) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].row < scored[j].row
	})
}

// evidenceFromRows materializes evidence for the scored rows, re-slicing
// the live item text for snippets so they always reflect the current
// (or extracted) text rather than a stale persisted copy.
func evidenceFromRows(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, stage string, cfg embedIndexConfig, records []chunk.Record, scored []rowScore) ([]evidence.Evidence, error) {
	items, err := c.Items(ctx)
	if err != nil {
		return nil, err
	}
	itemByID := make(map[string]corpus.Item, len(items))
	for _, item := range items {
		itemByID[item.ID] = item
	}

	source := cfg.textSource(c)
	textCache := make(map[string]string)

	candidates := make([]evidence.Evidence, 0, len(scored))
	for _, rs := range scored {
		rec := records[rs.row]
		item, ok := itemByID[rec.ItemID]
		if !ok {
			continue
		}
		text, cached := textCache[rec.ItemID]
		if !cached {
			var found bool
			text, found, err = source.Text(ctx, rec.ItemID)
			if err != nil {
				return nil, err
			}
			if !found {
				text = ""
			}
			textCache[rec.ItemID] = text
		}
		if text == "" {
			continue
		}

		snippet, _, _ := centeredSnippet(text, (rec.SpanStart+rec.SpanEnd)/2, cfg.SnippetMaxChars)
		ev := evidence.Evidence{
			ItemID:          rec.ItemID,
			SourceURI:       item.SourceURI,
			MediaType:       item.MediaType,
			Score:           rs.score,
			Text:            snippet,
			SpanStart:       rec.SpanStart,
			SpanEnd:         rec.SpanEnd,
			ConfigurationID: snap.Configuration.ConfigurationID,
			SnapshotID:      snap.SnapshotID,
		}
		candidates = append(candidates, ev.WithStage(stage, rs.score))
	}
	return candidates, nil
}

// finishEmbedQuery applies the shared tail of every embedding-index
// query: sort, budget, envelope.
func finishEmbedQuery(snap *snapshot.Snapshot, backendID, queryText string, b budget.Budget, candidates []evidence.Evidence) *evidence.Result {
	evidence.SortCandidates(candidates)
	kept := b.Apply(candidates)
	res := evidence.NewResult(queryText, snap.SnapshotID, snap.Configuration.ConfigurationID, backendID, len(candidates), kept)
	res.Budget = b
	return res
}
