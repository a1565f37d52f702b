package backend

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/chunk"
	"github.com/quarrylabs/quarry/internal/corpus"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

const (
	lexicalID   = "lexical"
	rerankStage = "rerank"
)

// LexicalBackend indexes chunk text into a SQLite FTS5 virtual table and
// ranks with the engine's built-in bm25() function. FTS5 returns
// negative ranks where lower is better; scores are negated to the
// higher-is-better Evidence convention.
type LexicalBackend struct{}

var _ Backend = (*LexicalBackend)(nil)

// NewLexicalBackend creates the full-text backend.
func NewLexicalBackend() *LexicalBackend {
	return &LexicalBackend{}
}

// ID returns "lexical".
func (l *LexicalBackend) ID() string { return lexicalID }

type lexicalConfig struct {
	ChunkSize    int
	ChunkOverlap int

	// StopWords nil means the built-in English list; an explicit empty
	// list disables stop-word filtering.
	StopWords []string

	// BM25K1 and BM25B are validated here but FTS5's built-in bm25()
	// defaults are what actually rank; the parameters are not forwarded.
	BM25K1 float64
	BM25B  float64

	Rerank     bool
	RerankTopK int
}

func parseLexicalConfig(configuration map[string]any) (lexicalConfig, error) {
	cfg := lexicalConfig{}
	var err error
	if cfg.ChunkSize, err = cfgInt(configuration, "chunk_size", chunk.DefaultWindow); err != nil {
		return cfg, err
	}
	if cfg.ChunkOverlap, err = cfgInt(configuration, "chunk_overlap", chunk.DefaultOverlap); err != nil {
		return cfg, err
	}
	if _, err = chunk.NewFixedCharChunker(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return cfg, err
	}
	if cfg.StopWords, err = cfgStringSlice(configuration, "stop_words"); err != nil {
		return cfg, err
	}
	if cfg.BM25K1, err = cfgFloat(configuration, "bm25_k1", 1.2); err != nil {
		return cfg, err
	}
	if cfg.BM25K1 <= 0 {
		return cfg, qerrors.ConfigError("bm25_k1 must be > 0, got %v", cfg.BM25K1)
	}
	if cfg.BM25B, err = cfgFloat(configuration, "bm25_b", 0.75); err != nil {
		return cfg, err
	}
	if cfg.BM25B < 0 || cfg.BM25B > 1 {
		return cfg, qerrors.ConfigError("bm25_b must be in [0, 1], got %v", cfg.BM25B)
	}
	if cfg.Rerank, err = cfgBool(configuration, "rerank", false); err != nil {
		return cfg, err
	}
	if cfg.RerankTopK, err = cfgInt(configuration, "rerank_top_k", 20); err != nil {
		return cfg, err
	}
	if cfg.RerankTopK < 1 {
		return cfg, qerrors.ConfigError("rerank_top_k must be >= 1, got %d", cfg.RerankTopK)
	}
	return cfg, nil
}

// BuildSnapshot chunks every text item into the FTS5 table, building to
// a temp file and publishing by rename. An existing index for the same
// snapshot id is reused as is.
func (l *LexicalBackend) BuildSnapshot(ctx context.Context, c corpus.Corpus, name string, configuration map[string]any) (*snapshot.Snapshot, error) {
	cfg, err := parseLexicalConfig(configuration)
	if err != nil {
		return nil, err
	}
	manifest, err := snapshot.NewManifest(lexicalID, name, configuration)
	if err != nil {
		return nil, err
	}
	snap := snapshot.New(manifest, c)
	dbPath := filepath.Join(c.Root(), snap.IndexName())
	store := snapshot.StoreFor(c.Root())

	return store.BuildOnce(snap.SnapshotID, func() (*snapshot.Snapshot, error) {
		err := snapshot.WithBuildLock(c.Root(), snap.SnapshotID, func() error {
			if _, statErr := os.Stat(dbPath); statErr == nil {
				return nil
			}
			chunks, buildErr := l.buildIndex(ctx, c, cfg, dbPath)
			if buildErr != nil {
				return buildErr
			}
			snap.Stats["chunks"] = strconv.Itoa(chunks)
			return nil
		})
		if err != nil {
			return nil, err
		}
		snap.Artifacts = []string{snap.IndexName()}

		if err := store.Save(&snap); err != nil {
			return nil, err
		}
		slog.Debug("lexical_snapshot_built",
			slog.String("snapshot_id", snap.SnapshotID),
			slog.String("index", snap.IndexName()))
		return &snap, nil
	})
}

func (l *LexicalBackend) buildIndex(ctx context.Context, c corpus.Corpus, cfg lexicalConfig, dbPath string) (int, error) {
	chunker, err := chunk.NewFixedCharChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return 0, err
	}

	tmpPath := dbPath + ".tmp"
	_ = os.Remove(tmpPath)
	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	// The index is built once to a temp file and published by rename;
	// crash safety comes from the rename, not the journal.
	pragmas := []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return 0, qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
		}
	}

	schema := `
	CREATE VIRTUAL TABLE chunks_full_text_search USING fts5(
		content,
		item_id UNINDEXED,
		source_uri UNINDEXED,
		media_type UNINDEXED,
		relpath UNINDEXED,
		title UNINDEXED,
		span_start UNINDEXED,
		span_end UNINDEXED,
		tokenize='unicode61'
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks_full_text_search
			(content, item_id, source_uri, media_type, relpath, title, span_start, span_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	defer insert.Close()

	items, err := c.Items(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, item := range items {
		text, ok, err := c.ReadText(ctx, item.ID)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		for _, ch := range chunker.Chunk(item.ID, text, total) {
			_, err := insert.ExecContext(ctx, ch.Text, ch.ItemID,
				item.SourceURI, item.MediaType, item.RelPath,
				item.Metadata["title"], ch.SpanStart, ch.SpanEnd)
			if err != nil {
				return 0, qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
			}
			total++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	if err := db.Close(); err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	if err := os.Rename(tmpPath, dbPath); err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	return total, nil
}

// Query strips stop words, short-circuits to an empty result when
// nothing is left, otherwise issues one FTS5 MATCH ordered by the
// native rank, optionally reranking the head by literal term presence
// in the stored chunk text.
func (l *LexicalBackend) Query(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, queryText string, b budget.Budget) (*evidence.Result, error) {
	cfg, err := parseLexicalConfig(snap.Configuration.Configuration)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := snap.CheckFresh(c); err != nil {
		return nil, err
	}

	stopSet := buildStopWordSet(cfg.StopWords)
	terms := filterStopWords(strings.Fields(strings.ToLower(queryText)), stopSet)
	if len(terms) == 0 {
		res := evidence.NewResult(queryText, snap.SnapshotID, snap.Configuration.ConfigurationID, lexicalID, 0, nil)
		res.Budget = b
		return res, nil
	}

	dbPath := filepath.Join(c.Root(), snap.IndexName())
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, qerrors.ArtifactMissing(snap.SnapshotID, dbPath, err)
	}
	db, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeSearchFailed, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT content, item_id, source_uri, media_type, span_start, span_end,
		       bm25(chunks_full_text_search) AS rank
		FROM chunks_full_text_search
		WHERE chunks_full_text_search MATCH ?
		ORDER BY rank, item_id, span_start
		LIMIT ?`, matchExpression(terms), b.FetchLimit(defaultOverFetch))
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeSearchFailed, err)
	}
	defer rows.Close()

	var candidates []evidence.Evidence
	for rows.Next() {
		var content, itemID, sourceURI, mediaType string
		var spanStart, spanEnd int
		var rank float64
		if err := rows.Scan(&content, &itemID, &sourceURI, &mediaType, &spanStart, &spanEnd, &rank); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeSearchFailed, err)
		}
		ev := evidence.Evidence{
			ItemID:          itemID,
			SourceURI:       sourceURI,
			MediaType:       mediaType,
			Score:           -rank,
			Text:            content,
			SpanStart:       spanStart,
			SpanEnd:         spanEnd,
			ConfigurationID: snap.Configuration.ConfigurationID,
			SnapshotID:      snap.SnapshotID,
		}
		candidates = append(candidates, ev.WithStage(lexicalID, -rank))
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeSearchFailed, err)
	}

	if cfg.Rerank {
		rerankHead(candidates, terms, cfg.RerankTopK)
	}

	kept := b.Apply(candidates)
	res := evidence.NewResult(queryText, snap.SnapshotID, snap.Configuration.ConfigurationID, lexicalID, len(candidates), kept)
	res.Budget = b
	return res, nil
}

// matchExpression builds an OR query of quoted terms so punctuation in
// the input cannot change the FTS5 query structure. FTS5 strings have
// no backslash escapes; an embedded double quote is doubled instead.
func matchExpression(terms []string) string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// rerankHead re-scores the top k candidates by the count of query terms
// literally present in the stored chunk text and re-sorts them by that
// secondary score. Both scores stay visible in stage_scores.
func rerankHead(candidates []evidence.Evidence, terms []string, topK int) {
	k := topK
	if k > len(candidates) {
		k = len(candidates)
	}
	for i := 0; i < k; i++ {
		lower := strings.ToLower(candidates[i].Text)
		present := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				present++
			}
		}
		reranked := candidates[i].WithStage(rerankStage, float64(present))
		reranked.Score = float64(present)
		candidates[i] = reranked
	}
	head := candidates[:k]
	sort.SliceStable(head, func(i, j int) bool {
		if head[i].Score != head[j].Score {
			return head[i].Score > head[j].Score
		}
		return head[i].ItemID < head[j].ItemID
	})
}
