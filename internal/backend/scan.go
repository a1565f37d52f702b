package backend

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/corpus"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

const scanID = "scan"

// ScanBackend is the naive substring-count ranker. It persists no
// artifacts; every query walks the live corpus text.
type ScanBackend struct{}

var _ Backend = (*ScanBackend)(nil)

// NewScanBackend creates the scan backend.
func NewScanBackend() *ScanBackend {
	return &ScanBackend{}
}

// ID returns "scan".
func (s *ScanBackend) ID() string { return scanID }

type scanConfig struct {
	SnippetMaxChars int
}

func parseScanConfig(configuration map[string]any) (scanConfig, error) {
	snippet, err := cfgInt(configuration, "snippet_max_chars", defaultSnippetMaxChars)
	if err != nil {
		return scanConfig{}, err
	}
	if snippet < 1 {
		return scanConfig{}, qerrors.ConfigError("snippet_max_chars must be >= 1, got %d", snippet)
	}
	return scanConfig{SnippetMaxChars: snippet}, nil
}

// BuildSnapshot records item counts for observability; there is nothing
// to materialize.
func (s *ScanBackend) BuildSnapshot(ctx context.Context, c corpus.Corpus, name string, configuration map[string]any) (*snapshot.Snapshot, error) {
	if _, err := parseScanConfig(configuration); err != nil {
		return nil, err
	}
	manifest, err := snapshot.NewManifest(scanID, name, configuration)
	if err != nil {
		return nil, err
	}
	snap := snapshot.New(manifest, c)
	store := snapshot.StoreFor(c.Root())

	return store.BuildOnce(snap.SnapshotID, func() (*snapshot.Snapshot, error) {
		items, err := c.Items(ctx)
		if err != nil {
			return nil, err
		}
		textItems := 0
		for _, item := range items {
			text, ok, err := c.ReadText(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			if ok && strings.TrimSpace(text) != "" {
				textItems++
			}
		}
		snap.Stats["items"] = strconv.Itoa(len(items))
		snap.Stats["text_items"] = strconv.Itoa(textItems)

		if err := store.Save(&snap); err != nil {
			return nil, err
		}
		slog.Debug("scan_snapshot_built",
			slog.String("snapshot_id", snap.SnapshotID),
			slog.Int("items", len(items)),
			slog.Int("text_items", textItems))
		return &snap, nil
	})
}

// Query tokenizes the query by whitespace (lowercased), scores each
// text-bearing item by summed substring occurrence counts, and snips
// around the earliest match.
func (s *ScanBackend) Query(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, queryText string, b budget.Budget) (*evidence.Result, error) {
	cfg, err := parseScanConfig(snap.Configuration.Configuration)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := snap.CheckFresh(c); err != nil {
		return nil, err
	}

	tokens := strings.Fields(strings.ToLower(queryText))
	items, err := c.Items(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []evidence.Evidence
	for _, item := range items {
		text, ok, err := c.ReadText(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}

		lower := strings.ToLower(text)
		score := 0
		earliest := -1
		for _, tok := range tokens {
			score += strings.Count(lower, tok)
			if pos := strings.Index(lower, tok); pos >= 0 && (earliest < 0 || pos < earliest) {
				earliest = pos
			}
		}
		if score == 0 {
			continue
		}

		// No recorded match position falls back to a plain prefix.
		center := 0
		if earliest >= 0 {
			center = earliest
		}
		snippet, start, end := centeredSnippet(text, center, cfg.SnippetMaxChars)

		ev := evidence.Evidence{
			ItemID:          item.ID,
			SourceURI:       item.SourceURI,
			MediaType:       item.MediaType,
			Score:           float64(score),
			Text:            snippet,
			SpanStart:       start,
			SpanEnd:         end,
			ConfigurationID: snap.Configuration.ConfigurationID,
			SnapshotID:      snap.SnapshotID,
		}
		candidates = append(candidates, ev.WithStage(scanID, float64(score)))
	}

	evidence.SortCandidates(candidates)
	kept := b.Apply(candidates)
	res := evidence.NewResult(queryText, snap.SnapshotID, snap.Configuration.ConfigurationID, scanID, len(candidates), kept)
	res.Budget = b
	return res, nil
}
