package backend

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/corpus"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

const tfVectorID = "tfvector"

// TFVectorBackend ranks by cosine similarity between unnormalized
// term-frequency vectors of the query and each item's full text. It is
// O(items x text length) per query and persists no artifacts; it serves
// as the always-correct oracle/fallback tier.
type TFVectorBackend struct{}

var _ Backend = (*TFVectorBackend)(nil)

// NewTFVectorBackend creates the term-frequency cosine backend.
func NewTFVectorBackend() *TFVectorBackend {
	return &TFVectorBackend{}
}

// ID returns "tfvector".
func (t *TFVectorBackend) ID() string { return tfVectorID }

// BuildSnapshot records item counts; queries recompute everything from
// live text.
func (t *TFVectorBackend) BuildSnapshot(ctx context.Context, c corpus.Corpus, name string, configuration map[string]any) (*snapshot.Snapshot, error) {
	if _, err := parseScanConfig(configuration); err != nil {
		return nil, err
	}
	manifest, err := snapshot.NewManifest(tfVectorID, name, configuration)
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
		snap.Stats["items"] = strconv.Itoa(len(items))

		if err := store.Save(&snap); err != nil {
			return nil, err
		}
		slog.Debug("tfvector_snapshot_built",
			slog.String("snapshot_id", snap.SnapshotID),
			slog.Int("items", len(items)))
		return &snap, nil
	})
}

// Query builds a term-frequency vector for the query and for every
// text-bearing item, ranks by cosine similarity, and excludes items
// with zero similarity.
func (t *TFVectorBackend) Query(ctx context.Context, c corpus.Corpus, snap *snapshot.Snapshot, queryText string, b budget.Budget) (*evidence.Result, error) {
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

	queryTF := termFrequencies(queryText)
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

		itemTF := termFrequencies(text)
		sim := cosineTF(queryTF, itemTF)
		if sim == 0 {
			continue
		}

		lower := strings.ToLower(text)
		earliest := -1
		for term := range queryTF {
			if pos := strings.Index(lower, term); pos >= 0 && (earliest < 0 || pos < earliest) {
				earliest = pos
			}
		}
		center := 0
		if earliest >= 0 {
			center = earliest
		}
		snippet, start, end := centeredSnippet(text, center, cfg.SnippetMaxChars)

		ev := evidence.Evidence{
			ItemID:          item.ID,
			SourceURI:       item.SourceURI,
			MediaType:       item.MediaType,
			Score:           sim,
			Text:            snippet,
			SpanStart:       start,
			SpanEnd:         end,
			ConfigurationID: snap.Configuration.ConfigurationID,
			SnapshotID:      snap.SnapshotID,
		}
		candidates = append(candidates, ev.WithStage(tfVectorID, sim))
	}

	evidence.SortCandidates(candidates)
	kept := b.Apply(candidates)
	res := evidence.NewResult(queryText, snap.SnapshotID, snap.Configuration.ConfigurationID, tfVectorID, len(candidates), kept)
	res.Budget = b
	return res, nil
}

// termFrequencies maps lowercased whitespace tokens to counts.
func termFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tf[tok]++
	}
	return tf
}

// cosineTF is the cosine similarity of two term-frequency vectors: dot
// product over the smaller vocabulary divided by the product of
// Euclidean norms.
func cosineTF(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}

	dot := 0
	for term, count := range small {
		dot += count * large[term]
	}
	if dot == 0 {
		return 0
	}
	return float64(dot) / (normTF(a) * normTF(b))
}

func normTF(tf map[string]int) float64 {
	sum := 0
	for _, count := range tf {
		sum += count * count
	}
	return math.Sqrt(float64(sum))
}
