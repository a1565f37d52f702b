// Package evidence defines the common output record every retrieval
// backend produces and the response envelope returned to callers.
package evidence

import (
	"sort"
	"time"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// Evidence is a single ranked, budget-surviving result unit.
//
// Scores are backend-defined real numbers where higher is better; there
// is no cross-backend normalization guarantee except inside hybrid
// fusion. Instances are treated as immutable: use the With* helpers.
type Evidence struct {
	ItemID    string `json:"item_id"`
	SourceURI string `json:"source_uri,omitempty"`
	MediaType string `json:"media_type"`

	Score float64 `json:"score"`
	// Rank is 1-based and assigned after budgeting.
	Rank int `json:"rank,omitempty"`

	// Exactly one of Text or ContentRef must be non-empty.
	Text       string `json:"text,omitempty"`
	ContentRef string `json:"content_ref,omitempty"`

	SpanStart int `json:"span_start,omitempty"`
	SpanEnd   int `json:"span_end,omitempty"`

	// Stage labels which pipeline stage produced the score
	// (a backend id, or "rerank"/"hybrid").
	Stage       string             `json:"stage"`
	StageScores map[string]float64 `json:"stage_scores,omitempty"`

	ConfigurationID string `json:"configuration_id"`
	SnapshotID      string `json:"snapshot_id"`

	Metadata map[string]string `json:"metadata,omitempty"`
	Hash     string            `json:"hash,omitempty"`
}

// Validate checks the text/content_ref exclusivity invariant.
func (e Evidence) Validate() error {
	hasText := e.Text != ""
	hasRef := e.ContentRef != ""
	if hasText == hasRef {
		return qerrors.ValidationError(
			"evidence for item %s must carry exactly one of text or content_ref", e.ItemID)
	}
	return nil
}

// WithRank returns a copy with the rank set.
func (e Evidence) WithRank(rank int) Evidence {
	e.Rank = rank
	return e
}

// WithStage returns a copy relabeled to the given stage with the stage
// score recorded.
func (e Evidence) WithStage(stage string, score float64) Evidence {
	scores := make(map[string]float64, len(e.StageScores)+1)
	for k, v := range e.StageScores {
		scores[k] = v
	}
	scores[stage] = score
	e.Stage = stage
	e.StageScores = scores
	return e
}

// Source returns the per-source budget key: the source URI when present,
// the item id otherwise.
func (e Evidence) Source() string {
	if e.SourceURI != "" {
		return e.SourceURI
	}
	return e.ItemID
}

// SortCandidates orders candidates best-first with the deterministic
// tie-break (-score, item_id) so results are stable across runs.
func SortCandidates(candidates []Evidence) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ItemID < candidates[j].ItemID
	})
}

// Result is the response envelope for one query.
type Result struct {
	QueryText string `json:"query_text"`
	// Budget echoes the query budget the caller supplied. Typed as any
	// to keep this package free of a budget-package dependency.
	Budget          any            `json:"budget,omitempty"`
	SnapshotID      string         `json:"snapshot_id"`
	ConfigurationID string         `json:"configuration_id"`
	RetrieverID     string         `json:"retriever_id"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Evidence        []Evidence     `json:"evidence"`
	Stats           map[string]int `json:"stats"`
}

// NewResult assembles the envelope with candidate/returned stats.
func NewResult(queryText, snapshotID, configurationID, retrieverID string, candidates int, kept []Evidence) *Result {
	return &Result{
		QueryText:       queryText,
		SnapshotID:      snapshotID,
		ConfigurationID: configurationID,
		RetrieverID:     retrieverID,
		GeneratedAt:     time.Now().UTC(),
		Evidence:        kept,
		Stats: map[string]int{
			"candidates": candidates,
			"returned":   len(kept),
		},
	}
}
