// Package budget implements the deterministic post-ranking evidence
// selector. It is the single place where "how much evidence comes back"
// is decided, decoupled from how backends score and rank candidates.
package budget

import (
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
)

// DefaultMaxTotalItems is the item cap used when callers do not set one.
const DefaultMaxTotalItems = 10

// Budget is a pure selection policy over an already-ranked candidate
// stream. It never influences scoring.
type Budget struct {
	// MaxTotalItems caps the number of accepted candidates. Must be >= 1.
	MaxTotalItems int `json:"max_total_items"`

	// Offset skips the first candidates for pagination. Must be >= 0.
	Offset int `json:"offset"`

	// MaxTotalChars caps the running sum of accepted text lengths.
	// Zero means unlimited.
	MaxTotalChars int `json:"maximum_total_characters,omitempty"`

	// MaxItemsPerSource caps accepted items per source URI (falling back
	// to item id). Zero means unlimited.
	MaxItemsPerSource int `json:"max_items_per_source,omitempty"`
}

// Validate checks the budget invariants eagerly.
func (b Budget) Validate() error {
	if b.MaxTotalItems < 1 {
		return qerrors.ValidationError("budget max_total_items must be >= 1, got %d", b.MaxTotalItems)
	}
	if b.Offset < 0 {
		return qerrors.ValidationError("budget offset must be >= 0, got %d", b.Offset)
	}
	if b.MaxTotalChars < 0 {
		return qerrors.ValidationError("budget maximum_total_characters must be >= 0, got %d", b.MaxTotalChars)
	}
	if b.MaxItemsPerSource < 0 {
		return qerrors.ValidationError("budget max_items_per_source must be >= 0, got %d", b.MaxItemsPerSource)
	}
	return nil
}

// FetchLimit is the over-fetch size backends request from their ranked
// source before applying the budget, since per-source and character
// constraints can eliminate top-ranked candidates.
func (b Budget) FetchLimit(multiplier int) int {
	if multiplier < 1 {
		multiplier = 1
	}
	return (b.MaxTotalItems + b.Offset) * multiplier
}

// Expand scales the budget for hybrid child queries: item count grows by
// (items+offset)*multiplier with offset zeroed, and the per-source and
// character caps scale by the same multiplier when set.
func (b Budget) Expand(multiplier int) Budget {
	if multiplier < 1 {
		multiplier = 1
	}
	expanded := Budget{
		MaxTotalItems: (b.MaxTotalItems + b.Offset) * multiplier,
		Offset:        0,
	}
	if b.MaxItemsPerSource > 0 {
		expanded.MaxItemsPerSource = b.MaxItemsPerSource * multiplier
	}
	if b.MaxTotalChars > 0 {
		expanded.MaxTotalChars = b.MaxTotalChars * multiplier
	}
	return expanded
}

// Apply selects from candidates, which must already be sorted best-first
// with the deterministic (-score, item_id) tie-break. Single forward
// pass: skip Offset, stop at MaxTotalItems, enforce the per-source cap,
// and skip whole candidates that would overflow the character budget
// (never truncate, so a later shorter candidate may still fit).
// Accepted candidates are renumbered rank = 1..k.
func (b Budget) Apply(candidates []evidence.Evidence) []evidence.Evidence {
	kept := make([]evidence.Evidence, 0, min(len(candidates), b.MaxTotalItems))
	perSource := make(map[string]int)
	totalChars := 0

	for i, cand := range candidates {
		if i < b.Offset {
			continue
		}
		if len(kept) >= b.MaxTotalItems {
			break
		}
		if b.MaxItemsPerSource > 0 && perSource[cand.Source()] >= b.MaxItemsPerSource {
			continue
		}
		if b.MaxTotalChars > 0 && totalChars+len(cand.Text) > b.MaxTotalChars {
			continue
		}

		perSource[cand.Source()]++
		totalChars += len(cand.Text)
		kept = append(kept, cand.WithRank(len(kept)+1))
	}

	return kept
}
