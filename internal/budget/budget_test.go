package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/evidence"
)

func candidate(itemID, source, text string, score float64) evidence.Evidence {
	return evidence.Evidence{ItemID: itemID, SourceURI: source, Text: text, Score: score}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Budget{MaxTotalItems: 1}.Validate())
	require.Error(t, Budget{MaxTotalItems: 0}.Validate())
	require.Error(t, Budget{MaxTotalItems: 1, Offset: -1}.Validate())
	require.Error(t, Budget{MaxTotalItems: 1, MaxTotalChars: -5}.Validate())
	require.Error(t, Budget{MaxTotalItems: 1, MaxItemsPerSource: -1}.Validate())
}

func TestApply_MaxTotalItems(t *testing.T) {
	b := Budget{MaxTotalItems: 2}
	kept := b.Apply([]evidence.Evidence{
		candidate("a", "", "x", 3),
		candidate("b", "", "x", 2),
		candidate("c", "", "x", 1),
	})

	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ItemID)
	assert.Equal(t, 1, kept[0].Rank)
	assert.Equal(t, 2, kept[1].Rank)
}

func TestApply_Offset(t *testing.T) {
	b := Budget{MaxTotalItems: 2, Offset: 1}
	kept := b.Apply([]evidence.Evidence{
		candidate("a", "", "x", 3),
		candidate("b", "", "x", 2),
		candidate("c", "", "x", 1),
	})

	require.Len(t, kept, 2)
	assert.Equal(t, "b", kept[0].ItemID)
	assert.Equal(t, "c", kept[1].ItemID)
	// Ranks restart at 1 in final output order.
	assert.Equal(t, 1, kept[0].Rank)
}

// With {max_total_items: 2, max_items_per_source: 1}, three pre-ranked
// candidates from the same source collapse to the single best.
func TestApply_PerSourceCap(t *testing.T) {
	b := Budget{MaxTotalItems: 2, MaxItemsPerSource: 1}
	kept := b.Apply([]evidence.Evidence{
		candidate("a", "src", "x", 3),
		candidate("b", "src", "x", 2),
		candidate("c", "src", "x", 1),
	})

	require.Len(t, kept, 1)
	assert.Equal(t, "a", kept[0].ItemID)
}

func TestApply_PerSourceFallsBackToItemID(t *testing.T) {
	b := Budget{MaxTotalItems: 5, MaxItemsPerSource: 1}
	kept := b.Apply([]evidence.Evidence{
		candidate("a", "", "x", 3),
		candidate("a", "", "x", 2),
		candidate("b", "", "x", 1),
	})

	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ItemID)
	assert.Equal(t, "b", kept[1].ItemID)
}

// Candidates are skipped whole, never truncated, so a later shorter
// candidate may be accepted out of original order.
func TestApply_CharacterBudgetSkipsWhole(t *testing.T) {
	b := Budget{MaxTotalItems: 3, MaxTotalChars: 10}
	kept := b.Apply([]evidence.Evidence{
		candidate("a", "", "123456", 3),  // 6 chars, accepted
		candidate("b", "", "1234567", 2), // would reach 13, skipped
		candidate("c", "", "1234", 1),    // reaches exactly 10, accepted
	})

	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ItemID)
	assert.Equal(t, "c", kept[1].ItemID)
	assert.Equal(t, []int{1, 2}, []int{kept[0].Rank, kept[1].Rank})
}

func TestApply_RanksAreContiguous(t *testing.T) {
	b := Budget{MaxTotalItems: 10, MaxItemsPerSource: 1}
	kept := b.Apply([]evidence.Evidence{
		candidate("a", "s1", "x", 5),
		candidate("b", "s1", "x", 4), // rejected by source cap
		candidate("c", "s2", "x", 3),
		candidate("d", "s3", "x", 2),
	})

	require.Len(t, kept, 3)
	for i, e := range kept {
		assert.Equal(t, i+1, e.Rank, "ranks are exactly 1..len with no gaps")
	}
}

func TestApply_EmptyCandidates(t *testing.T) {
	b := Budget{MaxTotalItems: 3}
	assert.Empty(t, b.Apply(nil))
}

func TestFetchLimit(t *testing.T) {
	b := Budget{MaxTotalItems: 5, Offset: 2}
	assert.Equal(t, 70, b.FetchLimit(10))
	assert.Equal(t, 7, b.FetchLimit(0), "multiplier is floored at 1")
}

func TestExpand(t *testing.T) {
	b := Budget{MaxTotalItems: 3, Offset: 1, MaxTotalChars: 100, MaxItemsPerSource: 2}
	e := b.Expand(5)

	assert.Equal(t, 20, e.MaxTotalItems)
	assert.Equal(t, 0, e.Offset)
	assert.Equal(t, 500, e.MaxTotalChars)
	assert.Equal(t, 10, e.MaxItemsPerSource)

	// Unset caps stay unset.
	e = Budget{MaxTotalItems: 2}.Expand(5)
	assert.Zero(t, e.MaxTotalChars)
	assert.Zero(t, e.MaxItemsPerSource)
}
