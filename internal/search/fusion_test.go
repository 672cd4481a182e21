package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankOf(t *testing.T, fused []NoteIDRank, id string) int {
	t.Helper()
	for i, r := range fused {
		if r.ID == id {
			return i
		}
	}
	t.Fatalf("id %q not in fused list", id)
	return -1
}

func TestFuseAgreementBeatsSingleList(t *testing.T) {
	lists := []RankedList{
		{Engine: EngineLexical, Weight: 1.0, IDs: []string{"A", "B", "C"}},
		{Engine: EngineSemantic, Weight: 1.0, IDs: []string{"B", "A", "C"}},
	}
	for _, k := range []int{1, 10, 60, 1000} {
		fused := Fuse(lists, k)
		require.Len(t, fused, 3)
		assert.Less(t, rankOf(t, fused, "A"), rankOf(t, fused, "C"), "k=%d", k)
		assert.Less(t, rankOf(t, fused, "B"), rankOf(t, fused, "C"), "k=%d", k)
	}
}

func TestFuseWeightRaisesUniqueIDs(t *testing.T) {
	base := []RankedList{
		{Engine: EngineLexical, Weight: 1.0, IDs: []string{"shared", "lexonly"}},
		{Engine: EngineSemantic, Weight: 1.0, IDs: []string{"shared", "semonly"}},
	}
	boosted := []RankedList{
		{Engine: EngineLexical, Weight: 1.0, IDs: []string{"shared", "lexonly"}},
		{Engine: EngineSemantic, Weight: 2.0, IDs: []string{"shared", "semonly"}},
	}

	before := Fuse(base, 60)
	after := Fuse(boosted, 60)

	// Equal weights tie semonly with lexonly, breaking by id; doubling
	// the semantic weight must pull semonly strictly ahead.
	assert.Less(t, rankOf(t, before, "lexonly"), rankOf(t, before, "semonly"))
	assert.Less(t, rankOf(t, after, "semonly"), rankOf(t, after, "lexonly"))
}

func TestFuseAbsentListContributesNothing(t *testing.T) {
	lists := []RankedList{
		{Engine: EngineLexical, Weight: 1.0, IDs: []string{"A"}},
		{Engine: EngineSemantic, Weight: 1.0, IDs: nil},
	}
	fused := Fuse(lists, 60)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/61.0, fused[0].Score, 1e-12)
}

func TestFuseEngineFromBestRank(t *testing.T) {
	lists := []RankedList{
		{Engine: EngineLexical, Weight: 1.0, IDs: []string{"other", "A"}},
		{Engine: EngineSemantic, Weight: 1.0, IDs: []string{"A"}},
	}
	fused := Fuse(lists, 60)
	for _, r := range fused {
		if r.ID == "A" {
			assert.Equal(t, EngineSemantic, r.Engine)
		}
	}
}

func TestFuseDeterministicTieBreak(t *testing.T) {
	lists := []RankedList{
		{Engine: EngineLexical, Weight: 1.0, IDs: []string{"b"}},
		{Engine: EngineSemantic, Weight: 1.0, IDs: []string{"a"}},
	}
	fused := Fuse(lists, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
	assert.Equal(t, "b", fused[1].ID)
}

func TestFuseEmpty(t *testing.T) {
	assert.Empty(t, Fuse(nil, 60))
	assert.Empty(t, Fuse([]RankedList{{Engine: EngineGrep, Weight: 1.0}}, 60))
}
