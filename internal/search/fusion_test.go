package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-search/kestrel/internal/store"
)

func textHits(ids ...uint64) []*store.TextHit {
	hits := make([]*store.TextHit, len(ids))
	for i, id := range ids {
		hits[i] = &store.TextHit{ID: id, Score: float64(len(ids) - i)}
	}
	return hits
}

func vecHits(ids ...uint64) []*store.VectorHit {
	hits := make([]*store.VectorHit, len(ids))
	for i, id := range ids {
		hits[i] = &store.VectorHit{ID: id, Score: float32(len(ids)-i) * 0.1}
	}
	return hits
}

func TestFuseRRFBothListsOutranksSingleListAtSameRank(t *testing.T) {
	// ID 1 is rank 1 in both lists; ID 2 is rank 2 in text only,
	// ID 3 rank 2 in vector only.
	fused := FuseRRF(textHits(1, 2), vecHits(1, 3), DefaultRRFK)

	require.NotEmpty(t, fused)
	assert.Equal(t, uint64(1), fused[0].ID)
	assert.True(t, fused[0].InBoth)

	scores := make(map[uint64]float64)
	for _, h := range fused {
		scores[h.ID] = h.RRFScore
	}
	assert.Greater(t, scores[1], scores[2])
	assert.Greater(t, scores[1], scores[3])
}

func TestFuseRRFScoreFormula(t *testing.T) {
	fused := FuseRRF(textHits(7), vecHits(7), 20)

	require.Len(t, fused, 1)
	assert.InDelta(t, 2.0/21.0, fused[0].RRFScore, 1e-9)
}

func TestFuseRRFDeterministicTieBreak(t *testing.T) {
	// Two IDs each appear only in one list at the same rank: equal RRF
	// scores, tie broken by BM25 score then ID.
	text := []*store.TextHit{{ID: 5, Score: 1.0}}
	vec := []*store.VectorHit{{ID: 9, Score: 0.5}}

	fused := FuseRRF(text, vec, 20)
	require.Len(t, fused, 2)
	assert.Equal(t, uint64(5), fused[0].ID, "text hit wins on BM25 tiebreak")
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, nil, 20))

	fused := FuseRRF(textHits(1), nil, 20)
	require.Len(t, fused, 1)
	assert.False(t, fused[0].InBoth)
}

func TestFuseRRFRanksRecorded(t *testing.T) {
	fused := FuseRRF(textHits(1, 2, 3), vecHits(3, 2, 1), 20)

	byID := make(map[uint64]*FusedHit)
	for _, h := range fused {
		byID[h.ID] = h
	}
	assert.Equal(t, 1, byID[1].TextRank)
	assert.Equal(t, 3, byID[1].VectorRank)
	assert.Equal(t, 2, byID[2].TextRank)
	assert.Equal(t, 2, byID[2].VectorRank)
	assert.True(t, byID[2].InBoth)
}
