package search

import (
	"sort"

	"github.com/kestrel-search/kestrel/internal/store"
)

// DefaultRRFK is the RRF smoothing constant.
const DefaultRRFK = 20

// FusedHit is one result after Reciprocal Rank Fusion.
type FusedHit struct {
	ID       uint64
	RRFScore float64

	// Source ranks, 1-indexed; 0 means absent from that list.
	TextRank   int
	VectorRank int

	TextScore   float64
	VectorScore float32

	// InBoth marks hits present in both candidate lists.
	InBoth bool
}

// FuseRRF combines text and vector rank lists:
//
//	score(d) = Σ over lists containing d of 1 / (k + rank)
//
// An item in both lists therefore always outscores an item at the same
// ranks in only one. Ordering is deterministic: RRF score, then
// both-lists, then BM25 score, then ID.
func FuseRRF(text []*store.TextHit, vec []*store.VectorHit, k int) []*FusedHit {
	if k <= 0 {
		k = DefaultRRFK
	}
	if len(text) == 0 && len(vec) == 0 {
		return []*FusedHit{}
	}

	hits := make(map[uint64]*FusedHit, len(text)+len(vec))
	get := func(id uint64) *FusedHit {
		if h, ok := hits[id]; ok {
			return h
		}
		h := &FusedHit{ID: id}
		hits[id] = h
		return h
	}

	for i, t := range text {
		h := get(t.ID)
		h.TextRank = i + 1
		h.TextScore = t.Score
		h.RRFScore += 1.0 / float64(k+i+1)
	}
	for i, v := range vec {
		h := get(v.ID)
		h.VectorRank = i + 1
		h.VectorScore = v.Score
		h.RRFScore += 1.0 / float64(k+i+1)
		if h.TextRank > 0 {
			h.InBoth = true
		}
	}

	out := make([]*FusedHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return fusedLess(out[i], out[j]) })
	return out
}

// fusedLess reports whether a ranks before b.
func fusedLess(a, b *FusedHit) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBoth != b.InBoth {
		return a.InBoth
	}
	if a.TextScore != b.TextScore {
		return a.TextScore > b.TextScore
	}
	return a.ID < b.ID
}
