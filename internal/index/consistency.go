package index

import (
	"context"
	"sort"
)

// Report describes inconsistencies between the three stores. A healthy
// index has the same chunk-id set in the vector store, the full-text
// store, and the union of FileMeta records.
type Report struct {
	// VectorOnly are chunk IDs present in the vector store but missing
	// from the full-text store.
	VectorOnly []uint64

	// FTSOnly are chunk IDs present in the full-text store but missing
	// from the vector store.
	FTSOnly []uint64

	// Untracked are chunk IDs in the vector store that no FileMeta
	// record claims.
	Untracked []uint64

	// MissingChunks are chunk IDs claimed by FileMeta records but
	// absent from the vector store.
	MissingChunks []uint64
}

// Clean reports whether no inconsistencies were found.
func (r *Report) Clean() bool {
	return len(r.VectorOnly) == 0 && len(r.FTSOnly) == 0 &&
		len(r.Untracked) == 0 && len(r.MissingChunks) == 0
}

// Verify cross-checks the chunk-id sets of all three stores.
func (m *Maintainer) Verify(ctx context.Context) (*Report, error) {
	vecIDs, err := m.eng.Vectors.AllIDs()
	if err != nil {
		return nil, err
	}
	ftsIDs, err := m.eng.FTS.AllIDs()
	if err != nil {
		return nil, err
	}

	vecSet := toSet(vecIDs)
	ftsSet := toSet(ftsIDs)

	tracked := make(map[uint64]struct{})
	for path := range m.eng.Files.IterPaths(ctx) {
		meta, err := m.eng.Files.Get(ctx, path)
		if err != nil {
			continue
		}
		for _, id := range meta.ChunkIDs {
			tracked[id] = struct{}{}
		}
	}

	report := &Report{}
	for id := range vecSet {
		if _, ok := ftsSet[id]; !ok {
			report.VectorOnly = append(report.VectorOnly, id)
		}
		if _, ok := tracked[id]; !ok {
			report.Untracked = append(report.Untracked, id)
		}
	}
	for id := range ftsSet {
		if _, ok := vecSet[id]; !ok {
			report.FTSOnly = append(report.FTSOnly, id)
		}
	}
	for id := range tracked {
		if _, ok := vecSet[id]; !ok {
			report.MissingChunks = append(report.MissingChunks, id)
		}
	}

	for _, s := range [][]uint64{report.VectorOnly, report.FTSOnly, report.Untracked, report.MissingChunks} {
		sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	}
	return report, nil
}

func toSet(ids []uint64) map[uint64]struct{} {
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
