package search

import "sort"

// RankedList is one named engine's ordered contribution to fusion. IDs
// are in rank order, best first; rank positions start at 1.
type RankedList struct {
	Engine EngineKind
	Weight float64
	IDs    []string
}

// Fuse combines ranked lists with weighted reciprocal rank fusion: each
// id scores the sum of weight/(k+rank) over the lists that contain it;
// lists missing an id contribute nothing. An id's engine label comes
// from the list that ranked it best. Ties break by id so output order
// is deterministic.
func Fuse(lists []RankedList, k int) []NoteIDRank {
	if k <= 0 {
		k = DefaultRRFK
	}

	type fused struct {
		score    float64
		engine   EngineKind
		bestRank int
	}
	scores := make(map[string]*fused)

	for _, list := range lists {
		for i, id := range list.IDs {
			rank := i + 1
			f, ok := scores[id]
			if !ok {
				f = &fused{engine: list.Engine, bestRank: rank}
				scores[id] = f
			} else if rank < f.bestRank {
				f.engine = list.Engine
				f.bestRank = rank
			}
			f.score += list.Weight / float64(k+rank)
		}
	}

	out := make([]NoteIDRank, 0, len(scores))
	for id, f := range scores {
		out = append(out, NoteIDRank{ID: id, Score: f.score, Engine: f.engine})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
