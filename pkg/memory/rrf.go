package memory

import (
	"sort"
	"time"
)

// DefaultRRFK is the reciprocal rank fusion smoothing constant.
const DefaultRRFK = 60

// Ranked is one entry of a ranked list handed to Fuse.
type Ranked struct {
	ID             string
	LastAccessedAt time.Time
}

// Fused is one entry of a fused list.
type Fused struct {
	ID             string
	Score          float64
	LastAccessedAt time.Time
}

// WeightedList is a ranked list whose contributions are scaled by Weight.
type WeightedList struct {
	Items  []Ranked
	Weight float64
}

// Fuse merges ranked lists with reciprocal rank fusion: every appearance of
// an id at 1-based rank r contributes 1/(k+r). Ties are broken by recency,
// then id, so the result does not depend on the order of lists. A
// non-positive k selects DefaultRRFK. Duplicate ids within one list count
// at their best rank.
func Fuse(lists [][]Ranked, k float64) []Fused {
	weighted := make([]WeightedList, len(lists))
	for i, l := range lists {
		weighted[i] = WeightedList{Items: l, Weight: 1}
	}
	return FuseWeighted(weighted, k)
}

// FuseWeighted is Fuse with a per-list multiplier: an id at rank r of a
// list with weight w contributes w/(k+r). A non-positive weight counts as 1.
func FuseWeighted(lists []WeightedList, k float64) []Fused {
	if k <= 0 {
		k = DefaultRRFK
	}
	byID := make(map[string]*Fused)
	parts := make(map[string][]float64)
	for _, list := range lists {
		w := list.Weight
		if w <= 0 {
			w = 1
		}
		seen := make(map[string]struct{}, len(list.Items))
		for rank, item := range list.Items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			f, ok := byID[item.ID]
			if !ok {
				f = &Fused{ID: item.ID, LastAccessedAt: item.LastAccessedAt}
				byID[item.ID] = f
			}
			if item.LastAccessedAt.After(f.LastAccessedAt) {
				f.LastAccessedAt = item.LastAccessedAt
			}
			parts[item.ID] = append(parts[item.ID], w/(k+float64(rank+1)))
		}
	}

	out := make([]Fused, 0, len(byID))
	for id, f := range byID {
		// Sum in a fixed order so float rounding cannot depend on list order.
		p := parts[id]
		sort.Float64s(p)
		for _, c := range p {
			f.Score += c
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		return rankBefore(out[i].Score, out[j].Score, out[i].LastAccessedAt, out[j].LastAccessedAt, out[i].ID, out[j].ID)
	})
	return out
}

// rankBefore orders by score desc, last access desc, id asc.
func rankBefore(si, sj float64, ti, tj time.Time, idi, idj string) bool {
	if si != sj {
		return si > sj
	}
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return idi < idj
}
