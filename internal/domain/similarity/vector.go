// Package similarity compares games through derived feature vectors.
//
// Vectors are computed on demand from a model.Game and never stored; the same
// game always yields the same vector.
package similarity

import (
	"sort"
	"strings"

	"github.com/okian/meeple/internal/domain/model"
)

// Normalization bounds for the numeric dimensions.
const (
	maxRating = 10.0
	maxWeight = 5.0
)

// FeatureVector is the numeric encoding of a game used for comparison.
// Numeric fields are scaled to [0,1]; a negative value means unknown.
type FeatureVector struct {
	GameID     int64
	Categories []string // sorted, deduplicated
	Mechanics  []string // sorted, deduplicated
	Rating     float64
	Rank       float64
	Complexity float64
}

// Vector derives the feature vector of g.
func Vector(g model.Game) FeatureVector {
	v := FeatureVector{
		GameID:     g.ID,
		Categories: labelSet(g.Categories),
		Mechanics:  labelSet(g.Mechanics),
		Rating:     -1,
		Rank:       -1,
		Complexity: -1,
	}
	if g.Rated() {
		v.Rating = model.Clamp01(g.Rating / maxRating)
	}
	if g.Ranked() {
		v.Rank = model.RankScore(g.Rank) / maxRating
	}
	if g.Weight > 0 {
		v.Complexity = model.Clamp01(g.Weight / maxWeight)
	}
	return v
}

func labelSet(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// overlap returns |a∩b| and |a∪b| for two sorted sets.
func overlap(a, b []string) (inter, union int) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return inter, len(a) + len(b) - inter
}
