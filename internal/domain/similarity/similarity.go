package similarity

import (
	"math"

	"github.com/okian/meeple/internal/domain/model"
)

// Dimension names used in weights and explanations.
const (
	DimCategories = "categories"
	DimMechanics  = "mechanics"
	DimRating     = "rating"
	DimRank       = "rank"
	DimComplexity = "weight"
)

// Weights sets the relative importance of each dimension. Label overlap is
// expected to dominate; the numeric dimensions break ties.
type Weights struct {
	Categories float64
	Mechanics  float64
	Rating     float64
	Rank       float64
	Complexity float64
}

// DefaultWeights returns the product-tuned default weighting.
func DefaultWeights() Weights {
	return Weights{
		Categories: 0.35,
		Mechanics:  0.45,
		Rating:     0.08,
		Rank:       0.04,
		Complexity: 0.08,
	}
}

// WeightsFromMap overlays the named entries of m onto the defaults. Unknown
// keys and negative values are ignored.
func WeightsFromMap(m map[string]float64) Weights {
	w := DefaultWeights()
	for k, v := range m {
		if v < 0 {
			continue
		}
		switch k {
		case DimCategories:
			w.Categories = v
		case DimMechanics:
			w.Mechanics = v
		case DimRating:
			w.Rating = v
		case DimRank:
			w.Rank = v
		case DimComplexity:
			w.Complexity = v
		}
	}
	return w
}

// Term is one dimension's share of a comparison.
type Term struct {
	Dimension string
	Value     float64 // similarity on this dimension, [0,1]
	Weight    float64 // normalized weight actually applied
}

// Breakdown is the per-dimension result of comparing two vectors.
type Breakdown struct {
	Total float64
	Terms []Term
}

// Engine computes similarities with a fixed weighting. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	weights Weights
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights replaces the default weighting.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		if w.Categories+w.Mechanics+w.Rating+w.Rank+w.Complexity > 0 {
			e.weights = w
		}
	}
}

// NewEngine creates a similarity engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights returns the engine's weighting.
func (e *Engine) Weights() Weights { return e.weights }

// Similarity returns a value in [0,1]. It is symmetric and Similarity(a, a)
// is 1 for every vector.
func (e *Engine) Similarity(a, b FeatureVector) float64 {
	return e.Compare(a, b).Total
}

// Compare returns the similarity with its per-dimension terms. Dimensions
// unknown for either side are left out and the remaining weights rescaled.
// When no dimension is known for the pair the vectors are indistinguishable
// and the total is 1.
func (e *Engine) Compare(a, b FeatureVector) Breakdown {
	terms := make([]Term, 0, 5)

	if w := e.weights.Categories; w > 0 && (len(a.Categories) > 0 || len(b.Categories) > 0) {
		inter, union := overlap(a.Categories, b.Categories)
		terms = append(terms, Term{Dimension: DimCategories, Value: float64(inter) / float64(union), Weight: w})
	}
	if w := e.weights.Mechanics; w > 0 && (len(a.Mechanics) > 0 || len(b.Mechanics) > 0) {
		inter, union := overlap(a.Mechanics, b.Mechanics)
		terms = append(terms, Term{Dimension: DimMechanics, Value: float64(inter) / float64(union), Weight: w})
	}
	terms = appendCloseness(terms, DimRating, a.Rating, b.Rating, e.weights.Rating)
	terms = appendCloseness(terms, DimRank, a.Rank, b.Rank, e.weights.Rank)
	terms = appendCloseness(terms, DimComplexity, a.Complexity, b.Complexity, e.weights.Complexity)

	var sumW float64
	for _, t := range terms {
		sumW += t.Weight
	}
	if sumW == 0 {
		return Breakdown{Total: 1}
	}

	// Divide once at the end so identical vectors score exactly 1.
	var weighted float64
	for _, t := range terms {
		weighted += t.Weight * t.Value
	}
	for i := range terms {
		terms[i].Weight /= sumW
	}
	return Breakdown{Total: model.Clamp01(weighted / sumW), Terms: terms}
}

func appendCloseness(terms []Term, dim string, a, b, w float64) []Term {
	if w <= 0 || a < 0 || b < 0 {
		return terms
	}
	return append(terms, Term{Dimension: dim, Value: 1 - math.Abs(a-b), Weight: w})
}

var defaultEngine = NewEngine() //nolint:gochecknoglobals // stateless default

// Similarity compares two vectors with the default weighting.
func Similarity(a, b FeatureVector) float64 {
	return defaultEngine.Similarity(a, b)
}
