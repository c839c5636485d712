// Package latent implements the implicit-feedback matrix factorization used by
// the trained recommendation tiers. Item factors are learned offline with
// alternating least squares; user factors are folded in per request from the
// games in a profile, so no per-user state is stored in a model.
package latent

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/meeple/internal/domain/model"
)

// SchemaVersion is the artifact layout produced by this package. Artifacts
// carrying any other version are rejected.
const SchemaVersion = 1

// Meta describes where a model came from.
type Meta struct {
	Tier          model.Tier `json:"tier"`
	TrainedAt     time.Time  `json:"trainedAt"`
	CorpusSize    int        `json:"corpusSize"`
	SchemaVersion int        `json:"schemaVersion"`
}

// Model is an immutable trained model. It is safe for concurrent use.
type Model struct {
	meta   Meta
	params Params
	items  []int64
	y      [][]float64
	yty    [][]float64
	index  map[int64]int
}

// NewModel assembles a model from its parts. items must be the vocabulary in
// ascending id order and factors holds one row per item.
func NewModel(meta Meta, params Params, items []int64, factors [][]float64) (*Model, error) {
	if len(items) != len(factors) || len(items) == 0 {
		return nil, fmt.Errorf("%w: %d items, %d rows", ErrDimensionMismatch, len(items), len(factors))
	}
	k := len(factors[0])
	if k == 0 {
		return nil, fmt.Errorf("%w: zero factors", ErrDimensionMismatch)
	}
	index := make(map[int64]int, len(items))
	for i, id := range items {
		if len(factors[i]) != k {
			return nil, fmt.Errorf("%w: row %d has %d factors, want %d", ErrDimensionMismatch, i, len(factors[i]), k)
		}
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("%w: duplicate item %d", ErrDimensionMismatch, id)
		}
		index[id] = i
	}
	params.Factors = k
	return &Model{
		meta:   meta,
		params: params.withDefaults(),
		items:  items,
		y:      factors,
		yty:    gram(factors, k),
		index:  index,
	}, nil
}

func (m *Model) Meta() Meta           { return m.meta }
func (m *Model) Tier() model.Tier     { return m.meta.Tier }
func (m *Model) TrainedAt() time.Time { return m.meta.TrainedAt }
func (m *Model) CorpusSize() int      { return m.meta.CorpusSize }
func (m *Model) Params() Params       { return m.params }
func (m *Model) VocabularySize() int  { return len(m.items) }

// Knows reports whether gameID is in the vocabulary.
func (m *Model) Knows(gameID int64) bool {
	_, ok := m.index[gameID]
	return ok
}

// Items returns a copy of the vocabulary.
func (m *Model) Items() []int64 {
	out := make([]int64, len(m.items))
	copy(out, m.items)
	return out
}

// Factors returns a deep copy of the item factor rows.
func (m *Model) Factors() [][]float64 {
	out := make([][]float64, len(m.y))
	for i, row := range m.y {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Age returns how long ago the model was trained.
func (m *Model) Age(now time.Time) time.Duration { return now.Sub(m.meta.TrainedAt) }

// ItemContribution is the share of a raw prediction attributed to one game in
// the profile.
type ItemContribution struct {
	GameID int64
	Value  float64
}

// Prediction is a raw affinity plus its decomposition over the profile games
// that were known to the model.
type Prediction struct {
	Raw           float64
	Contributions []ItemContribution
}

// Predict folds the profile into the item space and returns the raw affinity
// for candidateID. It fails with model.ErrModelUnavailable when the candidate
// or every profile game is outside the vocabulary.
func (m *Model) Predict(profile model.UserProfile, candidateID int64) (Prediction, error) {
	ci, ok := m.index[candidateID]
	if !ok {
		return Prediction{}, fmt.Errorf("%w: game %d not in %s vocabulary", model.ErrModelUnavailable, candidateID, m.meta.Tier)
	}

	var (
		ids  []int64
		rows [][]float64
		conf []float64
	)
	for _, g := range profile.Games {
		i, known := m.index[g.GameID]
		if !known || g.GameID == candidateID {
			continue
		}
		ids = append(ids, g.GameID)
		rows = append(rows, m.y[i])
		conf = append(conf, m.params.confidence(g.EffectiveRating()))
	}
	if len(rows) == 0 {
		return Prediction{}, fmt.Errorf("%w: no profile games in %s vocabulary", model.ErrModelUnavailable, m.meta.Tier)
	}

	// raw = x·y_c with x = A⁻¹ Σ c_j y_j, so each owned game contributes
	// c_j · y_jᵀ A⁻¹ y_c.
	a, _ := normalMatrix(m.yty, m.params.Regularization, rows, conf)
	w := solve(a, m.y[ci])

	p := Prediction{Contributions: make([]ItemContribution, len(rows))}
	for j, row := range rows {
		v := conf[j] * dot(row, w)
		p.Raw += v
		p.Contributions[j] = ItemContribution{GameID: ids[j], Value: v}
	}
	sort.SliceStable(p.Contributions, func(i, j int) bool {
		ai, aj := math.Abs(p.Contributions[i].Value), math.Abs(p.Contributions[j].Value)
		if ai != aj {
			return ai > aj
		}
		return p.Contributions[i].GameID < p.Contributions[j].GameID
	})
	return p, nil
}

// Normalize maps a raw affinity onto [0,1]. Raw affinities cluster around the
// implicit preference of 1 for liked items, so the curve is centered at 0.5.
func Normalize(raw float64) float64 {
	if math.IsNaN(raw) {
		return 0.5
	}
	return model.Clamp01(1 / (1 + math.Exp(-6*(raw-0.5))))
}
