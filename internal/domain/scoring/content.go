package scoring

import (
	"fmt"
	"sort"

	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/similarity"
	"github.com/okian/meeple/internal/domain/tier"
)

// Content scoring defaults.
const (
	defaultMinOverlap   = 15
	defaultQualityBlend = 0.3
	topSimilar          = 3
)

// ContentOption configures ContentSimilarity.
type ContentOption func(*ContentSimilarity)

// WithMinOverlap sets how many catalog games the profile must share.
func WithMinOverlap(n int) ContentOption {
	return func(s *ContentSimilarity) {
		if n > 0 {
			s.minOverlap = n
		}
	}
}

// WithQualityBlend sets the share of the score taken by the candidate's
// quality; the rest comes from profile similarity.
func WithQualityBlend(w float64) ContentOption {
	return func(s *ContentSimilarity) {
		if w >= 0 && w <= 1 {
			s.blend = w
		}
	}
}

// WithEngine sets the similarity engine.
func WithEngine(e *similarity.Engine) ContentOption {
	return func(s *ContentSimilarity) {
		if e != nil {
			s.engine = e
		}
	}
}

// ContentSimilarity is tier C: the candidate's similarity to the profile's
// games, weighted by the user's ratings, blended with its catalog quality.
type ContentSimilarity struct {
	gate       *tier.Gate
	engine     *similarity.Engine
	minOverlap int
	blend      float64
}

// NewContentSimilarity creates the tier C strategy.
func NewContentSimilarity(gate *tier.Gate, opts ...ContentOption) *ContentSimilarity {
	s := &ContentSimilarity{
		gate:       gate,
		engine:     similarity.NewEngine(),
		minOverlap: defaultMinOverlap,
		blend:      defaultQualityBlend,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (*ContentSimilarity) Tier() model.Tier { return model.TierContent }
func (*ContentSimilarity) sealed()          {}

func (s *ContentSimilarity) CanHandle(req *Request) error {
	if !req.CandidateKnown {
		return fmt.Errorf("%w: game %d", ErrUnknownCandidate, req.Candidate.ID)
	}
	if n := len(req.overlap()); n < s.minOverlap {
		return fmt.Errorf("%w: %d comparable games, need %d", model.ErrInsufficientProfileOverlap, n, s.minOverlap)
	}
	return nil
}

type neighbour struct {
	game model.Game
	sim  float64
}

func (s *ContentSimilarity) Execute(req *Request) (Outcome, error) {
	if err := s.CanHandle(req); err != nil {
		return Outcome{}, err
	}
	cand := similarity.Vector(req.Candidate)

	var (
		weighted, weights, plain float64
		neighbours               []neighbour
	)
	owned := req.overlap()
	for _, o := range owned {
		g := req.Owned[o.GameID]
		sim := s.engine.Similarity(cand, similarity.Vector(g))
		w := o.EffectiveRating() / 10
		if w < 0 {
			w = 0
		}
		weighted += w * sim
		weights += w
		plain += sim
		neighbours = append(neighbours, neighbour{game: g, sim: sim})
	}
	affinity := plain / float64(len(owned))
	if weights > 0 {
		affinity = weighted / weights
	}

	quality := req.Stats.MeanQuality / 10
	if q, ok := model.Quality(req.Candidate); ok {
		quality = q / 10
	}

	simPart := (1 - s.blend) * affinity
	qualityPart := s.blend * quality
	parts := []model.Contribution{
		{Feature: "profile_similarity", Value: simPart},
		{Feature: "game_quality", Value: qualityPart},
	}

	sort.SliceStable(neighbours, func(i, j int) bool {
		if neighbours[i].sim != neighbours[j].sim {
			return neighbours[i].sim > neighbours[j].sim
		}
		return neighbours[i].game.ID < neighbours[j].game.ID
	})
	for i := 0; i < len(neighbours) && i < topSimilar; i++ {
		parts = append(parts, model.Contribution{Feature: "similar_to:" + gameLabel(neighbours[i].game), Value: neighbours[i].sim})
	}

	raw := simPart + qualityPart
	return Outcome{Score: model.Clamp01(raw), Raw: raw, parts: parts}, nil
}

func (*ContentSimilarity) Explain(_ *Request, o Outcome) []model.Contribution {
	return truncate(o.parts)
}
