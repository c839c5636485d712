package scoring

import (
	"fmt"

	"github.com/okian/meeple/internal/domain/model"
)

// FallbackOption configures RatingFallback.
type FallbackOption func(*RatingFallback)

// WithBayesianShrink blends the candidate's own rating into the score,
// weighting the catalog mean as m pseudo-votes. Zero keeps the plain catalog
// mean.
func WithBayesianShrink(m float64) FallbackOption {
	return func(s *RatingFallback) {
		if m >= 0 {
			s.prior = m
		}
	}
}

// RatingFallback is tier D. It scores every candidate with the catalog mean
// rating normalized to [0,1]. The candidate's own rating only moves the score
// when Bayesian shrink is enabled.
type RatingFallback struct {
	prior float64
}

// NewRatingFallback creates the tier D strategy.
func NewRatingFallback(opts ...FallbackOption) *RatingFallback {
	s := &RatingFallback{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (*RatingFallback) Tier() model.Tier { return model.TierFallback }
func (*RatingFallback) sealed()          {}

func (*RatingFallback) CanHandle(req *Request) error {
	if req.Stats.RatedCount == 0 {
		return fmt.Errorf("%w: %d games", ErrNoRatedGames, req.Stats.Count)
	}
	return nil
}

func (s *RatingFallback) Execute(req *Request) (Outcome, error) {
	if err := s.CanHandle(req); err != nil {
		return Outcome{}, err
	}
	mean := req.Stats.MeanQuality

	var votes, quality float64
	if req.CandidateKnown {
		if q, ok := model.Quality(req.Candidate); ok && req.Candidate.Votes > 0 {
			votes, quality = float64(req.Candidate.Votes), q
		}
	}

	if s.prior == 0 || votes == 0 {
		parts := []model.Contribution{{Feature: "catalog_mean", Value: mean / 10}}
		return Outcome{Score: model.Clamp01(mean / 10), Raw: mean, parts: parts}, nil
	}

	total := votes + s.prior
	raw := (votes*quality + s.prior*mean) / total
	parts := []model.Contribution{
		{Feature: "catalog_mean", Value: s.prior * mean / total / 10},
		{Feature: "game_quality", Value: votes * quality / total / 10},
	}
	return Outcome{Score: model.Clamp01(raw / 10), Raw: raw, parts: parts}, nil
}

func (*RatingFallback) Explain(_ *Request, o Outcome) []model.Contribution {
	return truncate(o.parts)
}
