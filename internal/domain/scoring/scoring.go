// Package scoring holds the strategy chain: an ordered, closed set of scoring
// strategies from the richest (trained latent model) to the simplest (catalog
// rating fallback). Strategies are pure; every input they read is gathered
// into a Request before the chain runs.
package scoring

import (
	"fmt"
	"sort"

	"github.com/okian/meeple/internal/domain/latent"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/tier"
)

// neutralScore is returned when no tier can produce a score.
const neutralScore = 0.5

// maxExplanation bounds the explanation length.
const maxExplanation = 6

// Request is the read-only input of one scoring call.
type Request struct {
	Profile        model.UserProfile
	Candidate      model.Game
	CandidateKnown bool
	CatalogCount   int
	Stats          model.CatalogStats
	// Owned holds catalog metadata for the profile games found in the catalog.
	Owned map[int64]model.Game
	// Models are the trained models borrowed for this call, keyed by tier.
	Models map[model.Tier]*latent.Model
}

// overlap returns the profile games present in the catalog, excluding the
// candidate, in ascending id order.
func (r *Request) overlap() []model.OwnedGame {
	out := make([]model.OwnedGame, 0, len(r.Profile.Games))
	for _, g := range r.Profile.Games {
		if g.GameID == r.Candidate.ID {
			continue
		}
		if _, ok := r.Owned[g.GameID]; ok {
			out = append(out, g)
		}
	}
	return out
}

// Outcome is a successful strategy execution.
type Outcome struct {
	// Score is already normalized to [0,1].
	Score float64
	// Raw is the strategy's unnormalized score.
	Raw   float64
	parts []model.Contribution
}

// Strategy is one tier of the chain. The set of implementations is closed.
type Strategy interface {
	Tier() model.Tier
	// CanHandle returns nil when Execute can produce a score for req, or the
	// reason it cannot.
	CanHandle(req *Request) error
	Execute(req *Request) (Outcome, error)
	// Explain returns the ordered (feature, contribution) pairs for o.
	Explain(req *Request, o Outcome) []model.Contribution

	sealed()
}

// Option configures a Chain.
type Option func(*Chain)

// WithStrategies replaces the default strategy set.
func WithStrategies(strategies ...Strategy) Option {
	return func(c *Chain) {
		if len(strategies) > 0 {
			c.strategies = append([]Strategy(nil), strategies...)
		}
	}
}

// Chain runs strategies in tier order until one succeeds.
type Chain struct {
	gate       *tier.Gate
	strategies []Strategy
}

// NewChain creates a chain over gate. Without WithStrategies it uses the four
// default strategies.
func NewChain(gate *tier.Gate, opts ...Option) *Chain {
	c := &Chain{gate: gate}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.strategies) == 0 {
		c.strategies = []Strategy{
			NewRichModel(gate),
			NewReducedModel(gate),
			NewContentSimilarity(gate),
			NewRatingFallback(),
		}
	}
	sort.SliceStable(c.strategies, func(i, j int) bool {
		return c.strategies[i].Tier() < c.strategies[j].Tier()
	})
	return c
}

// Gate returns the chain's sufficiency gate.
func (c *Chain) Gate() *tier.Gate { return c.gate }

// Score walks the eligible tiers in order and returns the first success. A
// hint skips tiers richer than the hinted one; the hinted tier then falls
// through like any other. Score never fails: when every tier misses it
// returns a neutral result tagged no-data.
func (c *Chain) Score(req *Request, hint *model.Tier) model.ScoreResult {
	eligible := make(map[model.Tier]bool, len(model.AllTiers))
	for _, t := range c.gate.AvailableTiers(req.CatalogCount) {
		eligible[t] = true
	}

	var attempts []model.Attempt
	for _, s := range c.strategies {
		t := s.Tier()
		if hint != nil && t < *hint {
			continue
		}
		if !eligible[t] {
			err := fmt.Errorf("%w: %d games, %s needs %d", ErrBelowThreshold, req.CatalogCount, t, c.gate.MinGames(t))
			attempts = append(attempts, miss(t, err))
			continue
		}
		if err := s.CanHandle(req); err != nil {
			attempts = append(attempts, miss(t, err))
			continue
		}
		out, err := s.Execute(req)
		if err != nil {
			attempts = append(attempts, miss(t, err))
			continue
		}
		attempts = append(attempts, model.Attempt{Tier: t, Tag: t.Tag()})
		return model.NewScoreResult(req.Candidate.ID, out.Score, t.Tag(), s.Explain(req, out), attempts)
	}

	explanation := []model.Contribution{{Feature: "neutral", Value: neutralScore}}
	return model.NewScoreResult(req.Candidate.ID, neutralScore, model.TagNoData, explanation, attempts)
}

func miss(t model.Tier, err error) model.Attempt {
	return model.Attempt{Tier: t, Tag: t.Tag(), Reason: err.Error(), Err: err}
}

// Rank orders results by score descending, then game id ascending.
func Rank(results []model.ScoreResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score() != results[j].Score() {
			return results[i].Score() > results[j].Score()
		}
		return results[i].GameID() < results[j].GameID()
	})
}

func gameLabel(g model.Game) string {
	if g.Name != "" {
		return g.Name
	}
	return fmt.Sprintf("#%d", g.ID)
}

func truncate(parts []model.Contribution) []model.Contribution {
	if len(parts) > maxExplanation {
		parts = parts[:maxExplanation]
	}
	return append([]model.Contribution(nil), parts...)
}
