// Package tier decides which strategy tiers a corpus of a given size can
// support. It only prunes: eligible tiers are always returned richest first.
package tier

import "github.com/okian/meeple/internal/domain/model"

// Thresholds holds the minimum catalog size for each tier.
type Thresholds struct {
	Rich     int
	Reduced  int
	Content  int
	Fallback int
}

// DefaultThresholds returns the production minimums.
func DefaultThresholds() Thresholds {
	return Thresholds{Rich: 10000, Reduced: 100, Content: 15, Fallback: 1}
}

// Gate is the corpus sufficiency gate.
type Gate struct {
	thresholds Thresholds
}

// Option configures a Gate.
type Option func(*Gate)

// WithThresholds replaces the default thresholds. Non-positive values keep the
// default for that tier.
func WithThresholds(t Thresholds) Option {
	return func(g *Gate) {
		d := DefaultThresholds()
		if t.Rich <= 0 {
			t.Rich = d.Rich
		}
		if t.Reduced <= 0 {
			t.Reduced = d.Reduced
		}
		if t.Content <= 0 {
			t.Content = d.Content
		}
		if t.Fallback <= 0 {
			t.Fallback = d.Fallback
		}
		g.thresholds = t
	}
}

// NewGate creates a gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{thresholds: DefaultThresholds()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Thresholds returns the configured minimums.
func (g *Gate) Thresholds() Thresholds { return g.thresholds }

// MinGames returns the catalog size t requires, or 0 for an unknown tier.
func (g *Gate) MinGames(t model.Tier) int {
	switch t {
	case model.TierRich:
		return g.thresholds.Rich
	case model.TierReduced:
		return g.thresholds.Reduced
	case model.TierContent:
		return g.thresholds.Content
	case model.TierFallback:
		return g.thresholds.Fallback
	}
	return 0
}

// Eligible reports whether a catalog of count games meets t's minimum.
func (g *Gate) Eligible(t model.Tier, count int) bool {
	return t.Valid() && count >= g.MinGames(t)
}

// AvailableTiers returns the tiers a catalog of count games supports, in
// chain order. Growing the catalog never removes a tier.
func (g *Gate) AvailableTiers(count int) []model.Tier {
	out := make([]model.Tier, 0, len(model.AllTiers))
	for _, t := range model.AllTiers {
		if g.Eligible(t, count) {
			out = append(out, t)
		}
	}
	return out
}
