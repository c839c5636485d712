package model

import (
	"fmt"
	"strings"
)

// Tier identifies one strategy level in the fallback chain. Lower values are
// richer; the chain always walks tiers in ascending order.
type Tier int

// Tiers, richest first.
const (
	TierRich Tier = iota + 1
	TierReduced
	TierContent
	TierFallback
)

// Strategy tags reported in ScoreResult.
const (
	TagRichModel      = "rich-model"
	TagReducedModel   = "reduced-model"
	TagContent        = "content-similarity"
	TagRatingFallback = "rating-fallback"
	TagNoData         = "no-data"
)

// AllTiers lists every tier in chain order.
var AllTiers = []Tier{TierRich, TierReduced, TierContent, TierFallback}

// TrainedTiers lists the tiers backed by a trained model.
var TrainedTiers = []Tier{TierRich, TierReduced}

// Tag returns the strategy tag for the tier.
func (t Tier) Tag() string {
	switch t {
	case TierRich:
		return TagRichModel
	case TierReduced:
		return TagReducedModel
	case TierContent:
		return TagContent
	case TierFallback:
		return TagRatingFallback
	default:
		return TagNoData
	}
}

// Letter returns the short A-D name of the tier.
func (t Tier) Letter() string {
	if t < TierRich || t > TierFallback {
		return "?"
	}
	return string(rune('A' + int(t) - 1))
}

func (t Tier) String() string { return t.Tag() }

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool { return t >= TierRich && t <= TierFallback }

// Trained reports whether the tier requires a trained artifact.
func (t Tier) Trained() bool { return t == TierRich || t == TierReduced }

// ParseTier accepts a tag ("rich-model"), a letter ("A") or a short name
// ("rich", "reduced", "content", "fallback").
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "rich", TagRichModel:
		return TierRich, nil
	case "b", "reduced", TagReducedModel:
		return TierReduced, nil
	case "c", "content", TagContent:
		return TierContent, nil
	case "d", "fallback", TagRatingFallback:
		return TierFallback, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}
