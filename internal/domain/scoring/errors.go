package scoring

import "errors"

var (
	// ErrUnknownCandidate is returned by content scoring when the candidate is
	// missing from the catalog.
	ErrUnknownCandidate = errors.New("candidate not in catalog")
	// ErrNoRatedGames is returned by the rating fallback when nothing in the
	// catalog carries a rating or a rank.
	ErrNoRatedGames = errors.New("no rated or ranked game in catalog")
	// ErrBelowThreshold is returned when the catalog is too small for a tier.
	ErrBelowThreshold = errors.New("catalog below tier minimum")
)
