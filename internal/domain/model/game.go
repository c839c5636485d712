// Package model contains domain models passed between layers.
package model

import "sort"

// Game is one catalog entry as ingested for a snapshot. Games are replaced,
// never mutated, when the catalog is refreshed.
type Game struct {
	ID         int64
	Name       string
	Year       int
	Rating     float64 // average rating 0-10, 0 means unrated
	Rank       int     // overall rank, 0 means unranked
	Weight     float64 // complexity 0-5, 0 means unknown
	MinPlayers int
	MaxPlayers int
	Votes      int
	Owners     int
	Categories []string
	Mechanics  []string
}

// Rated reports whether the game carries an average rating.
func (g Game) Rated() bool { return g.Rating > 0 }

// Ranked reports whether the game has an overall rank.
func (g Game) Ranked() bool { return g.Rank > 0 }

// CollectionStatus describes how a game entered a user's collection.
type CollectionStatus string

// Collection statuses.
const (
	StatusOwn   CollectionStatus = "own"
	StatusWant  CollectionStatus = "want"
	StatusOther CollectionStatus = "other"
)

// OwnedGame is one entry in a user's collection. Rating is nil when the user
// never rated the game.
type OwnedGame struct {
	GameID int64
	Rating *float64
	Status CollectionStatus
}

// implicit ratings used when a collection entry was never rated.
const (
	implicitOwnRating   = 7.0
	implicitWantRating  = 6.0
	implicitOtherRating = 5.0
)

// EffectiveRating returns the personal rating, or an implicit rating derived
// from the collection status.
func (o OwnedGame) EffectiveRating() float64 {
	if o.Rating != nil {
		return *o.Rating
	}
	switch o.Status {
	case StatusOwn:
		return implicitOwnRating
	case StatusWant:
		return implicitWantRating
	default:
		return implicitOtherRating
	}
}

// UserProfile is a user's collection, ordered by game id ascending.
type UserProfile struct {
	UserID string
	Games  []OwnedGame
}

// NewUserProfile builds a profile, sorting entries and dropping duplicate ids
// (the first occurrence wins).
func NewUserProfile(userID string, games []OwnedGame) UserProfile {
	out := make([]OwnedGame, 0, len(games))
	seen := make(map[int64]struct{}, len(games))
	for _, g := range games {
		if _, ok := seen[g.GameID]; ok {
			continue
		}
		seen[g.GameID] = struct{}{}
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return UserProfile{UserID: userID, Games: out}
}

// Owns reports whether the profile contains gameID.
func (p UserProfile) Owns(gameID int64) bool {
	i := sort.Search(len(p.Games), func(i int) bool { return p.Games[i].GameID >= gameID })
	return i < len(p.Games) && p.Games[i].GameID == gameID
}

// GameIDs returns the profile's game ids in order.
func (p UserProfile) GameIDs() []int64 {
	ids := make([]int64, len(p.Games))
	for i, g := range p.Games {
		ids[i] = g.GameID
	}
	return ids
}

// Rating is one (user, game, rating) pair used for training.
type Rating struct {
	UserID string
	GameID int64
	Value  float64
}

// CatalogStats summarizes the catalog for the rating fallback.
type CatalogStats struct {
	Count       int
	RatedCount  int     // games with a rating or a rank
	MeanQuality float64 // mean of Quality over rated/ranked games, 0-10
}

// Snapshot is a point-in-time copy of games and ratings used for training.
type Snapshot struct {
	Scope   Tier
	Games   []Game
	Ratings []Rating
}

// Quality returns a 0-10 quality estimate for a game: its rating when rated,
// otherwise a score derived from its rank. ok is false when the game has
// neither.
func Quality(g Game) (q float64, ok bool) {
	if g.Rated() {
		return g.Rating, true
	}
	if g.Ranked() {
		return RankScore(g.Rank), true
	}
	return 0, false
}

// RankScore maps an overall rank onto 0-10: the top hundred spread over
// 10..5, ranks to a thousand over 5..2, everything else 2.
func RankScore(rank int) float64 {
	switch {
	case rank <= 0:
		return 0
	case rank <= 100:
		return 10 - float64(rank)/100*5
	case rank <= 1000:
		return 5 - float64(rank-100)/900*3
	default:
		return 2
	}
}
