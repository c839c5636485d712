package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/okian/meeple/internal/domain/model"
)

// clusters are taste groups: games in a cluster share labels and users in
// a cluster rate its games higher.
var clusters = []struct {
	categories []string
	mechanics  []string
}{
	{[]string{"Economic", "Industry / Manufacturing"}, []string{"Worker Placement", "Resource Management"}},
	{[]string{"Fantasy", "Adventure"}, []string{"Deck Building", "Cooperative Game"}},
	{[]string{"Wargame", "Territory Building"}, []string{"Area Control", "Dice Rolling"}},
	{[]string{"Party Game", "Card Game"}, []string{"Hand Management", "Set Collection"}},
}

// Dataset is one generated catalog with its collections.
type Dataset struct {
	Games       []model.Game                 `json:"games"`
	Collections map[string][]model.OwnedGame `json:"collections"`
	Users       []string                     `json:"users"`
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func clusterOf(id int64) int { return int(id % int64(len(clusters))) }

// Generate builds the data set described by cfg. It is deterministic in
// cfg.Seed.
func Generate(cfg Config) Dataset {
	rng := newRand(cfg.Seed)
	games := generateGames(rng, cfg)

	ds := Dataset{
		Games:       games,
		Collections: make(map[string][]model.OwnedGame, cfg.Users),
		Users:       make([]string, 0, cfg.Users),
	}
	for u := 0; u < cfg.Users; u++ {
		userID := fmt.Sprintf("user-%04d", u+1)
		ds.Users = append(ds.Users, userID)
		ds.Collections[userID] = generateCollection(rng, cfg, u%len(clusters), games)
	}
	return ds
}

func generateGames(rng *rand.Rand, cfg Config) []model.Game {
	games := make([]model.Game, cfg.Games)
	for i := range games {
		id := int64(i + 1)
		c := clusters[clusterOf(id)]
		g := model.Game{
			ID:         id,
			Name:       fmt.Sprintf("Game %04d", id),
			Year:       1995 + rng.IntN(30),
			Weight:     round1(1 + rng.Float64()*4),
			MinPlayers: 1 + rng.IntN(2),
			Categories: []string{c.categories[rng.IntN(len(c.categories))]},
			Mechanics:  []string{c.mechanics[0], c.mechanics[1]},
		}
		g.MaxPlayers = g.MinPlayers + 1 + rng.IntN(4)
		if rng.Float64() < 0.3 {
			other := clusters[rng.IntN(len(clusters))]
			g.Mechanics = append(g.Mechanics, other.mechanics[rng.IntN(len(other.mechanics))])
		}
		if rng.Float64() < cfg.RankedShare {
			g.Rating = round1(5 + rng.Float64()*3.5)
			g.Votes = 10 + rng.IntN(5000)
		}
		games[i] = g
	}

	// Rank rated games by rating, ties by id.
	rated := make([]int, 0, len(games))
	for i, g := range games {
		if g.Rated() {
			rated = append(rated, i)
		}
	}
	sort.SliceStable(rated, func(a, b int) bool {
		ga, gb := games[rated[a]], games[rated[b]]
		if ga.Rating != gb.Rating {
			return ga.Rating > gb.Rating
		}
		return ga.ID < gb.ID
	})
	for rank, i := range rated {
		games[i].Rank = rank + 1
	}
	return games
}

func generateCollection(rng *rand.Rand, cfg Config, cluster int, games []model.Game) []model.OwnedGame {
	n := cfg.GamesPerUser
	if n > len(games) {
		n = len(games)
	}
	picked := make(map[int64]struct{}, n)
	out := make([]model.OwnedGame, 0, n)
	for attempts := 0; len(out) < n && attempts < n*20; attempts++ {
		g := games[rng.IntN(len(games))]
		// Mostly games from the user's own cluster.
		if clusterOf(g.ID) != cluster && rng.Float64() < 0.75 {
			continue
		}
		if _, dup := picked[g.ID]; dup {
			continue
		}
		picked[g.ID] = struct{}{}

		entry := model.OwnedGame{GameID: g.ID, Status: model.StatusOwn}
		if rng.Float64() < 0.1 {
			entry.Status = model.StatusWant
		}
		if rng.Float64() < cfg.RatedShare {
			base := 4.5
			if clusterOf(g.ID) == cluster {
				base = 7.5
			}
			r := math.Min(10, math.Max(1, round1(base+rng.NormFloat64())))
			entry.Rating = &r
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}
