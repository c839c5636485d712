// Package seed generates a deterministic synthetic catalog and user
// collections for local runs, and probes a running server with them.
package seed

import "time"

// Config describes the data set to generate.
type Config struct {
	Games        int     // catalog size
	Users        int     // number of users with a collection
	GamesPerUser int     // collection size per user
	RatedShare   float64 // share of collection entries carrying a personal rating
	RankedShare  float64 // share of catalog games with a rating and rank
	Seed         uint64  // generator seed; equal seeds give equal data
	Workers      int     // concurrent collection writers
	OutputFile   string  // optional JSON dump of the generated data
}

// DefaultConfig returns a small data set that makes every tier up to the
// reduced model reachable with default thresholds.
func DefaultConfig() Config {
	return Config{
		Games:        500,
		Users:        200,
		GamesPerUser: 25,
		RatedShare:   0.7,
		RankedShare:  0.9,
		Seed:         1,
		Workers:      4,
	}
}

// Stats reports what Run wrote.
type Stats struct {
	Games    int           `json:"games"`
	Users    int           `json:"users"`
	Entries  int           `json:"entries"`
	Rated    int           `json:"rated"`
	Duration time.Duration `json:"duration"`
}
