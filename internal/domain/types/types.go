// Package types contains the wire types shared by the service and the HTTP API.
package types

import (
	"time"

	"github.com/okian/meeple/internal/domain/model"
)

// Contribution is one explanation entry.
type Contribution struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
}

// Attempt is one tier the chain tried.
type Attempt struct {
	Tier   string `json:"tier"`
	Reason string `json:"reason,omitempty"`
}

// Score is the API form of a model.ScoreResult.
type Score struct {
	GameID      int64          `json:"gameId"`
	Score       float64        `json:"score"`
	Level       string         `json:"level"`
	Strategy    string         `json:"strategy"`
	Explanation []Contribution `json:"explanation"`
	Attempts    []Attempt      `json:"attempts,omitempty"`
}

// NewScore converts a result for the wire.
func NewScore(r model.ScoreResult) Score {
	s := Score{
		GameID:   r.GameID(),
		Score:    r.Score(),
		Level:    r.Level(),
		Strategy: r.Strategy(),
	}
	for _, c := range r.Explanation() {
		s.Explanation = append(s.Explanation, Contribution{Feature: c.Feature, Contribution: c.Value})
	}
	for _, a := range r.Attempts() {
		s.Attempts = append(s.Attempts, Attempt{Tier: a.Tag, Reason: a.Reason})
	}
	return s
}

// Recommendations is a ranked list for one user.
type Recommendations struct {
	UserID string  `json:"userId"`
	Items  []Score `json:"items"`
}

// ModelInfo describes one published trained model.
type ModelInfo struct {
	Tier          string    `json:"tier"`
	TrainedAt     time.Time `json:"trainedAt"`
	CorpusSize    int       `json:"corpusSize"`
	Vocabulary    int       `json:"vocabulary"`
	SchemaVersion int       `json:"schemaVersion"`
}

// RetrainTicket reports what happened to one retrain request.
type RetrainTicket struct {
	Tier      string `json:"tier"`
	JobID     string `json:"jobId,omitempty"`
	Coalesced bool   `json:"coalesced"`
}

// Stats is the service status snapshot.
type Stats struct {
	Started        bool        `json:"started"`
	CatalogGames   int         `json:"catalogGames"`
	AvailableTiers []string    `json:"availableTiers"`
	Models         []ModelInfo `json:"models"`
	QueueLength    int         `json:"queueLength"`
	PendingJobs    int64       `json:"pendingJobs"`
	Workers        int         `json:"workers"`
	Breaker        string      `json:"breaker"`
}
