package model

import "time"

// RetrainJob asks a worker to retrain Tier when its model is older than
// MaxAge. MaxAge <= 0 forces a retrain.
type RetrainJob struct {
	ID         string
	Tier       Tier
	MaxAge     time.Duration
	EnqueuedAt time.Time
}

// Key identifies the pending slot a job occupies; jobs with the same key
// are coalesced while one is waiting.
func (j RetrainJob) Key() string { return "retrain/" + j.Tier.Tag() }
