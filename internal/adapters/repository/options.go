package repository

import (
	"time"

	"github.com/okian/meeple/pkg/logger"
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithLocalSnapshotLimit caps the number of top-ranked games in the reduced
// tier's training snapshot.
func WithLocalSnapshotLimit(n int) Option {
	return func(s *GormStore) {
		if n > 0 {
			s.localLimit = n
		}
	}
}

// WithBatchSize sets the insert batch size.
func WithBatchSize(n int) Option {
	return func(s *GormStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// GuardOption applies a configuration option to the Guarded store.
type GuardOption func(*Guarded)

// WithMaxFailures sets how many consecutive failures open the breaker.
func WithMaxFailures(n uint32) GuardOption {
	return func(g *Guarded) {
		if n > 0 {
			g.maxFailures = n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.openTimeout = d
		}
	}
}

// WithGuardLogger sets the logger used for breaker state changes.
func WithGuardLogger(l logger.Logger) GuardOption {
	return func(g *Guarded) {
		if l != nil {
			g.log = l
		}
	}
}
