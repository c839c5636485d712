package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/pkg/logger"
	"github.com/okian/meeple/pkg/metrics"
	"github.com/sony/gobreaker/v2"
)

const (
	breakerName            = "feature-store"
	defaultMaxFailures     = 5
	defaultOpenTimeout     = 10 * time.Second
	defaultHalfOpenProbes  = 1
	defaultFailureInterval = time.Minute
)

// Guarded wraps a Store with a circuit breaker. While the breaker is open
// calls fail fast with model.ErrDataUnavailable instead of waiting on a dead
// database. Not-found results do not count as failures.
type Guarded struct {
	inner       Store
	cb          *gobreaker.CircuitBreaker[any]
	maxFailures uint32
	openTimeout time.Duration
	log         logger.Logger
}

var _ Store = (*Guarded)(nil)

// NewGuarded wraps inner.
func NewGuarded(inner Store, opts ...GuardOption) *Guarded {
	g := &Guarded{
		inner:       inner,
		maxFailures: defaultMaxFailures,
		openTimeout: defaultOpenTimeout,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: defaultHalfOpenProbes,
		Interval:    defaultFailureInterval,
		Timeout:     g.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, model.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			g.log.Warn(context.Background(), "breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	return g
}

// State returns the breaker state.
func (g *Guarded) State() gobreaker.State { return g.cb.State() }

func guard[T any](ctx context.Context, g *Guarded, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	res, err := g.cb.Execute(func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn(ctx)
	})
	metrics.RecordFeatureStoreQuery(op, float64(time.Since(start).Microseconds())/1000)
	switch {
	case err == nil:
		return res.(T), nil
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrDataUnavailable):
		return zero, err
	default:
		// breaker rejections, deadlines and anything the store did not classify
		return zero, fmt.Errorf("%w: %s: %w", model.ErrDataUnavailable, op, err)
	}
}

func (g *Guarded) GetGame(ctx context.Context, id int64) (model.Game, error) {
	return guard(ctx, g, "get_game", func(ctx context.Context) (model.Game, error) {
		return g.inner.GetGame(ctx, id)
	})
}

func (g *Guarded) GetGames(ctx context.Context, ids []int64) (map[int64]model.Game, error) {
	return guard(ctx, g, "get_games", func(ctx context.Context) (map[int64]model.Game, error) {
		return g.inner.GetGames(ctx, ids)
	})
}

func (g *Guarded) GetUserProfile(ctx context.Context, userID string) (model.UserProfile, error) {
	return guard(ctx, g, "get_profile", func(ctx context.Context) (model.UserProfile, error) {
		return g.inner.GetUserProfile(ctx, userID)
	})
}

func (g *Guarded) CountGames(ctx context.Context) (int, error) {
	return guard(ctx, g, "count_games", g.inner.CountGames)
}

func (g *Guarded) CatalogStats(ctx context.Context) (model.CatalogStats, error) {
	return guard(ctx, g, "catalog_stats", g.inner.CatalogStats)
}

func (g *Guarded) ListGameIDs(ctx context.Context) ([]int64, error) {
	return guard(ctx, g, "list_games", g.inner.ListGameIDs)
}

func (g *Guarded) Snapshot(ctx context.Context, scope model.Tier) (model.Snapshot, error) {
	return guard(ctx, g, "snapshot", func(ctx context.Context) (model.Snapshot, error) {
		return g.inner.Snapshot(ctx, scope)
	})
}
