// Package recommend is the orchestrator: it gathers every input a scoring
// request needs from the feature store, borrows the current trained models
// and runs the strategy chain. Only model.ErrDataUnavailable leaves it.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/meeple/internal/adapters/repository"
	"github.com/okian/meeple/internal/domain/latent"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/scoring"
	"github.com/okian/meeple/pkg/logger"
	"github.com/okian/meeple/pkg/metrics"
)

const (
	defaultFeatureStoreTimeout = 2 * time.Second
	defaultRecommendLimit      = 10
	maxRecommendLimit          = 100
)

// ModelSource hands out the currently published trained models.
type ModelSource interface {
	Models() map[model.Tier]*latent.Model
}

// Option configures an Engine.
type Option func(*Engine)

// WithFeatureStoreTimeout bounds the up-front feature store reads.
func WithFeatureStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine answers scoring and recommendation requests.
type Engine struct {
	store   repository.Store
	models  ModelSource
	chain   *scoring.Chain
	timeout time.Duration
	log     logger.Logger
}

// New creates an Engine.
func New(store repository.Store, models ModelSource, chain *scoring.Chain, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		models:  models,
		chain:   chain,
		timeout: defaultFeatureStoreTimeout,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScoreForUser scores candidateID for userID. A non-nil hint starts the chain
// at the hinted tier. The only error returned wraps model.ErrDataUnavailable;
// every other miss degrades to a poorer tier or to the neutral no-data result.
func (e *Engine) ScoreForUser(ctx context.Context, userID string, candidateID int64, hint *model.Tier) (model.ScoreResult, error) {
	ctx = withRequestID(ctx)
	start := time.Now()

	in, err := e.gather(ctx, userID, []int64{candidateID})
	if err != nil {
		return model.ScoreResult{}, e.unavailable(ctx, err)
	}

	res := e.score(ctx, in, candidateID, hint, e.log.Info)
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	return res, nil
}

// Recommend scores every catalog game the user does not own and returns the
// best limit results, score descending then id ascending. limit <= 0 selects
// the default.
func (e *Engine) Recommend(ctx context.Context, userID string, limit int, hint *model.Tier) ([]model.ScoreResult, error) {
	ctx = withRequestID(ctx)
	start := time.Now()
	switch {
	case limit <= 0:
		limit = defaultRecommendLimit
	case limit > maxRecommendLimit:
		limit = maxRecommendLimit
	}

	in, err := e.gather(ctx, userID, nil)
	if err != nil {
		return nil, e.unavailable(ctx, err)
	}

	results := make([]model.ScoreResult, 0, len(in.candidates))
	for _, id := range in.ids {
		if in.profile.Owns(id) {
			continue
		}
		results = append(results, e.score(ctx, in, id, hint, e.log.Debug))
	}
	scoring.Rank(results)
	if len(results) > limit {
		results = results[:limit]
	}

	metrics.RecordRecommendation(len(in.ids))
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	e.log.Debug(ctx, "recommendations ranked",
		logger.String("user", userID),
		logger.Int("candidates", len(in.ids)),
		logger.Int("returned", len(results)),
	)
	return results, nil
}

// inputs is everything the chain may read, fetched once per call.
type inputs struct {
	profile    model.UserProfile
	count      int
	stats      model.CatalogStats
	owned      map[int64]model.Game
	candidates map[int64]model.Game
	ids        []int64
	models     map[model.Tier]*latent.Model
}

// gather performs all feature store reads under the configured timeout.
// candidateIDs nil means every catalog game is a candidate.
func (e *Engine) gather(ctx context.Context, userID string, candidateIDs []int64) (*inputs, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	in := &inputs{}
	var err error
	if in.profile, err = e.store.GetUserProfile(ctx, userID); err != nil {
		return nil, fmt.Errorf("load profile %q: %w", userID, err)
	}
	if in.count, err = e.store.CountGames(ctx); err != nil {
		return nil, fmt.Errorf("count games: %w", err)
	}
	if in.stats, err = e.store.CatalogStats(ctx); err != nil {
		return nil, fmt.Errorf("catalog stats: %w", err)
	}
	if len(in.profile.Games) > 0 {
		if in.owned, err = e.store.GetGames(ctx, in.profile.GameIDs()); err != nil {
			return nil, fmt.Errorf("load owned games: %w", err)
		}
	}

	in.ids = candidateIDs
	if in.ids == nil {
		if in.ids, err = e.store.ListGameIDs(ctx); err != nil {
			return nil, fmt.Errorf("list games: %w", err)
		}
	}
	if len(in.ids) == 1 {
		g, gerr := e.store.GetGame(ctx, in.ids[0])
		switch {
		case gerr == nil:
			in.candidates = map[int64]model.Game{g.ID: g}
		case errors.Is(gerr, model.ErrNotFound):
			in.candidates = map[int64]model.Game{}
		default:
			return nil, fmt.Errorf("load candidate %d: %w", in.ids[0], gerr)
		}
	} else if len(in.ids) > 0 {
		if in.candidates, err = e.store.GetGames(ctx, in.ids); err != nil {
			return nil, fmt.Errorf("load candidates: %w", err)
		}
	}

	// A store that ignores ctx still must not hand back data after the
	// deadline passed.
	if cerr := ctx.Err(); cerr != nil {
		return nil, fmt.Errorf("feature store: %w", cerr)
	}

	if in.owned == nil {
		in.owned = map[int64]model.Game{}
	}
	if e.models != nil {
		in.models = e.models.Models()
	}
	if in.models == nil {
		in.models = map[model.Tier]*latent.Model{}
	}
	metrics.UpdateCatalogGames(in.count)
	return in, nil
}

// logFunc logs one fall-through at the caller's level.
type logFunc func(ctx context.Context, msg string, fields ...logger.Field)

func (e *Engine) score(ctx context.Context, in *inputs, candidateID int64, hint *model.Tier, logFallThrough logFunc) model.ScoreResult {
	cand, known := in.candidates[candidateID]
	if !known {
		cand = model.Game{ID: candidateID}
	}
	req := &scoring.Request{
		Profile:        in.profile,
		Candidate:      cand,
		CandidateKnown: known,
		CatalogCount:   in.count,
		Stats:          in.stats,
		Owned:          in.owned,
		Models:         in.models,
	}

	res := e.chain.Score(req, hint)
	for _, a := range res.Attempts() {
		if a.Err == nil {
			continue
		}
		metrics.RecordFallThrough(a.Tag, reasonCode(a.Err))
		logFallThrough(ctx, "tier fell through",
			logger.String("tier", a.Tag),
			logger.String("reason", a.Reason),
			logger.Int64("game", candidateID),
		)
	}
	metrics.RecordScoreRequest(res.Strategy())
	return res
}

// unavailable maps any gather failure onto model.ErrDataUnavailable.
func (e *Engine) unavailable(ctx context.Context, err error) error {
	metrics.RecordDataUnavailable()
	e.log.Error(ctx, "feature store unavailable", logger.Error(err))
	if errors.Is(err, model.ErrDataUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrDataUnavailable, err)
}

// reasonCode turns a fall-through error into a low-cardinality metric label.
func reasonCode(err error) string {
	switch {
	case errors.Is(err, scoring.ErrBelowThreshold):
		return "below_threshold"
	case errors.Is(err, model.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, model.ErrInsufficientProfileOverlap):
		return "insufficient_overlap"
	case errors.Is(err, scoring.ErrUnknownCandidate):
		return "unknown_candidate"
	case errors.Is(err, scoring.ErrNoRatedGames):
		return "no_rated_games"
	default:
		return "other"
	}
}

func withRequestID(ctx context.Context) context.Context {
	if logger.RequestID(ctx) != "" {
		return ctx
	}
	return logger.WithRequestID(ctx, uuid.NewString())
}
