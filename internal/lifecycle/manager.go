// Package lifecycle owns the trained models: it trains them from snapshots,
// publishes them atomically per tier, persists them and restores them on
// start. Request-path code only ever reads the published pointers.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/meeple/internal/domain/latent"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/pkg/logger"
	"github.com/okian/meeple/pkg/metrics"
)

// SnapshotSource provides training snapshots.
type SnapshotSource interface {
	Snapshot(ctx context.Context, scope model.Tier) (model.Snapshot, error)
}

// ArtifactStore persists trained models. LoadLatest returns an error wrapping
// model.ErrNotFound when nothing was saved for the tier.
type ArtifactStore interface {
	Save(ctx context.Context, m *latent.Model) error
	LoadLatest(ctx context.Context, t model.Tier) (*latent.Model, error)
}

// RetrainResult reports what RetrainIfStale did.
type RetrainResult struct {
	Retrained  bool       `json:"retrained"`
	Tier       model.Tier `json:"-"`
	Tag        string     `json:"tier"`
	CorpusSize int        `json:"corpusSize"`
}

type slot struct {
	mu      sync.Mutex
	current atomic.Pointer[latent.Model]
}

// Manager is the model lifecycle manager. It is safe for concurrent use;
// at most one training runs per tier at a time.
type Manager struct {
	source SnapshotSource
	store  ArtifactStore
	params map[model.Tier]latent.Params
	now    func() time.Time
	log    logger.Logger
	slots  map[model.Tier]*slot
}

// NewManager creates a manager reading snapshots from source.
func NewManager(source SnapshotSource, opts ...Option) *Manager {
	reduced := latent.DefaultParams()
	reduced.Factors = 8
	m := &Manager{
		source: source,
		params: map[model.Tier]latent.Params{
			model.TierRich:    latent.DefaultParams(),
			model.TierReduced: reduced,
		},
		now:   time.Now,
		log:   logger.Nop(),
		slots: make(map[model.Tier]*slot, len(model.TrainedTiers)),
	}
	for _, t := range model.TrainedTiers {
		m.slots[t] = &slot{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CurrentModel returns the published model for t, or nil.
func (m *Manager) CurrentModel(t model.Tier) *latent.Model {
	s, ok := m.slots[t]
	if !ok {
		return nil
	}
	return s.current.Load()
}

// Models returns the published models keyed by tier. Tiers without a model
// are absent.
func (m *Manager) Models() map[model.Tier]*latent.Model {
	out := make(map[model.Tier]*latent.Model, len(m.slots))
	for t, s := range m.slots {
		if cur := s.current.Load(); cur != nil {
			out[t] = cur
		}
	}
	return out
}

// Train fits a model for t on snapshot and publishes it. On failure the
// previously published model stays in place.
func (m *Manager) Train(ctx context.Context, t model.Tier, snapshot model.Snapshot) (*latent.Model, error) {
	s, ok := m.slots[t]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", model.ErrTrainingFailed, ErrNotTrainable, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.train(ctx, s, t, snapshot)
}

// train must be called with s.mu held.
func (m *Manager) train(ctx context.Context, s *slot, t model.Tier, snapshot model.Snapshot) (*latent.Model, error) {
	snapshot.Scope = t
	start := m.now()
	m.log.Info(ctx, "training started",
		logger.String("tier", t.Tag()),
		logger.Int("games", len(snapshot.Games)),
		logger.Int("ratings", len(snapshot.Ratings)),
	)

	trained, err := latent.Train(ctx, snapshot, m.params[t], start)
	elapsed := m.now().Sub(start)
	metrics.RecordTraining(t.Tag(), err == nil, elapsed)
	if err != nil {
		m.log.Error(ctx, "training failed", logger.String("tier", t.Tag()), logger.Error(err))
		return nil, err
	}

	if m.store != nil {
		if err := m.store.Save(ctx, trained); err != nil {
			// the model is still good; it just will not survive a restart
			m.log.Warn(ctx, "artifact save failed", logger.String("tier", t.Tag()), logger.Error(err))
		}
	}

	m.publish(s, trained)
	m.log.Info(ctx, "training finished",
		logger.String("tier", t.Tag()),
		logger.Int("corpus_size", trained.CorpusSize()),
		logger.Int("vocabulary", trained.VocabularySize()),
		logger.Duration("elapsed", elapsed),
	)
	return trained, nil
}

func (m *Manager) publish(s *slot, trained *latent.Model) {
	s.current.Store(trained)
	metrics.UpdateModel(trained.Tier().Tag(), trained.CorpusSize(), trained.VocabularySize(), trained.TrainedAt())
}

// RetrainIfStale retrains t when it has no model or its model is at least
// maxAge old. A non-positive maxAge always retrains. Concurrent calls for the
// same tier are serialized and the second one sees the fresh model.
func (m *Manager) RetrainIfStale(ctx context.Context, t model.Tier, maxAge time.Duration) (RetrainResult, error) {
	res := RetrainResult{Tier: t, Tag: t.Tag()}
	s, ok := m.slots[t]
	if !ok {
		return res, fmt.Errorf("%w: %w: %s", model.ErrTrainingFailed, ErrNotTrainable, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Load(); cur != nil {
		res.CorpusSize = cur.CorpusSize()
		if maxAge > 0 && cur.Age(m.now()) < maxAge {
			return res, nil
		}
	}

	snapshot, err := m.source.Snapshot(ctx, t)
	if err != nil {
		m.log.Error(ctx, "snapshot failed", logger.String("tier", t.Tag()), logger.Error(err))
		return res, fmt.Errorf("%w: %w: %w", model.ErrTrainingFailed, ErrSnapshot, err)
	}
	trained, err := m.train(ctx, s, t, snapshot)
	if err != nil {
		return res, err
	}
	res.Retrained = true
	res.CorpusSize = trained.CorpusSize()
	return res, nil
}

// RetrainAllIfStale runs RetrainIfStale for every trained tier, richest
// first. Every tier is attempted; failures are joined.
func (m *Manager) RetrainAllIfStale(ctx context.Context, maxAge time.Duration) ([]RetrainResult, error) {
	results := make([]RetrainResult, 0, len(model.TrainedTiers))
	var errs []error
	for _, t := range model.TrainedTiers {
		res, err := m.RetrainIfStale(ctx, t, maxAge)
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// Load restores the newest stored artifact for every trained tier. Missing
// artifacts are skipped; unreadable ones leave the tier unavailable.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	for _, t := range model.TrainedTiers {
		s := m.slots[t]
		s.mu.Lock()
		restored, err := m.store.LoadLatest(ctx, t)
		switch {
		case errors.Is(err, model.ErrNotFound):
			m.log.Debug(ctx, "no stored artifact", logger.String("tier", t.Tag()))
		case err != nil:
			m.log.Warn(ctx, "artifact rejected, tier unavailable", logger.String("tier", t.Tag()), logger.Error(err))
		case restored.Tier() != t:
			m.log.Warn(ctx, "artifact tier mismatch", logger.String("tier", t.Tag()), logger.String("artifact_tier", restored.Tier().Tag()))
		default:
			m.publish(s, restored)
			m.log.Info(ctx, "artifact restored",
				logger.String("tier", t.Tag()),
				logger.Int("corpus_size", restored.CorpusSize()),
				logger.Any("trained_at", restored.TrainedAt()),
			)
		}
		s.mu.Unlock()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
