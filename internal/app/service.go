// Package service wires the recommendation engine together: the feature
// store, the artifact store, the model lifecycle manager, the strategy chain
// and the retrain queue. It implements the dependencies of the HTTP API and
// the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/okian/meeple/internal/adapters/artifact"
	retrainqueue "github.com/okian/meeple/internal/adapters/mq/queue"
	workerpool "github.com/okian/meeple/internal/adapters/mq/worker"
	"github.com/okian/meeple/internal/adapters/repository"
	"github.com/okian/meeple/internal/config"
	"github.com/okian/meeple/internal/domain/dedupe"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/scoring"
	"github.com/okian/meeple/internal/domain/similarity"
	"github.com/okian/meeple/internal/domain/tier"
	"github.com/okian/meeple/internal/domain/types"
	"github.com/okian/meeple/internal/lifecycle"
	"github.com/okian/meeple/internal/recommend"
	"github.com/okian/meeple/pkg/logger"
	"github.com/okian/meeple/pkg/metrics"
	"gorm.io/gorm"
)

// ErrNotStarted is returned by calls that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the recommendation engine.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	db        *gorm.DB
	catalog   *repository.GormStore
	features  *repository.Guarded
	badgerDB  *badger.DB
	artifacts *artifact.Store
	manager   *lifecycle.Manager
	gate      *tier.Gate
	engine    *recommend.Engine
	pending   *dedupe.Slots
	jobs      *retrainqueue.InMemoryQueue
	pool      *workerpool.Pool

	// State
	started bool
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration; defaults come from config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:    config.New(),
		logger: logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the stores, restores persisted models, starts the retrain
// workers and, when an interval is configured, the retrain scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	cfg := s.cfg

	db, err := repository.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("feature store: %w", err)
	}
	bdb, err := artifact.Open(cfg.ArtifactDir)
	if err != nil {
		closeDB(db)
		return err
	}

	s.db = db
	s.badgerDB = bdb
	s.catalog = repository.NewGormStore(db, repository.WithLocalSnapshotLimit(cfg.LocalSnapshotLimit))
	s.features = repository.NewGuarded(s.catalog,
		repository.WithMaxFailures(cfg.BreakerMaxFailures),
		repository.WithOpenTimeout(cfg.BreakerOpenTimeout()),
		repository.WithGuardLogger(s.logger.Named("feature-store")),
	)
	s.artifacts = artifact.NewStore(bdb)
	s.manager = lifecycle.NewManager(s.features,
		lifecycle.WithParams(model.TierRich, cfg.TrainingParams(cfg.RichFactors)),
		lifecycle.WithParams(model.TierReduced, cfg.TrainingParams(cfg.ReducedFactors)),
		lifecycle.WithArtifactStore(s.artifacts),
		lifecycle.WithLogger(s.logger.Named("lifecycle")),
	)
	if err := s.manager.Load(ctx); err != nil {
		s.closeStores()
		return fmt.Errorf("restore models: %w", err)
	}

	s.gate = tier.NewGate(tier.WithThresholds(cfg.Thresholds()))
	sim := similarity.NewEngine(similarity.WithWeights(similarity.WeightsFromMap(cfg.SimilarityWeights)))
	chain := scoring.NewChain(s.gate, scoring.WithStrategies(
		scoring.NewRichModel(s.gate),
		scoring.NewReducedModel(s.gate),
		scoring.NewContentSimilarity(s.gate,
			scoring.WithMinOverlap(cfg.ContentMinOverlap),
			scoring.WithQualityBlend(cfg.ContentQualityBlend),
			scoring.WithEngine(sim),
		),
		scoring.NewRatingFallback(scoring.WithBayesianShrink(cfg.FallbackPriorWeight)),
	))
	s.engine = recommend.New(s.features, s.manager, chain,
		recommend.WithFeatureStoreTimeout(cfg.FeatureStoreTimeout()),
		recommend.WithLogger(s.logger.Named("engine")),
	)

	s.pending = dedupe.NewSlots(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(len(model.TrainedTiers) * 4)))
	s.jobs = retrainqueue.NewInMemoryQueue(retrainqueue.WithCapacity(cfg.RetrainQueueSize))
	s.pool = workerpool.NewPool(cfg.RetrainWorkers, s.jobs, s.manager,
		workerpool.WithReleaser(s.pending),
		workerpool.WithLogger(s.logger.Named("retrain")),
	)
	// Background work outlives the Start context; Stop ends it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.stopCh = make(chan struct{})
	if interval := cfg.RetrainInterval(); interval > 0 {
		s.wg.Add(1)
		go s.schedule(runCtx, interval)
	}

	s.started = true
	s.logger.Info(ctx, "recommendation service started",
		logger.String("db_driver", cfg.DBDriver),
		logger.Bool("artifacts_in_memory", cfg.ArtifactDir == ""),
		logger.Int("retrain_workers", s.pool.Size()),
		logger.Duration("retrain_interval", cfg.RetrainInterval()),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping recommendation service...")

	close(s.stopCh)
	s.wg.Wait()

	// In-flight training is cancelled; the last good model stays published.
	s.cancel()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "retrain workers did not stop cleanly", logger.Error(err))
	}
	s.closeStores()

	s.started = false
	s.logger.Info(ctx, "recommendation service stopped")
}

func (s *Service) closeStores() {
	if s.badgerDB != nil {
		if err := s.badgerDB.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing artifact store", logger.Error(err))
		}
		s.badgerDB = nil
	}
	if s.db != nil {
		closeDB(s.db)
		s.db = nil
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// schedule enqueues a staleness check for every trained tier each interval.
func (s *Service) schedule(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.requestRetrain(ctx, nil, s.cfg.RetrainMaxAge()); err != nil {
				s.logger.Warn(ctx, "scheduled retrain not queued", logger.Error(err))
			}
		}
	}
}

// running returns the started components under the read lock.
func (s *Service) running() (*recommend.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.engine, nil
}

// ScoreForUser scores one game for one user.
func (s *Service) ScoreForUser(ctx context.Context, userID string, gameID int64, hint *model.Tier) (model.ScoreResult, error) {
	engine, err := s.running()
	if err != nil {
		return model.ScoreResult{}, err
	}
	return engine.ScoreForUser(ctx, userID, gameID, hint)
}

// Recommend returns the best unowned games for a user.
func (s *Service) Recommend(ctx context.Context, userID string, limit int, hint *model.Tier) ([]model.ScoreResult, error) {
	engine, err := s.running()
	if err != nil {
		return nil, err
	}
	return engine.Recommend(ctx, userID, limit, hint)
}

// RequestRetrain queues a staleness check for t, or for every trained tier
// when t is nil. A tier that already has a pending job is coalesced, and the
// pending job runs with the smaller of the two max ages.
func (s *Service) RequestRetrain(ctx context.Context, t *model.Tier, maxAge time.Duration) ([]types.RetrainTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.requestRetrain(ctx, t, maxAge)
}

func (s *Service) requestRetrain(ctx context.Context, t *model.Tier, maxAge time.Duration) ([]types.RetrainTicket, error) {
	tiers := model.TrainedTiers
	if t != nil {
		if !t.Trained() {
			return nil, fmt.Errorf("%w: %s", lifecycle.ErrNotTrainable, t)
		}
		tiers = []model.Tier{*t}
	}

	tickets := make([]types.RetrainTicket, 0, len(tiers))
	var errs []error
	for _, tr := range tiers {
		job := model.RetrainJob{ID: uuid.NewString(), Tier: tr, MaxAge: maxAge, EnqueuedAt: time.Now()}
		if s.pending.Claim(ctx, job.Key(), maxAge) {
			metrics.RecordQueueCoalesced()
			tickets = append(tickets, types.RetrainTicket{Tier: tr.Tag(), Coalesced: true})
			continue
		}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			s.pending.Drop(ctx, job.Key())
			errs = append(errs, err)
			continue
		}
		tickets = append(tickets, types.RetrainTicket{Tier: tr.Tag(), JobID: job.ID})
	}
	return tickets, errors.Join(errs...)
}

// RetrainNow retrains every stale trained tier synchronously.
func (s *Service) RetrainNow(ctx context.Context, maxAge time.Duration) ([]lifecycle.RetrainResult, error) {
	s.mu.RLock()
	manager := s.manager
	started := s.started
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}
	return manager.RetrainAllIfStale(ctx, maxAge)
}

// Catalog returns the writer used to load games and collections.
func (s *Service) Catalog() (repository.Writer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.catalog, nil
}

// Stats returns a status snapshot.
func (s *Service) Stats(ctx context.Context) (types.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := types.Stats{Started: s.started}
	if !s.started {
		return st, nil
	}

	count, err := s.features.CountGames(ctx)
	if err != nil {
		return st, err
	}
	st.CatalogGames = count
	for _, t := range s.gate.AvailableTiers(count) {
		st.AvailableTiers = append(st.AvailableTiers, t.Tag())
	}
	for _, t := range model.TrainedTiers {
		m := s.manager.CurrentModel(t)
		if m == nil {
			continue
		}
		st.Models = append(st.Models, types.ModelInfo{
			Tier:          t.Tag(),
			TrainedAt:     m.TrainedAt(),
			CorpusSize:    m.CorpusSize(),
			Vocabulary:    m.VocabularySize(),
			SchemaVersion: m.Meta().SchemaVersion,
		})
	}
	st.QueueLength = s.jobs.Len(ctx)
	st.PendingJobs = s.pending.Size()
	st.Workers = s.pool.Size()
	st.Breaker = s.features.State().String()

	metrics.UpdateCatalogGames(count)
	return st, nil
}
