// Package config holds the engine configuration and its loader.
package config

import (
	"time"

	"github.com/okian/meeple/internal/domain/latent"
	"github.com/okian/meeple/internal/domain/tier"
)

// Config is the application configuration. Keys are flat snake_case so they
// map directly onto MEEPLE_* environment variables.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr is the HTTP listen address.
	Addr string `koanf:"addr" validate:"required"`

	DBDriver string `koanf:"db_driver" validate:"oneof=sqlite postgres"`
	DBDSN    string `koanf:"db_dsn" validate:"required"`

	// ArtifactDir is the badger directory for trained models; empty keeps
	// them in memory.
	ArtifactDir string `koanf:"artifact_dir"`

	FeatureStoreTimeoutMS int    `koanf:"feature_store_timeout_ms" validate:"gt=0"`
	BreakerMaxFailures    uint32 `koanf:"breaker_max_failures" validate:"gt=0"`
	BreakerOpenTimeoutMS  int    `koanf:"breaker_open_timeout_ms" validate:"gt=0"`

	TierRichMinGames     int `koanf:"tier_rich_min_games" validate:"gtefield=TierReducedMinGames"`
	TierReducedMinGames  int `koanf:"tier_reduced_min_games" validate:"gtefield=TierContentMinGames"`
	TierContentMinGames  int `koanf:"tier_content_min_games" validate:"gtefield=TierFallbackMinGames"`
	TierFallbackMinGames int `koanf:"tier_fallback_min_games" validate:"gt=0"`

	ContentMinOverlap   int     `koanf:"content_min_overlap" validate:"gt=0"`
	ContentQualityBlend float64 `koanf:"content_quality_blend" validate:"gte=0,lte=1"`
	FallbackPriorWeight float64 `koanf:"fallback_prior_weight" validate:"gte=0"`
	LocalSnapshotLimit  int     `koanf:"local_snapshot_limit" validate:"gt=0,gtefield=TierReducedMinGames"`

	// SimilarityWeights overrides the per-dimension similarity weights
	// (categories, mechanics, rating, rank, weight).
	SimilarityWeights map[string]float64 `koanf:"similarity_weights" validate:"dive,gte=0"`

	RichFactors       int     `koanf:"rich_factors" validate:"gt=0"`
	ReducedFactors    int     `koanf:"reduced_factors" validate:"gt=0"`
	ALSIterations     int     `koanf:"als_iterations" validate:"gt=0"`
	ALSRegularization float64 `koanf:"als_regularization" validate:"gt=0"`
	ALSAlpha          float64 `koanf:"als_alpha" validate:"gt=0"`

	// RetrainMaxAgeMS is the staleness bound; models older than this are
	// retrained by the scheduler.
	RetrainMaxAgeMS int64 `koanf:"retrain_max_age_ms" validate:"gt=0"`
	// RetrainIntervalMS is the scheduler period; 0 disables the scheduler.
	RetrainIntervalMS int64 `koanf:"retrain_interval_ms" validate:"gte=0"`
	RetrainQueueSize  int   `koanf:"retrain_queue_size" validate:"gt=0"`
	RetrainWorkers    int   `koanf:"retrain_workers" validate:"gt=0"`
}

// New returns the configuration defaults.
func New() *Config {
	th := tier.DefaultThresholds()
	p := latent.DefaultParams()
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		DBDriver:              "sqlite",
		DBDSN:                 "file:meeple.db?cache=shared",
		FeatureStoreTimeoutMS: 2000,
		BreakerMaxFailures:    5,
		BreakerOpenTimeoutMS:  10_000,
		TierRichMinGames:      th.Rich,
		TierReducedMinGames:   th.Reduced,
		TierContentMinGames:   th.Content,
		TierFallbackMinGames:  th.Fallback,
		ContentMinOverlap:     15,
		ContentQualityBlend:   0.3,
		FallbackPriorWeight:   0,
		LocalSnapshotLimit:    2000,
		RichFactors:           p.Factors,
		ReducedFactors:        8,
		ALSIterations:         p.Iterations,
		ALSRegularization:     p.Regularization,
		ALSAlpha:              p.Alpha,
		RetrainMaxAgeMS:       (24 * time.Hour).Milliseconds(),
		RetrainIntervalMS:     (time.Hour).Milliseconds(),
		RetrainQueueSize:      16,
		RetrainWorkers:        1,
	}
}

// Thresholds returns the corpus sufficiency thresholds.
func (c *Config) Thresholds() tier.Thresholds {
	return tier.Thresholds{
		Rich:     c.TierRichMinGames,
		Reduced:  c.TierReducedMinGames,
		Content:  c.TierContentMinGames,
		Fallback: c.TierFallbackMinGames,
	}
}

// TrainingParams returns the latent model parameters for a trained tier.
func (c *Config) TrainingParams(factors int) latent.Params {
	return latent.Params{
		Factors:        factors,
		Iterations:     c.ALSIterations,
		Regularization: c.ALSRegularization,
		Alpha:          c.ALSAlpha,
		Workers:        latent.DefaultParams().Workers,
	}
}

func (c *Config) FeatureStoreTimeout() time.Duration {
	return time.Duration(c.FeatureStoreTimeoutMS) * time.Millisecond
}

func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenTimeoutMS) * time.Millisecond
}

func (c *Config) RetrainMaxAge() time.Duration {
	return time.Duration(c.RetrainMaxAgeMS) * time.Millisecond
}

func (c *Config) RetrainInterval() time.Duration {
	return time.Duration(c.RetrainIntervalMS) * time.Millisecond
}
