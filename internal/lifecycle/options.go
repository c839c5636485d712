package lifecycle

import (
	"time"

	"github.com/okian/meeple/internal/domain/latent"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/pkg/logger"
)

// Option configures a Manager.
type Option func(*Manager)

// WithParams sets the training parameters for a trained tier.
func WithParams(t model.Tier, p latent.Params) Option {
	return func(m *Manager) {
		if t.Trained() {
			m.params[t] = p
		}
	}
}

// WithArtifactStore persists every published model and restores them on Load.
func WithArtifactStore(s ArtifactStore) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}
