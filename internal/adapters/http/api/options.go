package api

import (
	"time"

	"github.com/okian/meeple/pkg/logger"
)

const defaultRetrainMaxAge = 24 * time.Hour

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request logging.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRetrainMaxAge sets the max age used when POST /retrain omits maxAgeMs.
func WithRetrainMaxAge(d time.Duration) Option {
	return func(s *Server) {
		s.retrainMaxAge = d
	}
}
