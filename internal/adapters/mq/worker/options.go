package worker

import (
	"github.com/okian/meeple/internal/lifecycle"
	"github.com/okian/meeple/pkg/logger"
)

// Option applies a configuration option to an InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithReleaser frees each job's pending slot when the job starts.
func WithReleaser(r Releaser) Option {
	return func(w *InMemoryWorker) {
		w.releaser = r
	}
}

// WithObserver is called after every job with its outcome.
func WithObserver(fn func(Job, lifecycle.RetrainResult, error)) Option {
	return func(w *InMemoryWorker) {
		w.observe = fn
	}
}
