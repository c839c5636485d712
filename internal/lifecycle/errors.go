package lifecycle

import "errors"

var (
	// ErrNotTrainable is returned for tiers that are not backed by a model.
	ErrNotTrainable = errors.New("tier has no trained model")
	// ErrSnapshot wraps failures reading the training snapshot.
	ErrSnapshot = errors.New("snapshot unavailable")
)
