package latent

import "errors"

var (
	ErrDimensionMismatch = errors.New("item factors do not match the vocabulary")
	ErrNoInteractions    = errors.New("snapshot has no usable ratings")
)
