package model

import "errors"

// Error taxonomy shared by the recommendation components. Only
// ErrDataUnavailable is ever returned to callers of the engine.
var (
	ErrDataUnavailable            = errors.New("data unavailable")
	ErrModelUnavailable           = errors.New("model unavailable")
	ErrTrainingFailed             = errors.New("training failed")
	ErrInsufficientProfileOverlap = errors.New("insufficient profile overlap")
	ErrNotFound                   = errors.New("not found")
	ErrUnknownTier                = errors.New("unknown tier")
)
