package repository

import "errors"

// Sentinel kinds for feature store errors.
var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrScope         = errors.New("unsupported snapshot scope")
)
