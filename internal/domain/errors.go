package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNotInitialized = errors.New("price source not initialized")
	ErrMissingColumns = errors.New("missing required columns")
	ErrEmptyReplay    = errors.New("replay contains no usable rows")
	ErrUnknownProfile = errors.New("unknown participant profile")
	ErrInvalidConfig  = errors.New("invalid run configuration")
	ErrLockHeld       = errors.New("lock already held")
	ErrRunLimit       = errors.New("too many active runs")
)
