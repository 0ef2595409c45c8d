package data

import "errors"

// Shared sentinel errors for data-layer stores.
var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrEngineNotFound is returned when an engine is not found.
	ErrEngineNotFound = errors.New("engine not found")
	// ErrMaxRetriesTooLow is returned when a patch would set max_retries
	// below the job's current retry count.
	ErrMaxRetriesTooLow = errors.New("max_retries cannot be less than the current retry count")
)
