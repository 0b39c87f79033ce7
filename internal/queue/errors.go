package queue

import (
	"fmt"

	"wikiseed/internal/services"
)

var (
	// ErrJobNotFound is returned when no job has the requested id.
	ErrJobNotFound = fmt.Errorf("job not found: %w", services.ErrNotFound)
	// ErrDuplicateJob is returned when an exclusive (kind, target) pair already
	// has a non-terminal job.
	ErrDuplicateJob = fmt.Errorf("duplicate job for exclusive target: %w", services.ErrInvariantViolation)
	// ErrClaimLost is returned when a transition is attempted by a caller that
	// no longer owns the claim.
	ErrClaimLost = fmt.Errorf("claim lost: %w", services.ErrConcurrencyConflict)
	// ErrInvalidJob is returned for malformed enqueue requests.
	ErrInvalidJob = fmt.Errorf("invalid job: %w", services.ErrValidation)
	// ErrInvalidTransition is returned when a job is not in a state the
	// requested operator transition accepts.
	ErrInvalidTransition = fmt.Errorf("invalid transition: %w", services.ErrValidation)
)
