package minrec

import "errors"

var (
	// ErrInvalidRounds is returned when the round count is not positive.
	ErrInvalidRounds = errors.New("minrec: rounds must be positive")

	// ErrInvalidTopK is returned when top-K is not positive.
	ErrInvalidTopK = errors.New("minrec: top-k must be positive")

	// ErrInvalidMaxInteractions is returned when the bot-filter threshold
	// is not positive.
	ErrInvalidMaxInteractions = errors.New("minrec: max interactions per user must be positive")

	// ErrInvalidWorkers is returned when the worker count is negative.
	ErrInvalidWorkers = errors.New("minrec: workers must be non-negative")

	// ErrNilSource is returned when Run is called without a source.
	ErrNilSource = errors.New("minrec: source must not be nil")

	// ErrResultsClosed is returned when results are used after Close.
	ErrResultsClosed = errors.New("minrec: results closed")
)
