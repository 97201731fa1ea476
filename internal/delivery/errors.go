package delivery

import "errors"

var (
	// ErrEndpointRequired is returned when the transport has no
	// destination URL.
	ErrEndpointRequired = errors.New("delivery endpoint is required")

	// ErrScoreRequired reports a record whose data type demands a score
	// but carries none.
	ErrScoreRequired = errors.New("score is required")

	// ErrScoreNotNumeric reports a score that is neither a number nor a
	// numeric string.
	ErrScoreNotNumeric = errors.New("score must be numeric")
)
