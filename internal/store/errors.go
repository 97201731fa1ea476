package store

import "errors"

// Sentinel errors for the store package.
var (
	ErrEventNotFound = errors.New("event not found")

	// Token validation errors. A token always belongs to exactly one
	// connector and exactly one event.
	ErrConnectorIDRequired = errors.New("connector_id is required")
	ErrEventIDRequired     = errors.New("event_id is required")
	ErrFingerprintRequired = errors.New("fingerprint is required")

	// ErrFlushInProgress is returned by BeginFlush when another worker
	// already holds the connector's flush lock.
	ErrFlushInProgress = errors.New("flush already in progress")
)
