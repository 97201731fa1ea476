package gateway

import "errors"

// Sentinel errors for the gateway package.
var (
	ErrAtLeastOnePayload    = errors.New("at least one payload is required")
	ErrBatchTooLarge        = errors.New("request exceeds maximum payload count")
	ErrConnectorIDRequired  = errors.New("connector id is required")
	ErrConnectorKeyMismatch = errors.New("ingest key is not valid for this connector")
)
