// Package dedup decides whether a freshly fetched payload represents new
// information or a repeat. Each candidate is fingerprinted over its
// canonical serialization and, under the on_change mode, compared against
// a bounded look-back window of the connector's most recent tokens.
package dedup

import (
	"github.com/feedbridge/feedbridge/internal/dedup/internal/domain"
	"github.com/feedbridge/feedbridge/internal/dedup/internal/service"
)

// Mode is the emission policy: all, on_change, or merge.
type Mode = domain.Mode

// Emission modes.
const (
	ModeAll      = domain.ModeAll
	ModeOnChange = domain.ModeOnChange
	ModeMerge    = domain.ModeMerge
)

// ErrIllegalMode reports an unrecognized mode string. It is a
// configuration error: connectors carrying it must not run.
var ErrIllegalMode = domain.ErrIllegalMode

// ParseMode parses a configured mode string, failing fast on anything
// outside the closed set. The empty string defaults to "all".
func ParseMode(s string) (Mode, error) {
	return domain.ParseMode(s)
}

// Token is the engine's view of a stored deduplication token.
type Token = service.Token

// TokenSource supplies a connector's most recent tokens, newest first.
type TokenSource = service.TokenSource

// KeepAlive extends the visible expiry of an event whose payload was
// re-seen as a duplicate. Optional and deprecated; see Config.KeepAlive.
type KeepAlive = service.KeepAlive

// Fingerprint computes the canonical SHA-256 fingerprint of a payload.
// Exposed for callers that record tokens outside the engine (e.g. the
// webhook receive path).
func Fingerprint(payload map[string]interface{}) (string, error) {
	return domain.Fingerprint(payload)
}

// Window computes the look-back window size for a given invocation.
// Exposed for observability and tests; the engine calls it internally.
func Window(override, candidateCount, factor, floor int) int {
	return domain.Window(override, candidateCount, factor, floor)
}
