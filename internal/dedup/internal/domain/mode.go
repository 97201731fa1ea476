// Package domain contains the core deduplication primitives: the emission
// mode, the payload fingerprint, and the look-back window sizing.
package domain

import (
	"errors"
	"fmt"
)

// Mode is the dedup emission policy. It is a closed set; anything else is
// a configuration error surfaced at validation time, never at check time.
type Mode int

const (
	// ModeAll stores every candidate payload regardless of history.
	ModeAll Mode = iota

	// ModeOnChange stores a candidate only when no recent token carries
	// the same fingerprint.
	ModeOnChange

	// ModeMerge stores every candidate, like ModeAll. Whether the stored
	// record replaces or deep-merges a prior one is a downstream concern;
	// the engine treats the two identically.
	ModeMerge
)

// ErrIllegalMode reports an unrecognized mode string.
var ErrIllegalMode = errors.New("illegal mode")

// ParseMode parses a configured mode string. The empty string defaults to
// "all", matching the reference behavior of unset configurations.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "all":
		return ModeAll, nil
	case "on_change":
		return ModeOnChange, nil
	case "merge":
		return ModeMerge, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrIllegalMode, s)
	}
}

// String returns the configuration spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeOnChange:
		return "on_change"
	case ModeMerge:
		return "merge"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
