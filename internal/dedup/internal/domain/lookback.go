package domain

// Default look-back sizing constants. Observed per-connector values range
// 1x-5x for the factor and 200-500 for the floor; these defaults match
// the most common connector configuration.
const (
	DefaultLookBackFactor = 1
	DefaultLookBackFloor  = 500
)

// Window computes how many of the connector's most recent tokens to load
// for duplicate comparison. An explicit override wins outright; otherwise
// the window is the larger of factor x candidateCount and floor. It is a
// pure function of its inputs and must be recomputed every invocation,
// since candidateCount varies per fetch.
func Window(override, candidateCount, factor, floor int) int {
	if override > 0 {
		return override
	}
	if factor <= 0 {
		factor = DefaultLookBackFactor
	}
	if floor <= 0 {
		floor = DefaultLookBackFloor
	}

	window := factor * candidateCount
	if window < floor {
		window = floor
	}
	return window
}
