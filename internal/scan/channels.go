// Package scan implements a differentiable loop combinator: a single operator
// that repeatedly invokes an inner step computation, threading per-iteration
// state through typed channels, and that can construct a second loop instance
// computing the reverse-mode gradient of the whole iteration.
//
// Loop data is organized into channels of five kinds:
//
//   - MitMot: multiple input taps, multiple output slices per step. Only
//     produced internally by gradient construction.
//   - MitSot: multiple past input taps, one output at the current step.
//   - SitSot: exactly one tap at t-1, one output at the current step.
//   - NitSot: no taps; an accumulate-only output whose buffer is sized
//     lazily from the first step's result.
//   - Shared: persistent whole-value state, replaced every step, not
//     indexed by time.
//
// Plain input sequences are not channels: they are consumed, never produced,
// and are declared by count in the Config.
package scan

// ChannelKind identifies how a loop output reads and writes history.
type ChannelKind int

// Channel kinds in canonical declaration order.
const (
	MitMot ChannelKind = iota
	MitSot
	SitSot
	NitSot
	Shared
)

// String returns a human-readable kind name.
func (k ChannelKind) String() string {
	switch k {
	case MitMot:
		return "mit-mot"
	case MitSot:
		return "mit-sot"
	case SitSot:
		return "sit-sot"
	case NitSot:
		return "nit-sot"
	case Shared:
		return "shared"
	default:
		return "unknown"
	}
}

// ChannelSpec describes one loop output channel. The tagged-variant form
// carries everything positional arithmetic needs, so slot offsets can be
// derived once at construction instead of being recomputed throughout.
type ChannelSpec struct {
	Kind ChannelKind

	// Taps are the signed offsets, relative to the current position, at
	// which the inner function reads this channel's history. Negative
	// offsets read the past. MitSot and SitSot taps must be negative;
	// SitSot taps must be exactly [-1]. MitMot taps may have either sign:
	// gradient construction produces non-negative taps for the carried
	// inter-step gradients.
	Taps []int

	// OutSlices are the offsets at which the inner function writes, for
	// MitMot channels only. Every other kind writes a single value at the
	// current position (or replaces the whole value, for Shared).
	OutSlices []int
}

// minTap returns the smallest tap offset, or 0 for channels without taps.
func (c ChannelSpec) minTap() int {
	min := 0
	for _, t := range c.Taps {
		if t < min {
			min = t
		}
	}
	return min
}

// clone returns a deep copy of the spec.
func (c ChannelSpec) clone() ChannelSpec {
	out := ChannelSpec{Kind: c.Kind}
	if c.Taps != nil {
		out.Taps = append([]int(nil), c.Taps...)
	}
	if c.OutSlices != nil {
		out.OutSlices = append([]int(nil), c.OutSlices...)
	}
	return out
}

// equalSpecs reports whether two channel lists match exactly.
func equalSpecs(a, b []ChannelSpec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind ||
			!equalInts(a[i].Taps, b[i].Taps) ||
			!equalInts(a[i].OutSlices, b[i].OutSlices) {
			return false
		}
	}
	return true
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
