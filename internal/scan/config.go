package scan

// Config is the immutable description of a loop's channel structure.
type Config struct {
	// NumSequences is the number of plain input sequences consumed one
	// step-slice per iteration.
	NumSequences int

	// Channels lists the loop's output channels in canonical kind order:
	// MitMot, MitSot, SitSot, NitSot, Shared.
	Channels []ChannelSpec

	// TruncateGradient caps the number of backward iterations when a
	// gradient loop is constructed from this one. -1 means unlimited.
	// Steps beyond the cap contribute zero gradient (truncated
	// backpropagation through time).
	TruncateGradient int

	// AsWhile marks a condition-terminated loop: the inner function emits
	// one extra scalar bool output, and the loop continues only while it
	// is true.
	AsWhile bool

	// ReuseInputStorage makes tap-bearing channels write back into the
	// caller-supplied initial-state buffers. Ownership of those buffers
	// transfers to the loop; the caller must not read them through other
	// aliases afterwards.
	ReuseInputStorage bool

	// Name identifies the loop in errors and derived gradient loops.
	Name string
}

// Validate checks the channel declarations for internal consistency.
func (c Config) Validate() error {
	if c.NumSequences < 0 {
		return configErrorf("negative sequence count %d", c.NumSequences)
	}
	if c.TruncateGradient != -1 && c.TruncateGradient < 1 {
		return configErrorf("truncate gradient must be -1 or positive, got %d", c.TruncateGradient)
	}
	prev := MitMot
	for i, ch := range c.Channels {
		if ch.Kind < MitMot || ch.Kind > Shared {
			return configErrorf("channel %d has unknown kind %d", i, int(ch.Kind))
		}
		if ch.Kind < prev {
			return configErrorf("channel %d: %s declared after %s; channels must be in canonical kind order",
				i, ch.Kind, prev)
		}
		prev = ch.Kind

		switch ch.Kind {
		case MitMot:
			if len(ch.Taps) == 0 {
				return configErrorf("mit-mot channel %d declares no taps", i)
			}
			if len(ch.OutSlices) == 0 {
				return configErrorf("mit-mot channel %d declares no output slices", i)
			}
		case MitSot:
			if len(ch.Taps) == 0 {
				return configErrorf("mit-sot channel %d declares no taps", i)
			}
			for _, t := range ch.Taps {
				if t >= 0 {
					return configErrorf("mit-sot channel %d has non-negative tap %d", i, t)
				}
			}
		case SitSot:
			if len(ch.Taps) != 1 || ch.Taps[0] != -1 {
				return configErrorf("sit-sot channel %d must have taps [-1], got %v", i, ch.Taps)
			}
		case NitSot, Shared:
			if len(ch.Taps) != 0 {
				return configErrorf("%s channel %d must not declare taps", ch.Kind, i)
			}
		}
		if ch.Kind != MitMot && len(ch.OutSlices) != 0 {
			return configErrorf("%s channel %d must not declare output slices", ch.Kind, i)
		}
		if dup, ok := firstDuplicate(ch.Taps); ok {
			return configErrorf("channel %d declares duplicate tap %d", i, dup)
		}
	}
	return nil
}

func firstDuplicate(xs []int) (int, bool) {
	seen := make(map[int]bool, len(xs))
	for _, x := range xs {
		if seen[x] {
			return x, true
		}
		seen[x] = true
	}
	return 0, false
}

// Equal reports whether two configurations declare the same loop structure.
// Inner-graph equivalence is the graph layer's concern; Loop.Equal combines
// both.
func (c Config) Equal(other Config) bool {
	return c.NumSequences == other.NumSequences &&
		c.TruncateGradient == other.TruncateGradient &&
		c.AsWhile == other.AsWhile &&
		c.ReuseInputStorage == other.ReuseInputStorage &&
		equalSpecs(c.Channels, other.Channels)
}

// clone returns a deep copy of the configuration.
func (c Config) clone() Config {
	out := c
	out.Channels = make([]ChannelSpec, len(c.Channels))
	for i, ch := range c.Channels {
		out.Channels[i] = ch.clone()
	}
	return out
}

// layout holds every positional offset derived from a Config. Deriving them
// once keeps the executor free of repeated offset arithmetic and makes the
// arithmetic independently testable.
type layout struct {
	nMitMot int
	nMitSot int
	nSitSot int
	nNitSot int
	nShared int

	// nTapOuts counts channels with tap history: MitMot + MitSot + SitSot.
	nTapOuts int
	// nTracked counts outputs with per-step buffers: nTapOuts + nNitSot.
	nTracked int
	// nMitMotOuts is the total number of inner output slots occupied by
	// MitMot write slices.
	nMitMotOuts int

	// minTap per tracked output (0 for NitSot).
	minTap []int

	// tapInputOffset maps each tap-bearing channel to the inner input slot
	// of its first tap read.
	tapInputOffset []int
	// sharedInputOffset is the first inner input slot for shared state.
	sharedInputOffset int
	// nonSeqInputOffset is the first inner input slot for non-sequences.
	nonSeqInputOffset int

	// mitMotOutOffset maps each MitMot channel to the inner output slot of
	// its first write slice.
	mitMotOutOffset []int
	// tapOutOffset is the inner output slot of the first MitSot/SitSot
	// current-step value.
	tapOutOffset int
	// nitSotOutOffset is the inner output slot of the first NitSot value.
	nitSotOutOffset int
	// sharedOutOffset is the inner output slot of the first shared update.
	sharedOutOffset int
	// condOutOffset is the inner output slot of the continuation flag;
	// meaningful only when the config is condition-terminated.
	condOutOffset int
	// nInnerOutputs is the total number of inner output slots.
	nInnerOutputs int
}

// newLayout derives the offset table for a validated config.
func newLayout(c Config) layout {
	var l layout
	for _, ch := range c.Channels {
		switch ch.Kind {
		case MitMot:
			l.nMitMot++
		case MitSot:
			l.nMitSot++
		case SitSot:
			l.nSitSot++
		case NitSot:
			l.nNitSot++
		case Shared:
			l.nShared++
		}
	}
	l.nTapOuts = l.nMitMot + l.nMitSot + l.nSitSot
	l.nTracked = l.nTapOuts + l.nNitSot

	l.minTap = make([]int, l.nTracked)
	l.tapInputOffset = make([]int, l.nTapOuts)
	slot := c.NumSequences
	for i := 0; i < l.nTapOuts; i++ {
		l.minTap[i] = c.Channels[i].minTap()
		l.tapInputOffset[i] = slot
		slot += len(c.Channels[i].Taps)
	}
	l.sharedInputOffset = slot
	l.nonSeqInputOffset = slot + l.nShared

	l.mitMotOutOffset = make([]int, l.nMitMot)
	out := 0
	for i := 0; i < l.nMitMot; i++ {
		l.mitMotOutOffset[i] = out
		out += len(c.Channels[i].OutSlices)
	}
	l.nMitMotOuts = out
	l.tapOutOffset = out
	l.nitSotOutOffset = out + l.nMitSot + l.nSitSot
	l.sharedOutOffset = l.nitSotOutOffset + l.nNitSot
	l.nInnerOutputs = l.sharedOutOffset + l.nShared
	l.condOutOffset = l.nInnerOutputs
	if c.AsWhile {
		l.nInnerOutputs++
	}
	return l
}

// minTapOf returns the minimum tap of tracked output idx (0 for NitSot).
func (l *layout) minTapOf(idx int) int {
	return l.minTap[idx]
}

// mod implements a non-negative remainder for ring indexing.
func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
