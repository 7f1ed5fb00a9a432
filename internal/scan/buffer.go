package scan

import (
	"github.com/born-ml/scanloop/internal/tensor"
)

// nitSotState is the two-phase allocation state of a NitSot buffer: Unsized
// until the first step's output fixes shape and dtype, Sized afterwards. The
// transition happens exactly once per loop run.
type nitSotState int

const (
	nitSotUnsized nitSotState = iota
	nitSotSized
)

// bufferSet owns the per-output ring buffers for one loop run: one buffer per
// tracked output (tap-bearing channels first, then NitSot), each of length
// store[idx], plus the ring position per output.
type bufferSet struct {
	lay *layout

	bufs  []*tensor.RawTensor
	store []int
	pos   []int

	// nitState tracks lazy NitSot sizing, indexed by NitSot ordinal.
	nitState []nitSotState
	// candidates holds caller-provided output storage, reused when
	// compatible; indexed by tracked output.
	candidates []*tensor.RawTensor
}

// prepareBuffers sizes and seeds the buffers for one run.
//
// For each tap-bearing channel, the caller's initial-state tensor defines the
// store length (its leading axis) and seeds the history. Storage is chosen in
// order of preference: the initial-state tensor itself when the config
// transfers ownership (ReuseInputStorage), a compatible caller-provided
// output buffer, or a fresh copy of the initial state.
//
// NitSot buffers stay Unsized here: their store length comes from the trip
// count, but shape and dtype are unknown until the first step runs.
func prepareBuffers(cfg Config, lay *layout, args Arguments) (*bufferSet, error) {
	b := &bufferSet{
		lay:        lay,
		bufs:       make([]*tensor.RawTensor, lay.nTracked),
		store:      make([]int, lay.nTracked),
		pos:        make([]int, lay.nTracked),
		nitState:   make([]nitSotState, lay.nNitSot),
		candidates: make([]*tensor.RawTensor, lay.nTracked),
	}
	if len(args.OutputStorage) > 0 {
		copy(b.candidates, args.OutputStorage)
	}

	for idx := 0; idx < lay.nTapOuts; idx++ {
		init := args.InitialStates[idx]
		required := -lay.minTap[idx]
		if required < 1 {
			required = 1
		}
		if init.Rows() < required {
			return nil, &LengthError{
				What:     "initial state " + cfg.Channels[idx].Kind.String(),
				Length:   init.Rows(),
				Required: required,
			}
		}
		b.store[idx] = init.Rows()

		switch {
		case cfg.ReuseInputStorage:
			// Ownership transfer: write back into the caller's buffer.
			b.bufs[idx] = init
		case b.reusable(idx, init.Shape().Tail(), init.DType()):
			buf := b.candidates[idx].SliceRows(0, b.store[idx])
			if cfg.Channels[idx].Kind == MitMot {
				// MitMot rings are fully pre-seeded.
				if err := buf.CopyFrom(init); err != nil {
					return nil, err
				}
			} else {
				seed := -lay.minTap[idx]
				if err := buf.SliceRows(0, seed).CopyFrom(init.SliceRows(0, seed)); err != nil {
					return nil, err
				}
			}
			b.bufs[idx] = buf
		default:
			b.bufs[idx] = init.Clone()
		}
	}

	for j := 0; j < lay.nNitSot; j++ {
		idx := lay.nTapOuts + j
		b.store[idx] = args.TripCounts[j]
	}

	for idx := 0; idx < lay.nTracked; idx++ {
		b.pos[idx] = mod(-lay.minTapOf(idx), b.store[idx])
	}
	return b, nil
}

// reusable reports whether the caller-provided storage for tracked output
// idx can hold a buffer of the given row shape and dtype.
func (b *bufferSet) reusable(idx int, rowShape tensor.Shape, dtype tensor.DataType) bool {
	cand := b.candidates[idx]
	return cand != nil &&
		cand.DType() == dtype &&
		cand.Shape().Tail().Equal(rowShape) &&
		cand.Rows() >= b.store[idx]
}

// sizeNitSot fixes the buffer of NitSot ordinal j from the first step's
// output value, transitioning Unsized to Sized. Caller storage is reused
// only when compatible in shape, dtype, and length.
func (b *bufferSet) sizeNitSot(j int, first *tensor.RawTensor) *tensor.RawTensor {
	idx := b.lay.nTapOuts + j
	if b.nitState[j] == nitSotSized {
		return b.bufs[idx]
	}
	if b.reusable(idx, first.Shape(), first.DType()) {
		b.bufs[idx] = b.candidates[idx].SliceRows(0, b.store[idx])
	} else {
		b.bufs[idx] = tensor.Zeros(first.Shape().Prepend(b.store[idx]), first.DType())
	}
	b.nitState[j] = nitSotSized
	return b.bufs[idx]
}

// read returns the ring slot of tracked output idx at the given tap offset.
func (b *bufferSet) read(idx, tap int) *tensor.RawTensor {
	return b.bufs[idx].Row(mod(b.pos[idx]+tap, b.store[idx]))
}

// write stores a step value into tracked output idx at the given offset from
// the current position.
func (b *bufferSet) write(idx, offset int, value *tensor.RawTensor) error {
	return b.bufs[idx].SetRow(mod(b.pos[idx]+offset, b.store[idx]), value)
}

// advance moves every ring position one step forward.
func (b *bufferSet) advance() {
	for idx := range b.pos {
		b.pos[idx] = (b.pos[idx] + 1) % b.store[idx]
	}
}

// finalize restores chronological order after the loop ends.
//
// MitMot buffers are exempt: gradient construction owns their layout. For
// every other tracked output the executed-steps vs store-steps relation picks
// one of three branches:
//
//   - store < executed - minTap: the ring wrapped; rotate so slot 0 holds the
//     oldest retained value, copying whichever half is smaller.
//   - store > executed - minTap: the ring never wrapped, so physical order is
//     already chronological; zero-fill the unexecuted tail. Trailing zeros
//     are a public contract: gradient consumers read them as "no
//     contribution beyond the effective loop length". When the loop stopped
//     on its condition, additionally trim to the effective length.
//   - store == executed - minTap: exactly full, already chronological.
func (b *bufferSet) finalize(executed, nSteps int) {
	for idx := b.lay.nMitMot; idx < b.lay.nTracked; idx++ {
		if b.bufs[idx] == nil {
			// NitSot that never ran a step; leave Unsized.
			continue
		}
		valid := executed - b.lay.minTapOf(idx)
		switch {
		case b.store[idx] < valid:
			rotateRows(b.bufs[idx], b.pos[idx])
		case b.store[idx] > valid:
			b.bufs[idx].ZeroRows(valid, b.store[idx])
			if cut := b.store[idx] - (nSteps - executed); executed < nSteps && cut >= valid {
				b.bufs[idx] = b.bufs[idx].SliceRows(0, cut)
			}
		}
	}
}

// outputs returns the per-output buffers in declared channel order.
func (b *bufferSet) outputs() []*tensor.RawTensor {
	out := make([]*tensor.RawTensor, b.lay.nTracked)
	copy(out, b.bufs)
	return out
}

// rotateRows rotates buf so that the row at position pdx becomes row 0,
// copying the smaller of the two halves through a temporary.
func rotateRows(buf *tensor.RawTensor, pdx int) {
	store := buf.Rows()
	if pdx == 0 {
		return
	}
	rb := buf.ByteSize() / store
	data := buf.Data()
	if pdx < store/2 {
		tmp := make([]byte, pdx*rb)
		copy(tmp, data[:pdx*rb])
		copy(data[:(store-pdx)*rb], data[pdx*rb:])
		copy(data[(store-pdx)*rb:], tmp)
	} else {
		tmp := make([]byte, (store-pdx)*rb)
		copy(tmp, data[pdx*rb:])
		copy(data[(store-pdx)*rb:], data[:pdx*rb])
		copy(data[:(store-pdx)*rb], tmp)
	}
}
