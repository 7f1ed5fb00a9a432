package scan

import (
	"strconv"

	"github.com/born-ml/scanloop/internal/graph"
	"github.com/born-ml/scanloop/internal/tensor"
)

// Loop is one instance of the combinator: a validated configuration bound to
// a compiled inner step graph. A Loop is immutable and reusable; every Invoke
// owns its buffers exclusively for the duration of the run.
type Loop struct {
	cfg     Config
	lay     layout
	inner   *graph.Graph
	step    graph.StepFunc
	nNonSeq int
}

// Arguments carries the caller-facing inputs of one loop invocation.
type Arguments struct {
	// Sequences are the plain input sequences; each must have at least
	// |nSteps| rows.
	Sequences []*tensor.RawTensor

	// InitialStates supplies, per tap-bearing channel, the history buffer.
	// Its leading axis defines the channel's store length and must cover
	// at least the required history (-minTap rows). MitMot buffers are
	// consumed fully pre-seeded.
	InitialStates []*tensor.RawTensor

	// SharedInits supplies the starting value of each shared channel.
	SharedInits []*tensor.RawTensor

	// TripCounts sizes each NitSot buffer; each must be >= |nSteps|.
	TripCounts []int

	// NonSequences are loop-invariant values passed to every step.
	NonSequences []*tensor.RawTensor

	// OutputStorage optionally provides per-tracked-output buffers to
	// recycle. Incompatible entries are ignored and fresh storage is
	// allocated.
	OutputStorage []*tensor.RawTensor
}

// NewLoop validates the configuration against the inner graph's slot
// structure and compiles the step function.
//
// The inner graph's slot contract is fixed by the channel model. Inputs:
// sequence slices, tap reads grouped per channel in declared tap order,
// shared current values, then non-sequences. Outputs: MitMot write slices
// grouped per channel, MitSot/SitSot current values, NitSot current values,
// shared updates, then the continuation flag for condition-terminated loops.
func NewLoop(cfg Config, inner *graph.Graph) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()
	if cfg.Name == "" {
		cfg.Name = "scan_fn"
	}
	lay := newLayout(cfg)

	ins := inner.Inputs()
	if len(ins) < lay.nonSeqInputOffset {
		return nil, configErrorf("loop %q: inner graph has %d inputs, need at least %d",
			cfg.Name, len(ins), lay.nonSeqInputOffset)
	}
	nNonSeq := len(ins) - lay.nonSeqInputOffset

	outs := inner.Outputs()
	if len(outs) != lay.nInnerOutputs {
		return nil, configErrorf("loop %q: inner graph has %d outputs, want %d",
			cfg.Name, len(outs), lay.nInnerOutputs)
	}

	// Tap-read and tap-write slots of each channel must agree on dtype.
	// With a type-stable step function this makes per-iteration mismatches
	// impossible, so the loop body never re-checks.
	for idx := 0; idx < lay.nTapOuts; idx++ {
		want := ins[lay.tapInputOffset[idx]].DType()
		for k := range cfg.Channels[idx].Taps {
			if got := ins[lay.tapInputOffset[idx]+k].DType(); got != want {
				return nil, &TypeMismatchError{
					What: "tap-read slot of channel " + cfg.Channels[idx].Kind.String(),
					Have: got.String(), Want: want.String(),
				}
			}
		}
		for _, slot := range writeSlots(cfg, &lay, idx) {
			if got := outs[slot].DType(); got != want {
				return nil, &TypeMismatchError{
					What: "tap-write slot of channel " + cfg.Channels[idx].Kind.String(),
					Have: got.String(), Want: want.String(),
				}
			}
		}
	}
	for j := 0; j < lay.nShared; j++ {
		in := ins[lay.sharedInputOffset+j]
		out := outs[lay.sharedOutOffset+j]
		if in.DType() != out.DType() {
			return nil, &TypeMismatchError{
				What: "shared channel update",
				Have: out.DType().String(), Want: in.DType().String(),
			}
		}
	}
	if cfg.AsWhile {
		cond := outs[lay.condOutOffset]
		if cond.DType() != tensor.Bool || len(cond.Shape()) != 0 {
			return nil, configErrorf("loop %q: continuation flag must be a scalar bool, got %s %v",
				cfg.Name, cond.DType(), cond.Shape())
		}
	}

	step, err := inner.Compile()
	if err != nil {
		return nil, configErrorf("loop %q: %v", cfg.Name, err)
	}
	return &Loop{cfg: cfg, lay: lay, inner: inner, step: step, nNonSeq: nNonSeq}, nil
}

// writeSlots returns the inner output slots written by tap-bearing
// channel idx.
func writeSlots(cfg Config, lay *layout, idx int) []int {
	if idx < lay.nMitMot {
		slots := make([]int, len(cfg.Channels[idx].OutSlices))
		for k := range slots {
			slots[k] = lay.mitMotOutOffset[idx] + k
		}
		return slots
	}
	return []int{lay.tapOutOffset + (idx - lay.nMitMot)}
}

// Config returns a copy of the loop's configuration.
func (l *Loop) Config() Config {
	return l.cfg.clone()
}

// Inner returns the loop's inner graph.
func (l *Loop) Inner() *graph.Graph {
	return l.inner
}

// Equal reports whether two loops denote the same computation: identical
// channel structure and equivalent inner graphs. Field equality alone is not
// enough because two structurally distinct graphs can still denote the same
// computation; that comparison belongs to the graph layer.
func (l *Loop) Equal(other *Loop) bool {
	return l.cfg.Equal(other.cfg) && graph.EqualComputations(l.inner, other.inner)
}

// checkArguments validates argument counts, lengths, and element types
// before any iteration runs.
func (l *Loop) checkArguments(n int, args Arguments) error {
	lay := &l.lay
	if len(args.Sequences) != l.cfg.NumSequences {
		return configErrorf("loop %q: got %d sequences, want %d",
			l.cfg.Name, len(args.Sequences), l.cfg.NumSequences)
	}
	if len(args.InitialStates) != lay.nTapOuts {
		return configErrorf("loop %q: got %d initial states, want %d",
			l.cfg.Name, len(args.InitialStates), lay.nTapOuts)
	}
	if len(args.SharedInits) != lay.nShared {
		return configErrorf("loop %q: got %d shared inits, want %d",
			l.cfg.Name, len(args.SharedInits), lay.nShared)
	}
	if len(args.TripCounts) != lay.nNitSot {
		return configErrorf("loop %q: got %d trip counts, want %d",
			l.cfg.Name, len(args.TripCounts), lay.nNitSot)
	}
	if len(args.NonSequences) != l.nNonSeq {
		return configErrorf("loop %q: got %d non-sequences, want %d",
			l.cfg.Name, len(args.NonSequences), l.nNonSeq)
	}
	if len(args.OutputStorage) != 0 && len(args.OutputStorage) != lay.nTracked {
		return configErrorf("loop %q: got %d output storage slots, want 0 or %d",
			l.cfg.Name, len(args.OutputStorage), lay.nTracked)
	}

	ins := l.inner.Inputs()
	for i, seq := range args.Sequences {
		if seq.Rows() < n {
			return &LengthError{What: "sequence", Length: seq.Rows(), Required: n}
		}
		if seq.DType() != ins[i].DType() {
			return &TypeMismatchError{
				What: "sequence", Have: seq.DType().String(), Want: ins[i].DType().String(),
			}
		}
	}
	for j, count := range args.TripCounts {
		if count < n {
			return &LengthError{
				What: "trip count for nit-sot output " + strconv.Itoa(j), Length: count, Required: n,
			}
		}
	}
	for idx, init := range args.InitialStates {
		want := ins[lay.tapInputOffset[idx]].DType()
		if init.DType() != want {
			return &TypeMismatchError{
				What: "initial state of " + l.cfg.Channels[idx].Kind.String() + " channel",
				Have: init.DType().String(), Want: want.String(),
			}
		}
	}
	for j, sh := range args.SharedInits {
		want := ins[lay.sharedInputOffset+j].DType()
		if sh.DType() != want {
			return &TypeMismatchError{
				What: "shared initial value", Have: sh.DType().String(), Want: want.String(),
			}
		}
	}
	for j, ns := range args.NonSequences {
		want := ins[lay.nonSeqInputOffset+j].DType()
		if ns.DType() != want {
			return &TypeMismatchError{
				What: "non-sequence", Have: ns.DType().String(), Want: want.String(),
			}
		}
	}
	return nil
}

// Invoke runs the loop for |nSteps| iterations, or until the continuation
// flag goes false for condition-terminated loops. A negative nSteps iterates
// the sequences in mirrored order, which is how a gradient loop replays its
// forward trace backwards.
//
// The returned slice holds one buffer per declared channel: tap-bearing
// buffers first, then NitSot traces, then final shared values.
func (l *Loop) Invoke(nSteps int, args Arguments) ([]*tensor.RawTensor, error) {
	if nSteps == 0 {
		return nil, configErrorf("loop %q: number of steps must be non-zero", l.cfg.Name)
	}
	reversed := nSteps < 0
	n := nSteps
	if reversed {
		n = -n
	}
	if err := l.checkArguments(n, args); err != nil {
		return nil, err
	}

	lay := &l.lay
	bufs, err := prepareBuffers(l.cfg, lay, args)
	if err != nil {
		return nil, err
	}

	shared := make([]*tensor.RawTensor, lay.nShared)
	ins := make([]*tensor.RawTensor, lay.nonSeqInputOffset+l.nNonSeq)
	copy(ins[lay.nonSeqInputOffset:], args.NonSequences)

	executed := 0
	cont := true
	for i := 0; i < n && cont; i++ {
		// Gather sequence slices (mirrored when running in reverse).
		for s, seq := range args.Sequences {
			row := i
			if reversed {
				row = seq.Rows() - 1 - i
			}
			ins[s] = seq.Row(row)
		}
		// Gather tap history.
		for idx := 0; idx < lay.nTapOuts; idx++ {
			for k, tap := range l.cfg.Channels[idx].Taps {
				ins[lay.tapInputOffset[idx]+k] = bufs.read(idx, tap)
			}
		}
		// Gather shared state: caller values on the first step, the
		// previous step's updates afterwards.
		for j := 0; j < lay.nShared; j++ {
			if i == 0 {
				ins[lay.sharedInputOffset+j] = args.SharedInits[j]
			} else {
				ins[lay.sharedInputOffset+j] = shared[j]
			}
		}

		// One opaque call into the inner step function. Failures abort
		// the loop; buffers written so far stay inspectable.
		outs, err := l.step(ins)
		if err != nil {
			return nil, &StepError{Step: i, Err: err}
		}

		// Scatter MitMot write slices.
		for j := 0; j < lay.nMitMot; j++ {
			for k, slice := range l.cfg.Channels[j].OutSlices {
				if err := bufs.write(j, slice, outs[lay.mitMotOutOffset[j]+k]); err != nil {
					return nil, &StepError{Step: i, Err: err}
				}
			}
		}
		// Scatter MitSot/SitSot current values.
		for j := 0; j < lay.nMitSot+lay.nSitSot; j++ {
			idx := lay.nMitMot + j
			if err := bufs.write(idx, 0, outs[lay.tapOutOffset+j]); err != nil {
				return nil, &StepError{Step: i, Err: err}
			}
		}
		// Scatter NitSot values, sizing buffers on the first step.
		for j := 0; j < lay.nNitSot; j++ {
			value := outs[lay.nitSotOutOffset+j]
			bufs.sizeNitSot(j, value)
			if err := bufs.write(lay.nTapOuts+j, 0, value); err != nil {
				return nil, &StepError{Step: i, Err: err}
			}
		}
		// Replace shared state wholesale.
		for j := 0; j < lay.nShared; j++ {
			shared[j] = outs[lay.sharedOutOffset+j]
		}
		if l.cfg.AsWhile {
			cont = outs[lay.condOutOffset].AsBool()[0]
		}

		bufs.advance()
		executed++
	}

	bufs.finalize(executed, n)

	result := bufs.outputs()
	for j := 0; j < lay.nShared; j++ {
		if executed == 0 {
			result = append(result, args.SharedInits[j])
		} else {
			result = append(result, shared[j])
		}
	}
	return result, nil
}
