package scan

import (
	"fmt"

	"github.com/born-ml/scanloop/internal/graph"
	"github.com/born-ml/scanloop/internal/tensor"
)

// buildBackwardPlan derives the loop that computes reverse-mode gradients of
// a forward loop. It is a pure function of the forward configuration and
// inner graph: no numeric state is consulted, so the same plan serves every
// invocation.
//
// The backward loop replays the forward trace in reverse. Every forward
// value the inner function read becomes a backward sequence: the forward
// input sequences, the tap history of every state channel, and the incoming
// gradients of NitSot traces. Every forward tap channel becomes a backward
// MitMot channel whose ring carries the partially accumulated gradient of
// that channel's buffer; its taps mirror the forward taps with flipped sign,
// so a read k steps into the past becomes a write k steps into the future of
// the reversed iteration. Gradients of loop-invariant inputs accumulate in
// zero-initialized shared channels, and the forward shared channels are
// carried along unchanged so the replayed step sees the same values the
// forward pass saw.
func buildBackwardPlan(cfg Config, lay *layout, inner *graph.Graph, nNonSeq int) (Config, *graph.Graph) {
	cloned := inner.Clone("_grad")
	cins := cloned.Inputs()
	couts := cloned.Outputs()

	nSeqs := cfg.NumSequences
	cSeqs := cins[:nSeqs]
	cShared := cins[lay.sharedInputOffset : lay.sharedInputOffset+lay.nShared]
	cNonSeq := cins[lay.nonSeqInputOffset:]

	// Differentiable inner inputs: sequence slices, tap reads, and
	// non-sequences. Shared state carries no gradient.
	diffInputs := make([]*graph.Variable, 0, nSeqs+nNonSeq)
	diffInputs = append(diffInputs, cSeqs...)
	for idx := 0; idx < lay.nTapOuts; idx++ {
		base := lay.tapInputOffset[idx]
		diffInputs = append(diffInputs, cins[base:base+len(cfg.Channels[idx].Taps)]...)
	}
	nonSeqBase := len(diffInputs)
	diffInputs = append(diffInputs, cNonSeq...)

	// One incoming-gradient placeholder per differentiable inner output.
	clean := couts[:lay.sharedOutOffset]
	gOuts := make([]*graph.Variable, len(clean))
	for dx, out := range clean {
		gOuts[dx] = graph.Placeholder(fmt.Sprintf("g_out_%d", dx), out.Shape(), out.DType())
	}

	// Placeholders for the gradient carried in from later (reversed-order
	// earlier) iterations, one per tap read and per non-sequence.
	prev := make([]*graph.Variable, len(diffInputs))
	for i := nSeqs; i < len(diffInputs); i++ {
		prev[i] = graph.Placeholder(fmt.Sprintf("g_prev_%d", i), diffInputs[i].Shape(), diffInputs[i].DType())
	}

	// Sum gradient contributions over every differentiable output. Carried
	// gradients seed the accumulator so each step adds its own
	// contribution to what later iterations already propagated.
	acc := make([]*graph.Variable, len(diffInputs))
	for dx, out := range clean {
		grads := graph.Gradient(out, gOuts[dx], diffInputs)
		if dx == 0 {
			for i := nSeqs; i < len(acc); i++ {
				acc[i] = prev[i]
			}
		}
		for i, g := range grads {
			switch {
			case g != nil && acc[i] != nil:
				acc[i] = graph.Add(acc[i], g)
			case acc[i] == nil:
				acc[i] = g
			}
		}
	}
	for i, a := range acc {
		if a == nil {
			acc[i] = graph.ZerosLike(diffInputs[i])
		}
	}

	// Assemble the backward inner graph. Input slot order follows the
	// channel model: sequences, MitMot tap reads, shared state, then
	// non-sequences.
	bIns := make([]*graph.Variable, 0, len(cins)+len(gOuts)+len(prev))
	bIns = append(bIns, cSeqs...)
	for idx := 0; idx < lay.nTapOuts; idx++ {
		base := lay.tapInputOffset[idx]
		bIns = append(bIns, cins[base:base+len(cfg.Channels[idx].Taps)]...)
	}
	bIns = append(bIns, gOuts[lay.nitSotOutOffset:lay.nitSotOutOffset+lay.nNitSot]...)
	nBwdSeqs := len(bIns)

	channels := make([]ChannelSpec, 0, lay.nTapOuts+nSeqs+nNonSeq+lay.nShared)
	var mitMotOuts []*graph.Variable
	insPos := nSeqs
	outPos := 0
	for idx := 0; idx < lay.nMitSot; idx++ {
		taps := cfg.Channels[lay.nMitMot+idx].Taps
		spec := ChannelSpec{Kind: MitMot}
		for _, k := range taps {
			bIns = append(bIns, prev[insPos])
			mitMotOuts = append(mitMotOuts, acc[insPos])
			spec.Taps = append(spec.Taps, -k)
			spec.OutSlices = append(spec.OutSlices, -k)
			insPos++
		}
		bIns = append(bIns, gOuts[outPos])
		spec.Taps = append(spec.Taps, 0)
		outPos++
		channels = append(channels, spec)
	}
	for idx := 0; idx < lay.nSitSot; idx++ {
		bIns = append(bIns, gOuts[outPos], prev[insPos])
		mitMotOuts = append(mitMotOuts, acc[insPos])
		channels = append(channels, ChannelSpec{
			Kind:      MitMot,
			Taps:      []int{0, 1},
			OutSlices: []int{1},
		})
		outPos++
		insPos++
	}

	for s := 0; s < nSeqs; s++ {
		channels = append(channels, ChannelSpec{Kind: NitSot})
	}
	for j := 0; j < nNonSeq; j++ {
		channels = append(channels, ChannelSpec{Kind: Shared})
	}
	for j := 0; j < lay.nShared; j++ {
		channels = append(channels, ChannelSpec{Kind: Shared})
	}

	bIns = append(bIns, prev[nonSeqBase:]...)
	bIns = append(bIns, cShared...)
	bIns = append(bIns, cNonSeq...)

	bOuts := make([]*graph.Variable, 0, len(couts)+len(acc))
	bOuts = append(bOuts, mitMotOuts...)
	bOuts = append(bOuts, acc[:nSeqs]...)
	bOuts = append(bOuts, acc[nonSeqBase:]...)
	// Forward shared updates, and the continuation flag for
	// condition-terminated loops, replay as-is.
	bOuts = append(bOuts, couts[lay.sharedOutOffset:]...)

	name := cfg.Name
	if name == "" {
		name = "scan_fn"
	}
	bCfg := Config{
		NumSequences:     nBwdSeqs,
		Channels:         channels,
		TruncateGradient: cfg.TruncateGradient,
		AsWhile:          cfg.AsWhile,
		Name:             "grad_of_" + name,
	}
	return bCfg, graph.New(bCfg.Name, bIns, bOuts)
}

// Gradient runs the loop forward for nSteps and returns the gradients of a
// scalar cost with respect to every outer input, given the cost's gradients
// with respect to the loop's outputs.
//
// outputGrads holds one entry per loop output in result order (tap-channel
// buffers, NitSot traces, shared finals); nil entries mean zero incoming
// gradient, and entries for shared finals may be omitted or nil since shared
// state is not differentiable. Tap-channel gradients must match the full
// buffer shape; NitSot gradients must cover nSteps rows.
//
// The result has one entry per outer input: the step count (always nil),
// then one gradient per sequence, per initial-state buffer, per shared
// initial value (nil), per trip count (nil), and per non-sequence.
//
// Replaying the trace requires every initial-state buffer to be sized to
// exactly nSteps minus the channel's minimum tap, so the forward run retains
// every intermediate state. When TruncateGradient caps the backward
// iteration count, gradient rows for the truncated early steps are zero.
func (l *Loop) Gradient(nSteps int, args Arguments, outputGrads []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	lay := &l.lay
	if nSteps <= 0 {
		return nil, configErrorf("loop %q: gradient requires a positive number of steps", l.cfg.Name)
	}
	if lay.nMitMot > 0 {
		return nil, configErrorf("loop %q: gradients of gradient loops are not supported", l.cfg.Name)
	}
	if len(outputGrads) != lay.nTracked && len(outputGrads) != lay.nTracked+lay.nShared {
		return nil, configErrorf("loop %q: got %d output gradients, want %d",
			l.cfg.Name, len(outputGrads), lay.nTracked+lay.nShared)
	}
	n := nSteps
	for idx := 0; idx < lay.nTapOuts; idx++ {
		want := n - lay.minTap[idx]
		if idx < len(args.InitialStates) && args.InitialStates[idx].Rows() != want {
			return nil, configErrorf(
				"loop %q: initial state %d has %d rows; gradient replay needs the full trace of %d rows",
				l.cfg.Name, idx, args.InitialStates[idx].Rows(), want)
		}
	}

	fwd, err := l.Invoke(n, args)
	if err != nil {
		return nil, err
	}
	for idx := 0; idx < lay.nTapOuts; idx++ {
		if fwd[idx].Rows() < n-lay.minTap[idx] {
			return nil, configErrorf(
				"loop %q: condition ended the loop early; gradient needs a full %d-step trace",
				l.cfg.Name, n)
		}
	}
	for j := 0; j < lay.nNitSot; j++ {
		if fwd[lay.nTapOuts+j].Rows() < n {
			return nil, configErrorf(
				"loop %q: condition ended the loop early; gradient needs a full %d-step trace",
				l.cfg.Name, n)
		}
	}

	bCfg, bGraph := buildBackwardPlan(l.cfg, lay, l.inner, l.nNonSeq)
	bLoop, err := NewLoop(bCfg, bGraph)
	if err != nil {
		return nil, fmt.Errorf("building gradient loop: %w", err)
	}

	doSteps := n
	if l.cfg.TruncateGradient != -1 && l.cfg.TruncateGradient < n {
		doSteps = l.cfg.TruncateGradient
	}

	var bArgs Arguments

	// Backward sequences: the forward sequences reversed, one aligned
	// reversed trace slice per forward tap, and the reversed incoming
	// NitSot gradients.
	for _, seq := range args.Sequences {
		bArgs.Sequences = append(bArgs.Sequences, seq.SliceRows(0, n).ReverseRows())
	}
	for idx := 0; idx < lay.nTapOuts; idx++ {
		rev := fwd[idx].ReverseRows()
		for _, k := range l.cfg.Channels[idx].Taps {
			// Row j of the slice is the state the forward pass read
			// through tap k at step n-1-j.
			bArgs.Sequences = append(bArgs.Sequences, rev.SliceRows(-k, rev.Rows()))
		}
	}
	for j := 0; j < lay.nNitSot; j++ {
		g := gradAt(outputGrads, lay.nTapOuts+j)
		if g == nil {
			trace := fwd[lay.nTapOuts+j]
			bArgs.Sequences = append(bArgs.Sequences,
				tensor.Zeros(trace.Shape().Tail().Prepend(n), trace.DType()))
			continue
		}
		if g.Rows() < n {
			return nil, &LengthError{What: "nit-sot output gradient", Length: g.Rows(), Required: n}
		}
		bArgs.Sequences = append(bArgs.Sequences, g.SliceRows(0, n).ReverseRows())
	}

	// Backward MitMot rings: seeded with the reversed incoming gradient of
	// each forward state buffer, accumulated in place as the replay walks
	// the taps.
	for idx := 0; idx < lay.nTapOuts; idx++ {
		g := gradAt(outputGrads, idx)
		if g == nil {
			bArgs.InitialStates = append(bArgs.InitialStates, tensor.ZerosLike(fwd[idx]))
			continue
		}
		if g.Rows() != fwd[idx].Rows() {
			return nil, &LengthError{
				What: "state buffer output gradient", Length: g.Rows(), Required: fwd[idx].Rows(),
			}
		}
		bArgs.InitialStates = append(bArgs.InitialStates, g.ReverseRows())
	}

	for _, ns := range args.NonSequences {
		bArgs.SharedInits = append(bArgs.SharedInits, tensor.ZerosLike(ns))
	}
	bArgs.SharedInits = append(bArgs.SharedInits, args.SharedInits...)

	// Sequence-gradient traces always span the full nSteps, so truncated
	// backward runs leave zeros for the steps they skip.
	for s := 0; s < l.cfg.NumSequences; s++ {
		bArgs.TripCounts = append(bArgs.TripCounts, n)
	}
	bArgs.NonSequences = args.NonSequences

	bOuts, err := bLoop.Invoke(doSteps, bArgs)
	if err != nil {
		return nil, fmt.Errorf("running gradient loop: %w", err)
	}

	// Reorder into outer-input order, undoing the time reversal.
	nBwdRings := lay.nTapOuts
	grads := make([]*tensor.RawTensor, 0, 1+l.cfg.NumSequences+lay.nTapOuts+lay.nShared+lay.nNitSot+l.nNonSeq)
	grads = append(grads, nil)
	for s := 0; s < l.cfg.NumSequences; s++ {
		grads = append(grads, bOuts[nBwdRings+s].ReverseRows())
	}
	for idx := 0; idx < lay.nTapOuts; idx++ {
		grads = append(grads, bOuts[idx].ReverseRows())
	}
	for j := 0; j < lay.nShared; j++ {
		grads = append(grads, nil)
	}
	for j := 0; j < lay.nNitSot; j++ {
		grads = append(grads, nil)
	}
	for j := 0; j < l.nNonSeq; j++ {
		grads = append(grads, bOuts[nBwdRings+l.cfg.NumSequences+j])
	}
	return grads, nil
}

// gradAt returns outputGrads[i], tolerating the shorter form that omits
// shared-final entries.
func gradAt(outputGrads []*tensor.RawTensor, i int) *tensor.RawTensor {
	if i >= len(outputGrads) {
		return nil
	}
	return outputGrads[i]
}
