package scan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/scanloop/internal/graph"
	"github.com/born-ml/scanloop/internal/tensor"
)

func f32Vec(t *testing.T, vals ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(vals, tensor.Shape{len(vals)})
	require.NoError(t, err)
	return r
}

// cumSumLoop accumulates a scalar sequence through a sit-sot channel:
// acc[t] = x[t] + acc[t-1].
func cumSumLoop(t *testing.T, cfg Config) *Loop {
	t.Helper()
	x := graph.Placeholder("x", tensor.Shape{}, tensor.Float32)
	prev := graph.Placeholder("acc", tensor.Shape{}, tensor.Float32)
	out := graph.Add(x, prev)
	g := graph.New("cumsum", []*graph.Variable{x, prev}, []*graph.Variable{out})

	cfg.NumSequences = 1
	cfg.Channels = []ChannelSpec{{Kind: SitSot, Taps: []int{-1}}}
	if cfg.TruncateGradient == 0 {
		cfg.TruncateGradient = -1
	}
	loop, err := NewLoop(cfg, g)
	require.NoError(t, err)
	return loop
}

func TestInvokeCumulativeSum(t *testing.T) {
	loop := cumSumLoop(t, Config{Name: "cumsum"})

	outs, err := loop.Invoke(4, Arguments{
		Sequences:     []*tensor.RawTensor{f32Vec(t, 1, 2, 3, 4)},
		InitialStates: []*tensor.RawTensor{tensor.Zeros(tensor.Shape{5}, tensor.Float32)},
	})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, []float32{0, 1, 3, 6, 10}, outs[0].AsFloat32())
}

func TestInvokeKeepsOnlyRequestedHistory(t *testing.T) {
	loop := cumSumLoop(t, Config{})

	// A single-row state buffer retains just the final value.
	outs, err := loop.Invoke(4, Arguments{
		Sequences:     []*tensor.RawTensor{f32Vec(t, 1, 2, 3, 4)},
		InitialStates: []*tensor.RawTensor{f32Vec(t, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{10}, outs[0].AsFloat32())
}

func TestInvokeRingRotation(t *testing.T) {
	loop := cumSumLoop(t, Config{})

	// Three retained rows out of five states: the wrapped ring must come
	// back in chronological order.
	outs, err := loop.Invoke(4, Arguments{
		Sequences:     []*tensor.RawTensor{f32Vec(t, 1, 2, 3, 4)},
		InitialStates: []*tensor.RawTensor{f32Vec(t, 0, 0, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 6, 10}, outs[0].AsFloat32())
}

func TestInvokeMultiTapFibonacci(t *testing.T) {
	a := graph.Placeholder("a", tensor.Shape{}, tensor.Float32)
	b := graph.Placeholder("b", tensor.Shape{}, tensor.Float32)
	g := graph.New("fib", []*graph.Variable{a, b}, []*graph.Variable{graph.Add(a, b)})

	loop, err := NewLoop(Config{
		Channels:         []ChannelSpec{{Kind: MitSot, Taps: []int{-2, -1}}},
		TruncateGradient: -1,
	}, g)
	require.NoError(t, err)

	init := f32Vec(t, 1, 1, 0, 0, 0, 0, 0)
	outs, err := loop.Invoke(5, Arguments{InitialStates: []*tensor.RawTensor{init}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 2, 3, 5, 8, 13}, outs[0].AsFloat32())
}

func TestInvokeNitSotLazySizing(t *testing.T) {
	x := graph.Placeholder("x", tensor.Shape{2}, tensor.Float32)
	g := graph.New("square", []*graph.Variable{x}, []*graph.Variable{graph.Mul(x, x)})

	loop, err := NewLoop(Config{
		NumSequences:     1,
		Channels:         []ChannelSpec{{Kind: NitSot}},
		TruncateGradient: -1,
	}, g)
	require.NoError(t, err)

	seq, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})
	require.NoError(t, err)

	outs, err := loop.Invoke(3, Arguments{
		Sequences:  []*tensor.RawTensor{seq},
		TripCounts: []int{5},
	})
	require.NoError(t, err)
	require.True(t, outs[0].Shape().Equal(tensor.Shape{5, 2}))
	assert.Equal(t, []float32{1, 4, 9, 16, 25, 36, 0, 0, 0, 0}, outs[0].AsFloat32())
}

func TestInvokeSharedAccumulation(t *testing.T) {
	s := graph.Placeholder("s", tensor.Shape{}, tensor.Float32)
	c := graph.Placeholder("c", tensor.Shape{}, tensor.Float32)
	g := graph.New("tally", []*graph.Variable{s, c}, []*graph.Variable{graph.Add(s, c)})

	loop, err := NewLoop(Config{
		Channels:         []ChannelSpec{{Kind: Shared}},
		TruncateGradient: -1,
	}, g)
	require.NoError(t, err)

	outs, err := loop.Invoke(3, Arguments{
		SharedInits:  []*tensor.RawTensor{tensor.Scalar(float32(0))},
		NonSequences: []*tensor.RawTensor{tensor.Scalar(float32(2))},
	})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, []float32{6}, outs[0].AsFloat32())
}

func TestInvokeWhileTermination(t *testing.T) {
	prev := graph.Placeholder("c", tensor.Shape{}, tensor.Float32)
	next := graph.Add(prev, graph.Const(tensor.Scalar(float32(1))))
	cond := graph.LessEqual(next, 3)
	g := graph.New("count", []*graph.Variable{prev}, []*graph.Variable{next, cond})

	loop, err := NewLoop(Config{
		Channels:         []ChannelSpec{{Kind: SitSot, Taps: []int{-1}}},
		TruncateGradient: -1,
		AsWhile:          true,
	}, g)
	require.NoError(t, err)

	// The counter passes 3 after four steps, far short of the requested
	// hundred; the buffer is trimmed to the executed prefix.
	outs, err := loop.Invoke(100, Arguments{
		InitialStates: []*tensor.RawTensor{tensor.Zeros(tensor.Shape{101}, tensor.Float32)},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2, 3, 4}, outs[0].AsFloat32())
}

func TestInvokeDeterministic(t *testing.T) {
	loop := cumSumLoop(t, Config{})

	run := func() []float32 {
		outs, err := loop.Invoke(4, Arguments{
			Sequences:     []*tensor.RawTensor{f32Vec(t, 1, 2, 3, 4)},
			InitialStates: []*tensor.RawTensor{tensor.Zeros(tensor.Shape{5}, tensor.Float32)},
		})
		require.NoError(t, err)
		return outs[0].AsFloat32()
	}
	assert.Equal(t, run(), run())
}

func TestInvokeWhileZeroFillsTail(t *testing.T) {
	prev := graph.Placeholder("c", tensor.Shape{}, tensor.Float32)
	next := graph.Add(prev, graph.Const(tensor.Scalar(float32(1))))
	cond := graph.LessEqual(next, 3)
	g := graph.New("count", []*graph.Variable{prev}, []*graph.Variable{next, cond})

	loop, err := NewLoop(Config{
		Channels:         []ChannelSpec{{Kind: SitSot, Taps: []int{-1}}},
		TruncateGradient: -1,
		AsWhile:          true,
	}, g)
	require.NoError(t, err)

	// With a buffer shorter than the requested steps the unexecuted rows
	// are zeroed but the buffer cannot be trimmed to the executed prefix.
	outs, err := loop.Invoke(100, Arguments{
		InitialStates: []*tensor.RawTensor{tensor.Zeros(tensor.Shape{10}, tensor.Float32)},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 0, 0, 0, 0, 0}, outs[0].AsFloat32())
}

func TestInvokeReversedMirrorsSequences(t *testing.T) {
	x := graph.Placeholder("x", tensor.Shape{}, tensor.Float32)
	g := graph.New("echo", []*graph.Variable{x}, []*graph.Variable{graph.Identity(x)})

	loop, err := NewLoop(Config{
		NumSequences:     1,
		Channels:         []ChannelSpec{{Kind: NitSot}},
		TruncateGradient: -1,
	}, g)
	require.NoError(t, err)

	outs, err := loop.Invoke(-3, Arguments{
		Sequences:  []*tensor.RawTensor{f32Vec(t, 0, 1, 2, 3, 4)},
		TripCounts: []int{3},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 3, 2}, outs[0].AsFloat32())
}

func TestInvokeSequenceTooShort(t *testing.T) {
	loop := cumSumLoop(t, Config{})

	_, err := loop.Invoke(3, Arguments{
		Sequences:     []*tensor.RawTensor{f32Vec(t, 1, 2)},
		InitialStates: []*tensor.RawTensor{f32Vec(t, 0)},
	})
	var lerr *LengthError
	require.Error(t, err)
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 2, lerr.Length)
	assert.Equal(t, 3, lerr.Required)
}

func TestInvokeSequenceDtypeMismatch(t *testing.T) {
	loop := cumSumLoop(t, Config{})

	seq, err := tensor.FromSlice([]float64{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)
	_, err = loop.Invoke(3, Arguments{
		Sequences:     []*tensor.RawTensor{seq},
		InitialStates: []*tensor.RawTensor{f32Vec(t, 0)},
	})
	var terr *TypeMismatchError
	require.ErrorAs(t, err, &terr)
}

func TestInvokeZeroStepsRejected(t *testing.T) {
	loop := cumSumLoop(t, Config{})
	_, err := loop.Invoke(0, Arguments{})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestInvokeStepFailureCarriesIndex(t *testing.T) {
	x := graph.Placeholder("x", tensor.Shape{}, tensor.Int64)
	// ones_like has no integer kernel, so the first step fails.
	g := graph.New("bad", []*graph.Variable{x}, []*graph.Variable{graph.OnesLike(x)})

	loop, err := NewLoop(Config{
		NumSequences:     1,
		Channels:         []ChannelSpec{{Kind: NitSot}},
		TruncateGradient: -1,
	}, g)
	require.NoError(t, err)

	seq, err := tensor.FromSlice([]int64{7, 8}, tensor.Shape{2})
	require.NoError(t, err)
	_, err = loop.Invoke(2, Arguments{
		Sequences:  []*tensor.RawTensor{seq},
		TripCounts: []int{2},
	})
	var serr *StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 0, serr.Step)
	assert.NotNil(t, errors.Unwrap(serr))
}

func TestInvokeReuseInputStorage(t *testing.T) {
	loop := cumSumLoop(t, Config{ReuseInputStorage: true})

	init := tensor.Zeros(tensor.Shape{5}, tensor.Float32)
	outs, err := loop.Invoke(4, Arguments{
		Sequences:     []*tensor.RawTensor{f32Vec(t, 1, 2, 3, 4)},
		InitialStates: []*tensor.RawTensor{init},
	})
	require.NoError(t, err)
	assert.Same(t, init, outs[0])
	assert.Equal(t, []float32{0, 1, 3, 6, 10}, init.AsFloat32())
}

func TestInvokeRecyclesOutputStorage(t *testing.T) {
	loop := cumSumLoop(t, Config{})

	storage := tensor.Zeros(tensor.Shape{8}, tensor.Float32)
	outs, err := loop.Invoke(4, Arguments{
		Sequences:     []*tensor.RawTensor{f32Vec(t, 1, 2, 3, 4)},
		InitialStates: []*tensor.RawTensor{tensor.Zeros(tensor.Shape{5}, tensor.Float32)},
		OutputStorage: []*tensor.RawTensor{storage},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 3, 6, 10}, outs[0].AsFloat32())
	assert.Same(t, &storage.Data()[0], &outs[0].Data()[0])
}

func TestNewLoopRejectsOutputCountMismatch(t *testing.T) {
	x := graph.Placeholder("x", tensor.Shape{}, tensor.Float32)
	g := graph.New("two", []*graph.Variable{x},
		[]*graph.Variable{graph.Identity(x), graph.Identity(x)})

	_, err := NewLoop(Config{
		NumSequences:     1,
		Channels:         []ChannelSpec{{Kind: NitSot}},
		TruncateGradient: -1,
	}, g)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestNewLoopRejectsNonBoolCondition(t *testing.T) {
	prev := graph.Placeholder("c", tensor.Shape{}, tensor.Float32)
	next := graph.Add(prev, graph.Const(tensor.Scalar(float32(1))))
	g := graph.New("count", []*graph.Variable{prev},
		[]*graph.Variable{next, graph.Identity(next)})

	_, err := NewLoop(Config{
		Channels:         []ChannelSpec{{Kind: SitSot, Taps: []int{-1}}},
		TruncateGradient: -1,
		AsWhile:          true,
	}, g)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoopEqual(t *testing.T) {
	a := cumSumLoop(t, Config{Name: "a"})
	b := cumSumLoop(t, Config{Name: "b"})
	assert.True(t, a.Equal(b))

	x := graph.Placeholder("x", tensor.Shape{}, tensor.Float32)
	prev := graph.Placeholder("acc", tensor.Shape{}, tensor.Float32)
	g := graph.New("cumprod", []*graph.Variable{x, prev},
		[]*graph.Variable{graph.Mul(x, prev)})
	c, err := NewLoop(Config{
		NumSequences:     1,
		Channels:         []ChannelSpec{{Kind: SitSot, Taps: []int{-1}}},
		TruncateGradient: -1,
	}, g)
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}
