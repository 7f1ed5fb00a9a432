package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/scanloop/internal/tensor"
)

func TestCompileAndEval(t *testing.T) {
	x := Placeholder("x", tensor.Shape{3}, tensor.Float64)
	y := Placeholder("y", tensor.Shape{3}, tensor.Float64)
	out := Add(Mul(x, y), x)

	g := New("f", []*Variable{x, y}, []*Variable{out})
	step, err := g.Compile()
	require.NoError(t, err)

	xv, err := tensor.FromSlice([]float64{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)
	yv, err := tensor.FromSlice([]float64{4, 5, 6}, tensor.Shape{3})
	require.NoError(t, err)

	outs, err := step([]*tensor.RawTensor{xv, yv})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, []float64{5, 12, 21}, outs[0].AsFloat64())
}

func TestCompileRejectsUndeclaredPlaceholder(t *testing.T) {
	x := Placeholder("x", tensor.Shape{2}, tensor.Float32)
	hidden := Placeholder("hidden", tensor.Shape{2}, tensor.Float32)
	out := Add(x, hidden)

	g := New("f", []*Variable{x}, []*Variable{out})
	_, err := g.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared placeholder")
}

func TestStepFuncChecksInputDtype(t *testing.T) {
	x := Placeholder("x", tensor.Shape{2}, tensor.Float32)
	g := New("f", []*Variable{x}, []*Variable{Identity(x)})
	step, err := g.Compile()
	require.NoError(t, err)

	wrong := tensor.Zeros(tensor.Shape{2}, tensor.Float64)
	_, err = step([]*tensor.RawTensor{wrong})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dtype")
}

func TestCloneFreshIdentities(t *testing.T) {
	x := Placeholder("x", tensor.Shape{2}, tensor.Float32)
	out := Mul(x, x)
	g := New("f", []*Variable{x}, []*Variable{out})

	clone := g.Clone("_grad")
	require.Len(t, clone.Inputs(), 1)
	require.Len(t, clone.Outputs(), 1)

	assert.NotSame(t, g.Inputs()[0], clone.Inputs()[0])
	assert.NotSame(t, g.Outputs()[0], clone.Outputs()[0])
	assert.Equal(t, "x_grad", clone.Inputs()[0].Name())

	// Same computation, distinct variables.
	assert.True(t, EqualComputations(g, clone))
}

func TestCloneKeepsSharing(t *testing.T) {
	x := Placeholder("x", tensor.Shape{2}, tensor.Float32)
	sq := Mul(x, x)
	g := New("f", []*Variable{x}, []*Variable{Add(sq, sq)})

	clone := g.Clone("_c")
	top := clone.Outputs()[0]
	require.Len(t, top.Args(), 2)
	assert.Same(t, top.Args()[0], top.Args()[1], "shared subexpression must stay shared")
}

func TestEqualComputationsDistinguishesStructure(t *testing.T) {
	build := func(op func(a, b *Variable) *Variable) *Graph {
		a := Placeholder("a", tensor.Shape{2}, tensor.Float32)
		b := Placeholder("b", tensor.Shape{2}, tensor.Float32)
		return New("f", []*Variable{a, b}, []*Variable{op(a, b)})
	}
	assert.True(t, EqualComputations(build(Add), build(Add)))
	assert.False(t, EqualComputations(build(Add), build(Mul)))

	// Swapped argument order is a different computation.
	a := Placeholder("a", tensor.Shape{2}, tensor.Float32)
	b := Placeholder("b", tensor.Shape{2}, tensor.Float32)
	g1 := New("f", []*Variable{a, b}, []*Variable{Sub(a, b)})
	a2 := Placeholder("a", tensor.Shape{2}, tensor.Float32)
	b2 := Placeholder("b", tensor.Shape{2}, tensor.Float32)
	g2 := New("f", []*Variable{a2, b2}, []*Variable{Sub(b2, a2)})
	assert.False(t, EqualComputations(g1, g2))
}

// evalGrads compiles a throwaway graph around symbolic gradients and runs it.
func evalGrads(t *testing.T, inputs []*Variable, grads []*Variable, values []*tensor.RawTensor) []*tensor.RawTensor {
	t.Helper()
	outs := make([]*Variable, 0, len(grads))
	for _, g := range grads {
		require.NotNil(t, g)
		outs = append(outs, g)
	}
	g := New("grads", inputs, outs)
	step, err := g.Compile()
	require.NoError(t, err)
	res, err := step(values)
	require.NoError(t, err)
	return res
}

func TestGradientSumOfPaths(t *testing.T) {
	// out = x*w + w*w, so dout/dw = x + 2w, dout/dx = w.
	x := Placeholder("x", tensor.Shape{2}, tensor.Float64)
	w := Placeholder("w", tensor.Shape{2}, tensor.Float64)
	out := Add(Mul(x, w), Mul(w, w))

	gOut := OnesLike(out)
	grads := Gradient(out, gOut, []*Variable{x, w})
	require.Len(t, grads, 2)

	xv, _ := tensor.FromSlice([]float64{3, 5}, tensor.Shape{2})
	wv, _ := tensor.FromSlice([]float64{2, 7}, tensor.Shape{2})
	res := evalGrads(t, []*Variable{x, w}, grads, []*tensor.RawTensor{xv, wv})

	assert.Equal(t, []float64{2, 7}, res[0].AsFloat64(), "dout/dx = w")
	assert.Equal(t, []float64{7, 19}, res[1].AsFloat64(), "dout/dw = x + 2w")
}

func TestGradientNoPathIsNil(t *testing.T) {
	x := Placeholder("x", tensor.Shape{2}, tensor.Float32)
	y := Placeholder("y", tensor.Shape{2}, tensor.Float32)
	out := Identity(x)

	grads := Gradient(out, OnesLike(out), []*Variable{x, y})
	assert.NotNil(t, grads[0])
	assert.Nil(t, grads[1], "y does not feed the output")
}

func TestGradientThroughComparisonIsNil(t *testing.T) {
	x := Placeholder("x", tensor.Shape{}, tensor.Float64)
	cond := LessEqual(x, 3)
	grads := Gradient(cond, OnesLike(cond), []*Variable{x})
	assert.Nil(t, grads[0])
}

func TestLessEqualEval(t *testing.T) {
	x := Placeholder("x", tensor.Shape{}, tensor.Float64)
	g := New("cond", []*Variable{x}, []*Variable{LessEqual(x, 3)})
	step, err := g.Compile()
	require.NoError(t, err)

	lo := tensor.Scalar(2.0)
	outs, err := step([]*tensor.RawTensor{lo})
	require.NoError(t, err)
	assert.True(t, outs[0].AsBool()[0])

	hi := tensor.Scalar(4.0)
	outs, err = step([]*tensor.RawTensor{hi})
	require.NoError(t, err)
	assert.False(t, outs[0].AsBool()[0])
}
