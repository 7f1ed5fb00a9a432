package graph

import (
	"fmt"

	"github.com/born-ml/scanloop/internal/tensor"
)

// evalBinary applies f element-wise over two tensors of identical shape and
// floating-point dtype.
func evalBinary(name string, a, b *tensor.RawTensor, f32 func(x, y float32) float32, f64 func(x, y float64) float64) (*tensor.RawTensor, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("%s: dtype mismatch: %s vs %s", name, a.DType(), b.DType())
	}
	if !a.Shape().Equal(b.Shape()) {
		return nil, fmt.Errorf("%s: shape mismatch: %v vs %v", name, a.Shape(), b.Shape())
	}
	out, err := tensor.NewRaw(a.Shape(), a.DType())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	switch a.DType() {
	case tensor.Float32:
		x, y, z := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
		for i := range z {
			z[i] = f32(x[i], y[i])
		}
	case tensor.Float64:
		x, y, z := a.AsFloat64(), b.AsFloat64(), out.AsFloat64()
		for i := range z {
			z[i] = f64(x[i], y[i])
		}
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %s", name, a.DType())
	}
	return out, nil
}

// checkBinaryArgs panics when a binary builder is misused; graph construction
// errors are programmer errors, not runtime conditions.
func checkBinaryArgs(name string, a, b *Variable) {
	if a.dtype != b.dtype {
		panic(fmt.Sprintf("%s: dtype mismatch: %s vs %s", name, a.dtype, b.dtype))
	}
	if !a.shape.Equal(b.shape) {
		panic(fmt.Sprintf("%s: shape mismatch: %v vs %v", name, a.shape, b.shape))
	}
}

type addOp struct{}

func (addOp) Name() string { return "add" }

func (addOp) Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return evalBinary("add", args[0], args[1],
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

func (addOp) Grad(args []*Variable, outGrad *Variable) []*Variable {
	return []*Variable{outGrad, outGrad}
}

// Add builds the element-wise sum of a and b.
func Add(a, b *Variable) *Variable {
	checkBinaryArgs("add", a, b)
	return apply(addOp{}, a.shape, a.dtype, a, b)
}

type subOp struct{}

func (subOp) Name() string { return "sub" }

func (subOp) Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return evalBinary("sub", args[0], args[1],
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

func (subOp) Grad(args []*Variable, outGrad *Variable) []*Variable {
	return []*Variable{outGrad, Neg(outGrad)}
}

// Sub builds the element-wise difference of a and b.
func Sub(a, b *Variable) *Variable {
	checkBinaryArgs("sub", a, b)
	return apply(subOp{}, a.shape, a.dtype, a, b)
}

type mulOp struct{}

func (mulOp) Name() string { return "mul" }

func (mulOp) Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return evalBinary("mul", args[0], args[1],
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

func (mulOp) Grad(args []*Variable, outGrad *Variable) []*Variable {
	// d(a*b)/da = b, d(a*b)/db = a
	return []*Variable{Mul(args[1], outGrad), Mul(args[0], outGrad)}
}

// Mul builds the element-wise product of a and b.
func Mul(a, b *Variable) *Variable {
	checkBinaryArgs("mul", a, b)
	return apply(mulOp{}, a.shape, a.dtype, a, b)
}

type negOp struct{}

func (negOp) Name() string { return "neg" }

func (negOp) Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error) {
	a := args[0]
	out, err := tensor.NewRaw(a.Shape(), a.DType())
	if err != nil {
		return nil, fmt.Errorf("neg: %w", err)
	}
	switch a.DType() {
	case tensor.Float32:
		x, z := a.AsFloat32(), out.AsFloat32()
		for i := range z {
			z[i] = -x[i]
		}
	case tensor.Float64:
		x, z := a.AsFloat64(), out.AsFloat64()
		for i := range z {
			z[i] = -x[i]
		}
	default:
		return nil, fmt.Errorf("neg: unsupported dtype %s", a.DType())
	}
	return out, nil
}

func (negOp) Grad(args []*Variable, outGrad *Variable) []*Variable {
	return []*Variable{Neg(outGrad)}
}

// Neg builds the element-wise negation of a.
func Neg(a *Variable) *Variable {
	return apply(negOp{}, a.shape, a.dtype, a)
}
