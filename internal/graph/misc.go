package graph

import (
	"fmt"

	"github.com/born-ml/scanloop/internal/tensor"
)

type identityOp struct{}

func (identityOp) Name() string { return "identity" }

func (identityOp) Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return args[0].Clone(), nil
}

func (identityOp) Grad(args []*Variable, outGrad *Variable) []*Variable {
	return []*Variable{outGrad}
}

// Identity builds a fresh variable carrying a's value unchanged. Useful for
// declaring a loop output that is a verbatim copy of an input slot.
func Identity(a *Variable) *Variable {
	return apply(identityOp{}, a.shape, a.dtype, a)
}

type zerosLikeOp struct{}

func (zerosLikeOp) Name() string { return "zeros_like" }

func (zerosLikeOp) Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return tensor.ZerosLike(args[0]), nil
}

func (zerosLikeOp) Grad(args []*Variable, outGrad *Variable) []*Variable {
	return []*Variable{nil}
}

// ZerosLike builds a variable holding zeros with a's shape and dtype.
// The gradient constructor uses it to materialize "no gradient" as zeros.
func ZerosLike(a *Variable) *Variable {
	return apply(zerosLikeOp{}, a.shape, a.dtype, a)
}

type onesLikeOp struct{}

func (onesLikeOp) Name() string { return "ones_like" }

func (onesLikeOp) Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error) {
	a := args[0]
	out, err := tensor.NewRaw(a.Shape(), a.DType())
	if err != nil {
		return nil, fmt.Errorf("ones_like: %w", err)
	}
	switch a.DType() {
	case tensor.Float32:
		z := out.AsFloat32()
		for i := range z {
			z[i] = 1
		}
	case tensor.Float64:
		z := out.AsFloat64()
		for i := range z {
			z[i] = 1
		}
	default:
		return nil, fmt.Errorf("ones_like: unsupported dtype %s", a.DType())
	}
	return out, nil
}

func (onesLikeOp) Grad(args []*Variable, outGrad *Variable) []*Variable {
	return []*Variable{nil}
}

// OnesLike builds a variable holding ones with a's shape and dtype.
func OnesLike(a *Variable) *Variable {
	return apply(onesLikeOp{}, a.shape, a.dtype, a)
}

type constOp struct {
	value *tensor.RawTensor
}

func (constOp) Name() string { return "const" }

func (op constOp) Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return op.value.Clone(), nil
}

func (constOp) Grad(args []*Variable, outGrad *Variable) []*Variable {
	return nil
}

// Const builds a variable holding a fixed tensor value.
func Const(value *tensor.RawTensor) *Variable {
	return apply(constOp{value: value}, value.Shape(), value.DType())
}

type lessEqualOp struct {
	threshold float64
}

func (lessEqualOp) Name() string { return "less_equal" }

func (op lessEqualOp) Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error) {
	a := args[0]
	out, err := tensor.NewRaw(a.Shape(), tensor.Bool)
	if err != nil {
		return nil, fmt.Errorf("less_equal: %w", err)
	}
	z := out.AsBool()
	switch a.DType() {
	case tensor.Float32:
		x := a.AsFloat32()
		for i := range z {
			z[i] = float64(x[i]) <= op.threshold
		}
	case tensor.Float64:
		x := a.AsFloat64()
		for i := range z {
			z[i] = x[i] <= op.threshold
		}
	case tensor.Int64:
		x := a.AsInt64()
		for i := range z {
			z[i] = float64(x[i]) <= op.threshold
		}
	default:
		return nil, fmt.Errorf("less_equal: unsupported dtype %s", a.DType())
	}
	return out, nil
}

func (lessEqualOp) Grad(args []*Variable, outGrad *Variable) []*Variable {
	// Comparison results carry no gradient.
	return []*Variable{nil}
}

// LessEqual builds the element-wise boolean a <= threshold. Scalar results
// serve as loop continuation conditions.
func LessEqual(a *Variable, threshold float64) *Variable {
	return apply(lessEqualOp{threshold: threshold}, a.shape, tensor.Bool, a)
}
