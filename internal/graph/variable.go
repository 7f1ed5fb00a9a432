// Package graph implements the symbolic inner computation graphs executed by
// the scan engine.
//
// A Graph describes one step of a loop: ordered input slots, ordered output
// slots, and the operations connecting them. The scan executor compiles a
// Graph into a StepFunc and calls it once per iteration; the gradient
// constructor clones a Graph and differentiates it symbolically.
//
// Each operation implements the Op interface, providing:
//   - Eval: the forward computation on raw tensors
//   - Grad: the symbolic vector-Jacobian product for each argument
package graph

import (
	"github.com/born-ml/scanloop/internal/tensor"
)

// Variable is a node in a symbolic computation graph. A Variable is either a
// placeholder (op == nil), bound to an input slot at execution time, or the
// result of applying an Op to argument Variables.
//
// Variable identity is pointer identity: two structurally identical nodes are
// still distinct variables. Clone relies on this to produce fresh identities.
type Variable struct {
	name  string
	shape tensor.Shape
	dtype tensor.DataType
	op    Op
	args  []*Variable
}

// Placeholder creates an input variable with the given shape and dtype.
func Placeholder(name string, shape tensor.Shape, dtype tensor.DataType) *Variable {
	return &Variable{name: name, shape: shape.Clone(), dtype: dtype}
}

// apply creates a variable for the result of op over args.
func apply(op Op, shape tensor.Shape, dtype tensor.DataType, args ...*Variable) *Variable {
	return &Variable{
		name:  op.Name(),
		shape: shape.Clone(),
		dtype: dtype,
		op:    op,
		args:  args,
	}
}

// Name returns the variable's name.
func (v *Variable) Name() string {
	return v.name
}

// WithName sets the variable's name and returns it, for fluent graph building.
func (v *Variable) WithName(name string) *Variable {
	v.name = name
	return v
}

// Shape returns the variable's static shape.
func (v *Variable) Shape() tensor.Shape {
	return v.shape
}

// DType returns the variable's element type.
func (v *Variable) DType() tensor.DataType {
	return v.dtype
}

// IsPlaceholder reports whether the variable is an input slot.
func (v *Variable) IsPlaceholder() bool {
	return v.op == nil
}

// Op returns the operation producing this variable, or nil for placeholders.
func (v *Variable) Op() Op {
	return v.op
}

// Args returns the argument variables of the producing operation.
func (v *Variable) Args() []*Variable {
	return v.args
}
