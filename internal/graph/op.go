package graph

import (
	"github.com/born-ml/scanloop/internal/tensor"
)

// Op represents a differentiable symbolic operation.
type Op interface {
	// Name returns the operation's name, used for structural graph
	// comparison and debugging.
	Name() string

	// Eval computes the operation's result from evaluated arguments.
	Eval(args []*tensor.RawTensor) (*tensor.RawTensor, error)

	// Grad returns the symbolic gradient contribution for each argument
	// given the gradient flowing into the operation's output. A nil entry
	// means no gradient path through that argument.
	Grad(args []*Variable, outGrad *Variable) []*Variable
}
