package graph

import (
	"fmt"

	"github.com/born-ml/scanloop/internal/tensor"
)

// StepFunc is a compiled inner step computation. It receives one raw tensor
// per input slot and returns one per output slot, in declared order.
type StepFunc func(inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error)

// Graph is a symbolic computation with ordered input and output slots.
type Graph struct {
	name    string
	inputs  []*Variable
	outputs []*Variable
}

// New creates a graph from ordered input placeholders and output variables.
func New(name string, inputs, outputs []*Variable) *Graph {
	return &Graph{name: name, inputs: inputs, outputs: outputs}
}

// Name returns the graph's name.
func (g *Graph) Name() string {
	return g.name
}

// Inputs returns the ordered input placeholders.
func (g *Graph) Inputs() []*Variable {
	return g.inputs
}

// Outputs returns the ordered output variables.
func (g *Graph) Outputs() []*Variable {
	return g.outputs
}

// topoSort returns the variables reachable from roots in evaluation order.
func topoSort(roots []*Variable) []*Variable {
	var order []*Variable
	seen := make(map[*Variable]bool)
	var visit func(v *Variable)
	visit = func(v *Variable) {
		if seen[v] {
			return
		}
		seen[v] = true
		for _, arg := range v.args {
			visit(arg)
		}
		order = append(order, v)
	}
	for _, r := range roots {
		visit(r)
	}
	return order
}

// Compile validates the graph and returns a StepFunc evaluating it.
// Every placeholder reachable from the outputs must be a declared input.
func (g *Graph) Compile() (StepFunc, error) {
	order := topoSort(g.outputs)

	inputSlot := make(map[*Variable]int, len(g.inputs))
	for i, in := range g.inputs {
		if !in.IsPlaceholder() {
			return nil, fmt.Errorf("graph %q: input slot %d is not a placeholder", g.name, i)
		}
		inputSlot[in] = i
	}
	for _, v := range order {
		if v.IsPlaceholder() {
			if _, ok := inputSlot[v]; !ok {
				return nil, fmt.Errorf("graph %q: output depends on undeclared placeholder %q",
					g.name, v.name)
			}
		}
	}

	return func(inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if len(inputs) != len(g.inputs) {
			return nil, fmt.Errorf("graph %q: got %d inputs, want %d",
				g.name, len(inputs), len(g.inputs))
		}
		env := make(map[*Variable]*tensor.RawTensor, len(order))
		for i, in := range g.inputs {
			if inputs[i] == nil {
				return nil, fmt.Errorf("graph %q: input slot %d is nil", g.name, i)
			}
			if inputs[i].DType() != in.dtype {
				return nil, fmt.Errorf("graph %q: input slot %d has dtype %s, want %s",
					g.name, i, inputs[i].DType(), in.dtype)
			}
			env[in] = inputs[i]
		}
		for _, v := range order {
			if v.IsPlaceholder() {
				continue
			}
			args := make([]*tensor.RawTensor, len(v.args))
			for j, a := range v.args {
				args[j] = env[a]
			}
			out, err := v.op.Eval(args)
			if err != nil {
				return nil, fmt.Errorf("graph %q: evaluating %s: %w", g.name, v.op.Name(), err)
			}
			env[v] = out
		}
		outs := make([]*tensor.RawTensor, len(g.outputs))
		for i, o := range g.outputs {
			outs[i] = env[o]
		}
		return outs, nil
	}, nil
}
