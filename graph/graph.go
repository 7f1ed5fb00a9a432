// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph provides the public API for building the symbolic step
// computations executed by scan loops.
//
// A Graph describes a single iteration: placeholder Variables mark the input
// slots the loop binds each step, and output Variables define what the step
// produces. The scan engine compiles a Graph once and evaluates it per
// iteration; gradient construction differentiates it symbolically.
//
// Example:
//
//	x := graph.Placeholder("x", tensor.Shape{}, tensor.Float32)
//	acc := graph.Placeholder("acc", tensor.Shape{}, tensor.Float32)
//	step := graph.New("cumsum", []*graph.Variable{x, acc},
//		[]*graph.Variable{graph.Add(x, acc)})
package graph

import (
	"github.com/born-ml/scanloop/internal/graph"
	"github.com/born-ml/scanloop/internal/tensor"
)

// Variable is a node in a symbolic computation graph.
type Variable = graph.Variable

// Graph is one step's computation: ordered inputs and outputs.
type Graph = graph.Graph

// Op is a differentiable operation on raw tensors.
type Op = graph.Op

// StepFunc is a compiled graph, callable once per iteration.
type StepFunc = graph.StepFunc

// Placeholder creates an input variable with the given shape and element type.
func Placeholder(name string, shape tensor.Shape, dtype tensor.DataType) *Variable {
	return graph.Placeholder(name, shape, dtype)
}

// New builds a graph from its input and output variables.
func New(name string, inputs, outputs []*Variable) *Graph {
	return graph.New(name, inputs, outputs)
}

// Gradient returns the gradients of output with respect to each wrt entry,
// with outGrad as the incoming gradient. Entries with no gradient path are
// nil.
func Gradient(output, outGrad *Variable, wrt []*Variable) []*Variable {
	return graph.Gradient(output, outGrad, wrt)
}

// EqualComputations reports whether two graphs denote the same computation.
func EqualComputations(a, b *Graph) bool {
	return graph.EqualComputations(a, b)
}

// Add builds element-wise addition.
func Add(a, b *Variable) *Variable { return graph.Add(a, b) }

// Sub builds element-wise subtraction.
func Sub(a, b *Variable) *Variable { return graph.Sub(a, b) }

// Mul builds element-wise multiplication.
func Mul(a, b *Variable) *Variable { return graph.Mul(a, b) }

// Neg builds element-wise negation.
func Neg(a *Variable) *Variable { return graph.Neg(a) }

// Identity builds a variable carrying a's value unchanged.
func Identity(a *Variable) *Variable { return graph.Identity(a) }

// ZerosLike builds a variable holding zeros with a's shape and element type.
func ZerosLike(a *Variable) *Variable { return graph.ZerosLike(a) }

// OnesLike builds a variable holding ones with a's shape and element type.
func OnesLike(a *Variable) *Variable { return graph.OnesLike(a) }

// Const builds a variable holding a fixed tensor value.
func Const(value *tensor.RawTensor) *Variable { return graph.Const(value) }

// LessEqual builds an element-wise comparison against a threshold, producing
// a bool tensor. Scan while-loops use a scalar comparison as their
// continuation flag.
func LessEqual(a *Variable, threshold float64) *Variable {
	return graph.LessEqual(a, threshold)
}
