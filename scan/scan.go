// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package scan provides the public API for the differentiable loop
// combinator.
//
// A Loop binds a Config, which declares how state flows between iterations,
// to an inner graph computing one step. Invoke runs the loop over raw
// tensors; Gradient builds and runs a second loop that backpropagates
// through the whole iteration.
//
// State flows through channels of five kinds:
//
//   - MitMot: multiple taps in, multiple slices out (gradient-internal)
//   - MitSot: multiple past taps in, one value out
//   - SitSot: the previous value in, one value out
//   - NitSot: nothing in, one value out per step
//   - Shared: whole-value state replaced every step
//
// Example:
//
//	x := graph.Placeholder("x", tensor.Shape{}, tensor.Float32)
//	acc := graph.Placeholder("acc", tensor.Shape{}, tensor.Float32)
//	step := graph.New("cumsum", []*graph.Variable{x, acc},
//		[]*graph.Variable{graph.Add(x, acc)})
//
//	loop, _ := scan.NewLoop(scan.Config{
//		NumSequences:     1,
//		Channels:         []scan.ChannelSpec{{Kind: scan.SitSot, Taps: []int{-1}}},
//		TruncateGradient: scan.NoTruncation,
//	}, step)
//
//	outs, _ := loop.Invoke(4, scan.Arguments{
//		Sequences:     []*tensor.RawTensor{seq},
//		InitialStates: []*tensor.RawTensor{states},
//	})
package scan

import (
	"github.com/born-ml/scanloop/internal/graph"
	"github.com/born-ml/scanloop/internal/scan"
)

// NoTruncation disables gradient truncation: backpropagation runs through
// every step.
const NoTruncation = -1

// ChannelKind identifies how a loop output reads and writes history.
type ChannelKind = scan.ChannelKind

// Channel kinds in canonical declaration order.
const (
	MitMot ChannelKind = scan.MitMot
	MitSot ChannelKind = scan.MitSot
	SitSot ChannelKind = scan.SitSot
	NitSot ChannelKind = scan.NitSot
	Shared ChannelKind = scan.Shared
)

// ChannelSpec describes one loop output channel.
type ChannelSpec = scan.ChannelSpec

// Config is the immutable description of a loop's channel structure.
type Config = scan.Config

// Loop is a validated configuration bound to a compiled inner graph.
type Loop = scan.Loop

// Arguments carries the inputs of one loop invocation.
type Arguments = scan.Arguments

// NewLoop validates the configuration against the inner graph and compiles
// the step function.
func NewLoop(cfg Config, inner *graph.Graph) (*Loop, error) {
	return scan.NewLoop(cfg, inner)
}

// ConfigError reports an inconsistent loop configuration.
type ConfigError = scan.ConfigError

// TypeMismatchError reports an element-type disagreement between a supplied
// value and the slot it feeds.
type TypeMismatchError = scan.TypeMismatchError

// LengthError reports a sequence or trip count shorter than the requested
// number of steps.
type LengthError = scan.LengthError

// StepError wraps a failure inside a single step invocation.
type StepError = scan.StepError
