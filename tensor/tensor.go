// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the raw tensors threaded
// through scan loops.
//
// A RawTensor is a dense, contiguous, row-major value with a dynamic element
// type. Loop state buffers, sequences, and step results are all RawTensors;
// the leading axis indexes time wherever a tensor carries per-step data.
//
// Example:
//
//	seq, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{4})
//	states := tensor.Zeros(tensor.Shape{5}, tensor.Float32)
package tensor

import (
	"github.com/born-ml/scanloop/internal/tensor"
)

// DType is a constraint for tensor element types.
// Supported types: float32, float64, int64, bool.
type DType = tensor.DType

// DataType represents the underlying element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int64   DataType = tensor.Int64
	Bool    DataType = tensor.Bool
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3} represents a 2×3 matrix; Shape{} is a scalar.
type Shape = tensor.Shape

// RawTensor is a dense tensor with dynamically tracked element type.
type RawTensor = tensor.RawTensor

// NewRaw allocates a zeroed tensor with the given shape and element type.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// Zeros allocates a zero-filled tensor.
func Zeros(shape Shape, dtype DataType) *RawTensor {
	return tensor.Zeros(shape, dtype)
}

// ZerosLike allocates a zero-filled tensor with t's shape and element type.
func ZerosLike(t *RawTensor) *RawTensor {
	return tensor.ZerosLike(t)
}

// FromSlice builds a tensor from a Go slice. The slice length must match the
// shape's element count.
func FromSlice[T DType](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// Full allocates a tensor filled with the given value.
func Full[T DType](shape Shape, value T) *RawTensor {
	return tensor.Full(shape, value)
}

// Scalar builds a zero-dimensional tensor holding a single value.
func Scalar[T DType](value T) *RawTensor {
	return tensor.Scalar(value)
}
