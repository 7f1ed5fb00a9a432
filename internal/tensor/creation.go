package tensor

import "fmt"

// Zeros creates a zero-filled tensor with the given shape and dtype.
func Zeros(shape Shape, dtype DataType) *RawTensor {
	r, err := NewRaw(shape, dtype)
	if err != nil {
		panic(err)
	}
	return r
}

// ZerosLike creates a zero-filled tensor with the shape and dtype of t.
func ZerosLike(t *RawTensor) *RawTensor {
	return Zeros(t.Shape(), t.DType())
}

// FromSlice creates a tensor from a Go slice.
// The slice length must match the number of elements implied by shape.
func FromSlice[T DType](data []T, shape Shape) (*RawTensor, error) {
	r, err := NewRaw(shape, inferDataType(*new(T)))
	if err != nil {
		return nil, err
	}
	if len(data) != r.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, r.NumElements())
	}
	switch src := any(data).(type) {
	case []float32:
		copy(r.AsFloat32(), src)
	case []float64:
		copy(r.AsFloat64(), src)
	case []int64:
		copy(r.AsInt64(), src)
	case []bool:
		copy(r.AsBool(), src)
	}
	return r, nil
}

// Full creates a tensor filled with a specific value.
func Full[T DType](shape Shape, value T) *RawTensor {
	r, err := NewRaw(shape, inferDataType(value))
	if err != nil {
		panic(err)
	}
	switch v := any(value).(type) {
	case float32:
		data := r.AsFloat32()
		for i := range data {
			data[i] = v
		}
	case float64:
		data := r.AsFloat64()
		for i := range data {
			data[i] = v
		}
	case int64:
		data := r.AsInt64()
		for i := range data {
			data[i] = v
		}
	case bool:
		data := r.AsBool()
		for i := range data {
			data[i] = v
		}
	}
	return r
}

// Scalar creates a 0-d tensor holding a single value.
func Scalar[T DType](value T) *RawTensor {
	return Full(Shape{}, value)
}
