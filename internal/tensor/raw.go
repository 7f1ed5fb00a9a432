package tensor

import (
	"fmt"
	"unsafe"
)

// RawTensor is the low-level tensor representation: a contiguous row-major
// buffer with shape and runtime type information.
//
// Views produced by Row and SliceRows share the backing buffer with the
// parent tensor. The scan engine relies on this for zero-copy gathers and
// scatters along the leading (time) axis.
type RawTensor struct {
	data  []byte
	shape Shape
	dtype DataType
}

// NewRaw creates a new zero-filled RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		data:  make([]byte, shape.NumElements()*dtype.Size()),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// DType returns the tensor's element type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", r.dtype))
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsBool interprets the data as []bool.
// Panics if the tensor's dtype is not Bool.
func (r *RawTensor) AsBool() []bool {
	if r.dtype != Bool {
		panic(fmt.Sprintf("tensor dtype is %s, not bool", r.dtype))
	}
	return unsafe.Slice((*bool)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &RawTensor{data: data, shape: r.shape.Clone(), dtype: r.dtype}
}

// rowBytes returns the byte size of one step along the leading axis.
func (r *RawTensor) rowBytes() int {
	return r.shape.Tail().NumElements() * r.dtype.Size()
}

// Rows returns the extent of the leading axis, or 1 for scalars.
func (r *RawTensor) Rows() int {
	if len(r.shape) == 0 {
		return 1
	}
	return r.shape[0]
}

// Row returns a zero-copy view of step i along the leading axis, with the
// leading axis dropped. A 1-D tensor therefore yields 0-d (scalar) rows.
func (r *RawTensor) Row(i int) *RawTensor {
	if i < 0 || i >= r.Rows() {
		panic(fmt.Sprintf("row index %d out of range [0, %d)", i, r.Rows()))
	}
	rb := r.rowBytes()
	return &RawTensor{
		data:  r.data[i*rb : (i+1)*rb : (i+1)*rb],
		shape: r.shape.Tail(),
		dtype: r.dtype,
	}
}

// SetRow copies src into step i along the leading axis.
// src must match the tensor's row shape and dtype.
func (r *RawTensor) SetRow(i int, src *RawTensor) error {
	if i < 0 || i >= r.Rows() {
		return fmt.Errorf("row index %d out of range [0, %d)", i, r.Rows())
	}
	if src.dtype != r.dtype {
		return fmt.Errorf("row dtype mismatch: have %s, want %s", src.dtype, r.dtype)
	}
	if !src.shape.Equal(r.shape.Tail()) {
		return fmt.Errorf("row shape mismatch: have %v, want %v", src.shape, r.shape.Tail())
	}
	rb := r.rowBytes()
	copy(r.data[i*rb:(i+1)*rb], src.data)
	return nil
}

// SliceRows returns a zero-copy view of rows [from, to) along the leading axis.
func (r *RawTensor) SliceRows(from, to int) *RawTensor {
	if from < 0 || to > r.Rows() || from > to {
		panic(fmt.Sprintf("row slice [%d:%d] out of range [0, %d]", from, to, r.Rows()))
	}
	rb := r.rowBytes()
	shape := r.shape.Clone()
	shape[0] = to - from
	return &RawTensor{
		data:  r.data[from*rb : to*rb : to*rb],
		shape: shape,
		dtype: r.dtype,
	}
}

// ReverseRows returns a copy with the leading axis reversed.
func (r *RawTensor) ReverseRows() *RawTensor {
	out := r.Clone()
	rb := r.rowBytes()
	n := r.Rows()
	for i := 0; i < n; i++ {
		copy(out.data[i*rb:(i+1)*rb], r.data[(n-1-i)*rb:(n-i)*rb])
	}
	return out
}

// ZeroRows zero-fills rows [from, to) along the leading axis.
func (r *RawTensor) ZeroRows(from, to int) {
	if from < 0 || to > r.Rows() || from > to {
		panic(fmt.Sprintf("row range [%d:%d] out of range [0, %d]", from, to, r.Rows()))
	}
	rb := r.rowBytes()
	clear(r.data[from*rb : to*rb])
}

// CopyFrom copies the contents of src into the tensor.
// Shapes and dtypes must match exactly.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if src.dtype != r.dtype {
		return fmt.Errorf("copy dtype mismatch: have %s, want %s", src.dtype, r.dtype)
	}
	if !src.shape.Equal(r.shape) {
		return fmt.Errorf("copy shape mismatch: have %v, want %v", src.shape, r.shape)
	}
	copy(r.data, src.data)
	return nil
}
