package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Volume describes a 5D NDHWC shape.
//
// Every feature tensor in the network is laid out as
// [batch, depth, height, width, channels].
type Volume struct {
	N, D, H, W, C int
}

// AsVolume interprets s as an NDHWC volume.
func (s Shape) AsVolume() (Volume, error) {
	if len(s) != 5 {
		return Volume{}, fmt.Errorf("expected 5D shape [N,D,H,W,C], got %v", s)
	}
	return Volume{N: s[0], D: s[1], H: s[2], W: s[3], C: s[4]}, nil
}

// Spatial returns the (depth, height, width) triple.
func (v Volume) Spatial() [3]int {
	return [3]int{v.D, v.H, v.W}
}

// Shape converts the volume back to a Shape.
func (v Volume) Shape() Shape {
	return Shape{v.N, v.D, v.H, v.W, v.C}
}

// Voxels returns the number of spatial positions per sample and channel.
func (v Volume) Voxels() int {
	return v.D * v.H * v.W
}
