package tensor

// Add performs element-wise addition of equally shaped tensors.
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction of equally shaped tensors.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication of equally shaped tensors.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// MulScalar multiplies every element by s.
func (t *Tensor[T, B]) MulScalar(s float64) *Tensor[T, B] {
	return New[T, B](t.backend.MulScalar(t.raw, s), t.backend)
}

// Square returns t * t.
func (t *Tensor[T, B]) Square() *Tensor[T, B] {
	return t.Mul(t)
}

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) → (M, N).
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.MatMul(t.raw, other.raw), t.backend)
}

// T returns the transpose of a 2D tensor.
func (t *Tensor[T, B]) T() *Tensor[T, B] {
	if len(t.Shape()) != 2 {
		panic("T() only works for 2D tensors")
	}
	return New[T, B](t.backend.Transpose(t.raw), t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
//
// Example:
//
//	flat := x.Reshape(-1, 16) // a single -1 is inferred
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Reshape(t.raw, inferShape(newShape, t.NumElements())), t.backend)
}

// AddBias adds a [C] vector along the last axis.
func (t *Tensor[T, B]) AddBias(bias *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.AddBias(t.raw, bias.raw), t.backend)
}

// ReLU applies max(0, x) element-wise.
func (t *Tensor[T, B]) ReLU() *Tensor[T, B] {
	return New[T, B](t.backend.ReLU(t.raw), t.backend)
}

// Tanh applies the hyperbolic tangent element-wise.
func (t *Tensor[T, B]) Tanh() *Tensor[T, B] {
	return New[T, B](t.backend.Tanh(t.raw), t.backend)
}

// Mean reduces all elements to a scalar mean.
func (t *Tensor[T, B]) Mean() *Tensor[T, B] {
	return New[T, B](t.backend.Mean(t.raw), t.backend)
}

// Upsample3D repeats voxels along the spatial axes of an NDHWC tensor.
func (t *Tensor[T, B]) Upsample3D(factors [3]int) *Tensor[T, B] {
	if factors == [3]int{1, 1, 1} {
		return t
	}
	return New[T, B](t.backend.Upsample3D(t.raw, factors), t.backend)
}

// ConcatChannels concatenates NDHWC tensors along the channel axis.
func ConcatChannels[T DType, B Backend](tensors ...*Tensor[T, B]) *Tensor[T, B] {
	if len(tensors) == 0 {
		panic("ConcatChannels: no tensors")
	}
	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	b := tensors[0].backend
	return New[T, B](b.ConcatChannels(raws), b)
}

// TileTime broadcasts a per-sample time value t [N] over the spatial grid,
// producing a single-channel NDHWC tensor.
func TileTime[T DType, B Backend](t *Tensor[T, B], spatial [3]int) *Tensor[T, B] {
	return New[T, B](t.backend.TileTime(t.raw, spatial), t.backend)
}

// inferShape resolves a single -1 dimension against the element count.
func inferShape(dims []int, numElements int) Shape {
	shape := make(Shape, len(dims))
	copy(shape, dims)

	unknown := -1
	known := 1
	for i, d := range shape {
		if d == -1 {
			if unknown >= 0 {
				panic("reshape: only one dimension can be -1")
			}
			unknown = i
			continue
		}
		known *= d
	}
	if unknown >= 0 {
		if known == 0 || numElements%known != 0 {
			panic("reshape: cannot infer dimension")
		}
		shape[unknown] = numElements / known
	}
	return shape
}
