package ops

import (
	"github.com/vq-sce/vqsce/internal/tensor"
)

// mapRaw returns a new tensor with f applied to every element of x.
// It bypasses the backend so the result is never recorded on a tape.
func mapRaw(x *tensor.RawTensor, f func(float64) float64) *tensor.RawTensor {
	values := x.Float64s()
	for i, v := range values {
		values[i] = f(v)
	}
	out := tensor.MustNewRaw(x.Shape(), x.DType(), x.Device())
	out.SetFloat64s(values)
	return out
}
