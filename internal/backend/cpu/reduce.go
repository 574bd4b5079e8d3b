package cpu

import (
	"github.com/vq-sce/vqsce/internal/tensor"
)

// Mean reduces all elements to a scalar (shape []).
func (cpu *CPUBackend) Mean(x *tensor.RawTensor) *tensor.RawTensor {
	result := cpu.newLike("mean", x, tensor.Shape{})

	switch x.DType() {
	case tensor.Float32:
		view[float32](result)[0] = float32(sum(view[float32](x)) / float64(x.NumElements()))
	case tensor.Float64:
		view[float64](result)[0] = sum(view[float64](x)) / float64(x.NumElements())
	default:
		panic(unsupported("mean", x.DType()))
	}
	return result
}

func sum[T float](data []T) float64 {
	var s float64
	for _, v := range data {
		s += float64(v)
	}
	return s
}

// SumToChannels reduces every axis except the last, producing shape [C].
// It is the gradient of AddBias w.r.t. the bias.
func (cpu *CPUBackend) SumToChannels(grad *tensor.RawTensor) *tensor.RawTensor {
	shape := grad.Shape()
	if len(shape) == 0 {
		panic("sum_to_channels: scalar input")
	}
	c := shape[len(shape)-1]
	result := cpu.newLike("sum_to_channels", grad, tensor.Shape{c})

	switch grad.DType() {
	case tensor.Float32:
		sumToChannelsT(view[float32](result), view[float32](grad))
	case tensor.Float64:
		sumToChannelsT(view[float64](result), view[float64](grad))
	default:
		panic(unsupported("sum_to_channels", grad.DType()))
	}
	return result
}

func sumToChannelsT[T float](dst, src []T) {
	c := len(dst)
	for i, v := range src {
		dst[i%c] += v
	}
}
