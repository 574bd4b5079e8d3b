package cpu

import (
	"fmt"
	"math"

	"github.com/vq-sce/vqsce/internal/tensor"
)

// Add performs element-wise addition.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float64) float64 { return x * y })
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f func(x, y float64) float64) *tensor.RawTensor {
	mustSameShape(op, a, b)
	result := cpu.newLike(op, a, a.Shape())

	switch a.DType() {
	case tensor.Float32:
		binaryT(view[float32](result), view[float32](a), view[float32](b), f)
	case tensor.Float64:
		binaryT(view[float64](result), view[float64](a), view[float64](b), f)
	default:
		panic(unsupported(op, a.DType()))
	}
	return result
}

func binaryT[T float](dst, a, b []T, f func(x, y float64) float64) {
	for i := range dst {
		dst[i] = T(f(float64(a[i]), float64(b[i])))
	}
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unary("mul_scalar", x, func(v float64) float64 { return v * scalar })
}

// ReLU applies max(0, x).
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("relu", x, func(v float64) float64 { return math.Max(v, 0) })
}

// Tanh applies the hyperbolic tangent.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("tanh", x, math.Tanh)
}

func (cpu *CPUBackend) unary(op string, x *tensor.RawTensor, f func(v float64) float64) *tensor.RawTensor {
	result := cpu.newLike(op, x, x.Shape())

	switch x.DType() {
	case tensor.Float32:
		unaryT(view[float32](result), view[float32](x), f)
	case tensor.Float64:
		unaryT(view[float64](result), view[float64](x), f)
	default:
		panic(unsupported(op, x.DType()))
	}
	return result
}

func unaryT[T float](dst, x []T, f func(v float64) float64) {
	for i := range dst {
		dst[i] = T(f(float64(x[i])))
	}
}

// AddBias adds bias [C] along the last axis of x.
func (cpu *CPUBackend) AddBias(x, bias *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 || len(bias.Shape()) != 1 || bias.Shape()[0] != shape[len(shape)-1] {
		panic(fmt.Sprintf("add_bias: bias %v does not match last axis of %v", bias.Shape(), shape))
	}
	result := cpu.newLike("add_bias", x, shape)

	switch x.DType() {
	case tensor.Float32:
		addBiasT(view[float32](result), view[float32](x), view[float32](bias))
	case tensor.Float64:
		addBiasT(view[float64](result), view[float64](x), view[float64](bias))
	default:
		panic(unsupported("add_bias", x.DType()))
	}
	return result
}

func addBiasT[T float](dst, x, bias []T) {
	c := len(bias)
	for i := range dst {
		dst[i] = x[i] + bias[i%c]
	}
}

// Reshape returns x with a new shape. The data is shared; no operation in
// this backend writes to its inputs, so sharing is safe.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result, err := x.View(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return result
}

// StopGradient returns a copy of x. The CPU backend never records gradients,
// so a plain copy is all that is required.
func (cpu *CPUBackend) StopGradient(x *tensor.RawTensor) *tensor.RawTensor {
	return x.Clone()
}
