package nn

import (
	"math/rand"

	"github.com/vq-sce/vqsce/internal/tensor"
)

// KernelStd is the standard deviation of the normal initializer used for
// convolution kernels.
const KernelStd = 0.02

// Normal initializes a tensor from N(0, std²) using rng.
//
// All initializers take an explicit *rand.Rand so that a network built
// twice from the same seed has identical weights.
func Normal[B tensor.Backend](shape tensor.Shape, std float64, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return tensor.RandNormal[float32](shape, 0, std, rng, backend)
}

// Uniform initializes a tensor from U(low, high) using rng.
func Uniform[B tensor.Backend](shape tensor.Shape, low, high float64, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return tensor.RandUniform[float32](shape, low, high, rng, backend)
}

// Zeros creates a tensor filled with zeros.
//
// This is commonly used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}
