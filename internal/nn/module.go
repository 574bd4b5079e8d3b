// Package nn implements the volumetric layers the U-Net is assembled from.
//
// This package provides:
//   - Module interface: Base interface for all NN components
//   - Parameter: Named trainable tensors with gradient slots
//   - Conv3D, ConvTranspose3D: "same"-padded volumetric convolutions
//   - InstanceNorm: per-sample, per-channel normalization
//   - Activations: ReLU, Tanh
//
// Parameters carry their full state-dict name (for example
// "down_0/conv1/kernel"), assigned by the caller at construction.
package nn

import (
	"github.com/vq-sce/vqsce/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an NDHWC input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	// Returns an empty slice for modules without trainable parameters.
	Parameters() []*Parameter[B]
}

// joinName builds a state-dict key from a layer prefix and a parameter name.
func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
