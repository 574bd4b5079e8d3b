// Package ops defines operation interfaces and implementations for automatic differentiation.
//
// Each operation implements the Operation interface, which provides:
//   - Forward pass: computed by the backend
//   - Backward pass: computes gradients for inputs given output gradient
//
// Supported operations:
//   - AddOp, SubOp, MulOp, MulScalarOp: element-wise arithmetic
//   - MatMulOp, TransposeOp, ReshapeOp: 2D algebra and views
//   - AddBiasOp: per-channel bias (d/dbias = sum over all but the last axis)
//   - Conv3DOp, ConvTranspose3DOp: volumetric convolutions
//   - InstanceNormOp: per-sample, per-channel normalization
//   - ReLUOp, TanhOp: activations
//   - ConcatChannelsOp, Upsample3DOp, TileTimeOp: NDHWC plumbing
//   - MeanOp: scalar reduction
package ops

import "github.com/vq-sce/vqsce/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	//
	// Example for AddOp:
	//   inputs: [a, b]
	//   outputGrad: dL/d(a+b)
	//   returns: [dL/d(a+b), dL/d(a+b)] (gradient flows equally to both inputs)
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
