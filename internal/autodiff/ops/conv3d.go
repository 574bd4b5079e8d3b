package ops

import (
	"github.com/vq-sce/vqsce/internal/tensor"
)

// Conv3DOp records a 3D "same" convolution for autodiff.
//
// Forward: output = Conv3D(input, kernel, stride)
//
// Backward (gradients):
//   - d_input:  scatter of d_output through the kernel (a transposed convolution)
//   - d_kernel: correlation of input with d_output
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
type Conv3DOp struct {
	input  *tensor.RawTensor
	kernel *tensor.RawTensor
	output *tensor.RawTensor
	stride [3]int
}

// NewConv3DOp creates a new Conv3D operation.
func NewConv3DOp(input, kernel, output *tensor.RawTensor, stride [3]int) *Conv3DOp {
	return &Conv3DOp{
		input:  input,
		kernel: kernel,
		output: output,
		stride: stride,
	}
}

// Inputs returns the input tensors.
func (op *Conv3DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the output tensor.
func (op *Conv3DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for Conv3D.
//
// Given:
//   - outputGrad: ∂L/∂output [N, D', H', W', C_out]
//
// Compute:
//   - inputGrad:  ∂L/∂input  [N, D, H, W, C_in]
//   - kernelGrad: ∂L/∂kernel [KD, KH, KW, C_in, C_out]
func (op *Conv3DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv3DInputBackward(op.input, op.kernel, outputGrad, op.stride)
	kernelGrad := backend.Conv3DKernelBackward(op.input, op.kernel, outputGrad, op.stride)

	return []*tensor.RawTensor{inputGrad, kernelGrad}
}

// ConvTranspose3DOp records a 3D transposed convolution.
type ConvTranspose3DOp struct {
	input  *tensor.RawTensor
	kernel *tensor.RawTensor
	output *tensor.RawTensor
	stride [3]int
}

// NewConvTranspose3DOp creates a new ConvTranspose3D operation.
func NewConvTranspose3DOp(input, kernel, output *tensor.RawTensor, stride [3]int) *ConvTranspose3DOp {
	return &ConvTranspose3DOp{
		input:  input,
		kernel: kernel,
		output: output,
		stride: stride,
	}
}

// Inputs returns the input tensors.
func (op *ConvTranspose3DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the output tensor.
func (op *ConvTranspose3DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for ConvTranspose3D. The input gradient is an
// ordinary strided convolution of outputGrad with the same kernel.
func (op *ConvTranspose3DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.ConvTranspose3DInputBackward(op.input, op.kernel, outputGrad, op.stride)
	kernelGrad := backend.ConvTranspose3DKernelBackward(op.input, op.kernel, outputGrad, op.stride)

	return []*tensor.RawTensor{inputGrad, kernelGrad}
}
