package nn

import (
	"fmt"
	"math/rand"

	"github.com/vq-sce/vqsce/internal/tensor"
)

// Conv3D is a 3D convolutional layer with "same" padding.
//
// Performs convolution: output = Conv3D(input, kernel) + bias
//
// Input shape:  [batch, depth, height, width, in_channels]
// Kernel shape: [kernel_d, kernel_h, kernel_w, in_channels, out_channels]
// Bias shape:   [out_channels]
// Output shape: [batch, ceil(D/sd), ceil(H/sh), ceil(W/sw), out_channels]
//
// Example:
//
//	conv := nn.NewConv3D("down_0/conv2", 16, 32, [3]int{2, 4, 4}, [3]int{1, 2, 2}, rng, backend)
//	out := conv.Forward(x) // [N, 8, 64, 64, 16] -> [N, 8, 32, 32, 32]
type Conv3D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [3]int
	stride      [3]int

	kernel *Parameter[B]
	bias   *Parameter[B]

	backend B
}

// NewConv3D creates a 3D convolution named prefix.
//
// Initialization:
//   - Kernel: N(0, KernelStd²)
//   - Bias: zeros
func NewConv3D[B tensor.Backend](
	prefix string,
	inChannels, outChannels int,
	kernelSize, stride [3]int,
	rng *rand.Rand,
	backend B,
) *Conv3D[B] {
	validateConv("conv3d", inChannels, outChannels, kernelSize, stride)

	shape := tensor.Shape{kernelSize[0], kernelSize[1], kernelSize[2], inChannels, outChannels}
	return &Conv3D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		kernel:      NewParameter(joinName(prefix, "kernel"), Normal(shape, KernelStd, rng, backend)),
		bias:        NewParameter(joinName(prefix, "bias"), Zeros(tensor.Shape{outChannels}, backend)),
		backend:     backend,
	}
}

func validateConv(op string, in, out int, kernel, stride [3]int) {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("%s: invalid channels in=%d, out=%d", op, in, out))
	}
	for i := 0; i < 3; i++ {
		if kernel[i] <= 0 || stride[i] <= 0 {
			panic(fmt.Sprintf("%s: invalid kernel %v or stride %v", op, kernel, stride))
		}
	}
}

// Forward performs the forward pass.
func (c *Conv3D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	checkInput("conv3d", input.Shape(), c.inChannels)

	out := c.backend.Conv3D(input.Raw(), c.kernel.Tensor().Raw(), c.stride)
	return tensor.New[float32, B](out, c.backend).AddBias(c.bias.Tensor())
}

func checkInput(op string, shape tensor.Shape, channels int) {
	if len(shape) != 5 {
		panic(fmt.Sprintf("%s: expected 5D input [N,D,H,W,C], got %dD", op, len(shape)))
	}
	if shape[4] != channels {
		panic(fmt.Sprintf("%s: input channels %d != expected %d", op, shape[4], channels))
	}
}

// Parameters returns [kernel, bias].
func (c *Conv3D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.kernel, c.bias}
}

// String returns a string representation of the layer.
func (c *Conv3D[B]) String() string {
	return fmt.Sprintf("Conv3D(in_channels=%d, out_channels=%d, kernel_size=%v, stride=%v)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride)
}

// InChannels returns the number of input channels.
func (c *Conv3D[B]) InChannels() int { return c.inChannels }

// OutChannels returns the number of output channels.
func (c *Conv3D[B]) OutChannels() int { return c.outChannels }

// KernelSize returns the kernel size (depth, height, width).
func (c *Conv3D[B]) KernelSize() [3]int { return c.kernelSize }

// Stride returns the stride.
func (c *Conv3D[B]) Stride() [3]int { return c.stride }

// OutputSize returns the spatial output size for an input of the given size.
func (c *Conv3D[B]) OutputSize(spatial [3]int) [3]int {
	var out [3]int
	for i := range spatial {
		out[i] = (spatial[i] + c.stride[i] - 1) / c.stride[i]
	}
	return out
}

// ConvTranspose3D is a 3D transposed convolution with "same" padding.
//
// Input shape:  [batch, depth, height, width, in_channels]
// Kernel shape: [kernel_d, kernel_h, kernel_w, out_channels, in_channels]
// Output shape: [batch, D*sd, H*sh, W*sw, out_channels]
type ConvTranspose3D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [3]int
	stride      [3]int

	kernel *Parameter[B]
	bias   *Parameter[B]

	backend B
}

// NewConvTranspose3D creates a transposed convolution named prefix, initialized like Conv3D.
func NewConvTranspose3D[B tensor.Backend](
	prefix string,
	inChannels, outChannels int,
	kernelSize, stride [3]int,
	rng *rand.Rand,
	backend B,
) *ConvTranspose3D[B] {
	validateConv("conv_transpose3d", inChannels, outChannels, kernelSize, stride)

	shape := tensor.Shape{kernelSize[0], kernelSize[1], kernelSize[2], outChannels, inChannels}
	return &ConvTranspose3D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		kernel:      NewParameter(joinName(prefix, "kernel"), Normal(shape, KernelStd, rng, backend)),
		bias:        NewParameter(joinName(prefix, "bias"), Zeros(tensor.Shape{outChannels}, backend)),
		backend:     backend,
	}
}

// Forward performs the forward pass.
func (c *ConvTranspose3D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	checkInput("conv_transpose3d", input.Shape(), c.inChannels)

	out := c.backend.ConvTranspose3D(input.Raw(), c.kernel.Tensor().Raw(), c.stride)
	return tensor.New[float32, B](out, c.backend).AddBias(c.bias.Tensor())
}

// Parameters returns [kernel, bias].
func (c *ConvTranspose3D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.kernel, c.bias}
}

// String returns a string representation of the layer.
func (c *ConvTranspose3D[B]) String() string {
	return fmt.Sprintf("ConvTranspose3D(in_channels=%d, out_channels=%d, kernel_size=%v, stride=%v)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride)
}

// InChannels returns the number of input channels.
func (c *ConvTranspose3D[B]) InChannels() int { return c.inChannels }

// OutChannels returns the number of output channels.
func (c *ConvTranspose3D[B]) OutChannels() int { return c.outChannels }

// OutputSize returns the spatial output size for an input of the given size.
func (c *ConvTranspose3D[B]) OutputSize(spatial [3]int) [3]int {
	var out [3]int
	for i := range spatial {
		out[i] = spatial[i] * c.stride[i]
	}
	return out
}
