// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient
// tracking capabilities through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op (Add, Conv3D, InstanceNorm) implements backward pass
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// StopGradient is never recorded: its result is a fresh tensor with no
// history, so no gradient reaches the value it was copied from.
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x, _ := tensor.FromSlice([]float32{2.0}, tensor.Shape{1}, backend)
//	y := x.Mul(x).Mean()
//	grads := autodiff.Backward(y, backend)
//	fmt.Println(grads[x.Raw()].AsFloat32()) // [4]
package autodiff

import (
	"github.com/vq-sce/vqsce/internal/autodiff/ops"
	"github.com/vq-sce/vqsce/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// record adds op to the tape when recording and returns its output.
func (b *AutodiffBackend[B]) record(op ops.Operation) *tensor.RawTensor {
	b.tape.Record(op)
	return op.Output()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewAddOp(a, c, b.inner.Add(a, c)))
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewSubOp(a, c, b.inner.Sub(a, c)))
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewMulOp(a, c, b.inner.Mul(a, c)))
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return b.record(ops.NewMulScalarOp(x, b.inner.MulScalar(x, scalar), scalar))
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewMatMulOp(a, c, b.inner.MatMul(a, c)))
}

// Transpose transposes a 2D tensor and records the operation.
func (b *AutodiffBackend[B]) Transpose(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewTransposeOp(x, b.inner.Transpose(x)))
}

// Reshape reshapes x and records the operation.
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return b.record(ops.NewReshapeOp(x, b.inner.Reshape(x, newShape)))
}

// AddBias adds a per-channel bias and records the operation.
func (b *AutodiffBackend[B]) AddBias(x, bias *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewAddBiasOp(x, bias, b.inner.AddBias(x, bias)))
}

// Conv3D performs a 3D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv3D(input, kernel *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	return b.record(ops.NewConv3DOp(input, kernel, b.inner.Conv3D(input, kernel, stride), stride))
}

// ConvTranspose3D performs a 3D transposed convolution and records the operation.
func (b *AutodiffBackend[B]) ConvTranspose3D(input, kernel *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	return b.record(ops.NewConvTranspose3DOp(input, kernel, b.inner.ConvTranspose3D(input, kernel, stride), stride))
}

// InstanceNorm normalizes x and records the operation.
func (b *AutodiffBackend[B]) InstanceNorm(x, gamma, beta *tensor.RawTensor, eps float64) *tensor.RawTensor {
	return b.record(ops.NewInstanceNormOp(x, gamma, beta, b.inner.InstanceNorm(x, gamma, beta, eps), eps))
}

// ReLU applies ReLU and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewReLUOp(x, b.inner.ReLU(x)))
}

// Tanh applies tanh and records the operation.
func (b *AutodiffBackend[B]) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewTanhOp(x, b.inner.Tanh(x)))
}

// ConcatChannels concatenates along the channel axis and records the operation.
func (b *AutodiffBackend[B]) ConcatChannels(tensors []*tensor.RawTensor) *tensor.RawTensor {
	inputs := append([]*tensor.RawTensor(nil), tensors...)
	return b.record(ops.NewConcatChannelsOp(inputs, b.inner.ConcatChannels(tensors)))
}

// Upsample3D repeats voxels and records the operation.
func (b *AutodiffBackend[B]) Upsample3D(x *tensor.RawTensor, factors [3]int) *tensor.RawTensor {
	return b.record(ops.NewUpsample3DOp(x, b.inner.Upsample3D(x, factors), factors))
}

// TileTime broadcasts a time value and records the operation.
func (b *AutodiffBackend[B]) TileTime(t *tensor.RawTensor, spatial [3]int) *tensor.RawTensor {
	return b.record(ops.NewTileTimeOp(t, b.inner.TileTime(t, spatial)))
}

// Mean reduces to a scalar and records the operation.
func (b *AutodiffBackend[B]) Mean(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewMeanOp(x, b.inner.Mean(x)))
}

// StopGradient returns a copy of x without recording it.
func (b *AutodiffBackend[B]) StopGradient(x *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.StopGradient(x)
}

// Backward kernels are forwarded unrecorded; they only run inside
// GradientTape.Backward, where recording is off.

// Conv3DInputBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Conv3DInputBackward(input, kernel, grad *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	return b.inner.Conv3DInputBackward(input, kernel, grad, stride)
}

// Conv3DKernelBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Conv3DKernelBackward(input, kernel, grad *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	return b.inner.Conv3DKernelBackward(input, kernel, grad, stride)
}

// ConvTranspose3DInputBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) ConvTranspose3DInputBackward(input, kernel, grad *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	return b.inner.ConvTranspose3DInputBackward(input, kernel, grad, stride)
}

// ConvTranspose3DKernelBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) ConvTranspose3DKernelBackward(input, kernel, grad *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	return b.inner.ConvTranspose3DKernelBackward(input, kernel, grad, stride)
}

// InstanceNormBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) InstanceNormBackward(x, gamma, grad *tensor.RawTensor, eps float64) (dx, dgamma, dbeta *tensor.RawTensor) {
	return b.inner.InstanceNormBackward(x, gamma, grad, eps)
}

// Upsample3DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Upsample3DBackward(grad *tensor.RawTensor, factors [3]int) *tensor.RawTensor {
	return b.inner.Upsample3DBackward(grad, factors)
}

// SumToChannels delegates to the wrapped backend.
func (b *AutodiffBackend[B]) SumToChannels(grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.SumToChannels(grad)
}

// TileTimeBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) TileTimeBackward(grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.TileTimeBackward(grad)
}

// SliceChannels delegates to the wrapped backend.
func (b *AutodiffBackend[B]) SliceChannels(x *tensor.RawTensor, start, end int) *tensor.RawTensor {
	return b.inner.SliceChannels(x, start, end)
}
