package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Feature maps are 5D NDHWC tensors. Convolution kernels are laid out as
// [KD, KH, KW, C_fine, C_coarse]: for Conv3D that is [.., C_in, C_out], for
// ConvTranspose3D it is [.., C_out, C_in]. Both use TensorFlow "same"
// padding, so Conv3D produces ceil(in/stride) and ConvTranspose3D produces
// in*stride along every spatial axis.
//
// Implementations:
//   - CPU: pure Go (internal/backend/cpu)
//   - Autodiff: decorator recording a gradient tape (internal/autodiff)
type Backend interface {
	// Element-wise binary operations (operands must have equal shapes)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// Scalar operations
	MulScalar(x *RawTensor, scalar float64) *RawTensor

	// Matrix operations (2D only)
	MatMul(a, b *RawTensor) *RawTensor
	Transpose(x *RawTensor) *RawTensor

	// Shape operations
	Reshape(x *RawTensor, newShape Shape) *RawTensor

	// AddBias adds a [C] vector along the last axis of x.
	AddBias(x, bias *RawTensor) *RawTensor

	// Volumetric convolutions
	Conv3D(input, kernel *RawTensor, stride [3]int) *RawTensor
	ConvTranspose3D(input, kernel *RawTensor, stride [3]int) *RawTensor

	// InstanceNorm normalizes every (sample, channel) pair over D,H,W:
	// (x - mean) / (std + eps) * gamma + beta.
	InstanceNorm(x, gamma, beta *RawTensor, eps float64) *RawTensor

	// Activation functions
	ReLU(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor

	// ConcatChannels concatenates NDHWC tensors along the channel axis.
	ConcatChannels(tensors []*RawTensor) *RawTensor

	// Upsample3D repeats every voxel factors[i] times along spatial axis i
	// (nearest-neighbour upsampling).
	Upsample3D(x *RawTensor, factors [3]int) *RawTensor

	// TileTime broadcasts a per-sample scalar [N] to [N, D, H, W, 1].
	TileTime(t *RawTensor, spatial [3]int) *RawTensor

	// Reductions
	Mean(x *RawTensor) *RawTensor // scalar result

	// StopGradient returns a copy of x that no gradient flows through.
	StopGradient(x *RawTensor) *RawTensor

	// Backward kernels used by the autodiff operations.
	Conv3DInputBackward(input, kernel, grad *RawTensor, stride [3]int) *RawTensor
	Conv3DKernelBackward(input, kernel, grad *RawTensor, stride [3]int) *RawTensor
	ConvTranspose3DInputBackward(input, kernel, grad *RawTensor, stride [3]int) *RawTensor
	ConvTranspose3DKernelBackward(input, kernel, grad *RawTensor, stride [3]int) *RawTensor
	InstanceNormBackward(x, gamma, grad *RawTensor, eps float64) (dx, dgamma, dbeta *RawTensor)
	Upsample3DBackward(grad *RawTensor, factors [3]int) *RawTensor
	SumToChannels(grad *RawTensor) *RawTensor // reduce all but the last axis
	TileTimeBackward(grad *RawTensor) *RawTensor
	SliceChannels(x *RawTensor, start, end int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
