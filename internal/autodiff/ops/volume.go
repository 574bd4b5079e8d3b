package ops

import "github.com/vq-sce/vqsce/internal/tensor"

// ConcatChannelsOp records a channel-axis concatenation of NDHWC tensors.
// The backward pass slices the gradient back into per-input pieces.
type ConcatChannelsOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewConcatChannelsOp creates a new ConcatChannelsOp.
func NewConcatChannelsOp(inputs []*tensor.RawTensor, output *tensor.RawTensor) *ConcatChannelsOp {
	return &ConcatChannelsOp{inputs: inputs, output: output}
}

// Backward slices the gradient along the channel axis.
func (op *ConcatChannelsOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	start := 0
	for i, in := range op.inputs {
		end := start + in.Shape()[4]
		grads[i] = backend.SliceChannels(outputGrad, start, end)
		start = end
	}
	return grads
}

// Inputs returns the concatenated tensors.
func (op *ConcatChannelsOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns the concatenation.
func (op *ConcatChannelsOp) Output() *tensor.RawTensor { return op.output }

// Upsample3DOp records nearest-neighbour repetition along the spatial axes.
type Upsample3DOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	factors [3]int
}

// NewUpsample3DOp creates a new Upsample3DOp.
func NewUpsample3DOp(input, output *tensor.RawTensor, factors [3]int) *Upsample3DOp {
	return &Upsample3DOp{input: input, output: output, factors: factors}
}

// Backward sums each repeated block of the gradient.
func (op *Upsample3DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Upsample3DBackward(outputGrad, op.factors)}
}

// Inputs returns [x].
func (op *Upsample3DOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the upsampled tensor.
func (op *Upsample3DOp) Output() *tensor.RawTensor { return op.output }

// TileTimeOp records the broadcast of a per-sample time value over a volume.
type TileTimeOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewTileTimeOp creates a new TileTimeOp.
func NewTileTimeOp(input, output *tensor.RawTensor) *TileTimeOp {
	return &TileTimeOp{input: input, output: output}
}

// Backward sums the gradient over every voxel of each sample.
func (op *TileTimeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := backend.TileTimeBackward(outputGrad)
	return []*tensor.RawTensor{backend.Reshape(grad, op.input.Shape())}
}

// Inputs returns [t].
func (op *TileTimeOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the tiled volume.
func (op *TileTimeOp) Output() *tensor.RawTensor { return op.output }
