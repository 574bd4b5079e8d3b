package ops

import "github.com/vq-sce/vqsce/internal/tensor"

// InstanceNormOp records InstanceNorm(x, gamma, beta, eps).
//
// The backward pass is delegated to the backend, which recomputes the
// per-(sample, channel) statistics from x.
type InstanceNormOp struct {
	input, gamma, beta *tensor.RawTensor
	output             *tensor.RawTensor
	eps                float64
}

// NewInstanceNormOp creates a new InstanceNormOp.
func NewInstanceNormOp(input, gamma, beta, output *tensor.RawTensor, eps float64) *InstanceNormOp {
	return &InstanceNormOp{input: input, gamma: gamma, beta: beta, output: output, eps: eps}
}

// Backward returns [dx, dgamma, dbeta].
func (op *InstanceNormOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dx, dgamma, dbeta := backend.InstanceNormBackward(op.input, op.gamma, outputGrad, op.eps)
	return []*tensor.RawTensor{dx, dgamma, dbeta}
}

// Inputs returns [x, gamma, beta].
func (op *InstanceNormOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.gamma, op.beta}
}

// Output returns the normalized tensor.
func (op *InstanceNormOp) Output() *tensor.RawTensor { return op.output }
