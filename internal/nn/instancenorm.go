package nn

import (
	"github.com/vq-sce/vqsce/internal/tensor"
)

// InstanceNormEps is added to the standard deviation, not the variance.
const InstanceNormEps = 1e-12

// InstanceNorm normalizes each (sample, channel) slice of an NDHWC tensor
// over its depth, height and width.
//
// Formula: Y = gamma * (X - mean) / (std + eps) + beta
//
// Where:
//   - mean and std (population) are computed per sample and channel
//   - gamma is the learnable scale [channels], initialized to ones
//   - beta is the learnable shift [channels], initialized to zeros
//
// A spatially constant channel normalizes to beta.
type InstanceNorm[B tensor.Backend] struct {
	Gamma   *Parameter[B]
	Beta    *Parameter[B]
	Epsilon float64
	backend B
}

// NewInstanceNorm creates an instance normalization layer named prefix.
func NewInstanceNorm[B tensor.Backend](prefix string, channels int, backend B) *InstanceNorm[B] {
	return &InstanceNorm[B]{
		Gamma:   NewParameter(joinName(prefix, "gamma"), Ones(tensor.Shape{channels}, backend)),
		Beta:    NewParameter(joinName(prefix, "beta"), Zeros(tensor.Shape{channels}, backend)),
		Epsilon: InstanceNormEps,
		backend: backend,
	}
}

// Forward applies InstanceNorm to an NDHWC tensor.
func (n *InstanceNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := n.backend.InstanceNorm(x.Raw(), n.Gamma.Tensor().Raw(), n.Beta.Tensor().Raw(), n.Epsilon)
	return tensor.New[float32, B](out, n.backend)
}

// Parameters returns the learnable parameters (gamma and beta).
func (n *InstanceNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{n.Gamma, n.Beta}
}
