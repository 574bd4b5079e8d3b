package nn

import (
	"fmt"

	"github.com/vq-sce/vqsce/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Example:
//
//	kernel := nn.NewParameter("down_0/conv1/kernel", kernelTensor)
//	grads := autodiff.Backward(loss, backend)
//	nn.AssignGrads(module.Parameters(), grads)
//	g := kernel.Grad()
type Parameter[B tensor.Backend] struct {
	name   string                     // State-dict name
	tensor *tensor.Tensor[float32, B] // The parameter tensor
	grad   *tensor.Tensor[float32, B] // Gradient tensor (set after backward pass)
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the gradient tensor, or nil before a backward pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// Load copies raw into the parameter. Shape and dtype must match.
func (p *Parameter[B]) Load(raw *tensor.RawTensor) error {
	if err := p.tensor.Raw().CopyFrom(raw); err != nil {
		return fmt.Errorf("parameter %s: %w", p.name, err)
	}
	return nil
}

// AssignGrads stores the gradients computed by autodiff.Backward on every
// parameter that received one. Parameters outside the graph get a nil grad.
func AssignGrads[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, p := range params {
		g, ok := grads[p.tensor.Raw()]
		if !ok {
			p.grad = nil
			continue
		}
		p.grad = tensor.New[float32, B](g, p.tensor.Backend())
	}
}
