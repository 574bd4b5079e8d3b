// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the volumetric layers the U-Net is built from.
//
// Every layer takes NDHWC input and names its parameters with a
// state-dict prefix:
//
//	conv := nn.NewConv3D("down_0/conv1", 1, 16, [3]int{2, 4, 4}, [3]int{1, 1, 1}, rng, backend)
//	conv.Parameters()[0].Name() // "down_0/conv1/kernel"
package nn

import (
	"math/rand"

	"github.com/vq-sce/vqsce/internal/nn"
	"github.com/vq-sce/vqsce/tensor"
)

// Initialization and normalization constants.
const (
	KernelStd       = nn.KernelStd
	InstanceNormEps = nn.InstanceNormEps
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// AssignGrads stores the gradients returned by autodiff.Backward on params.
func AssignGrads[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) {
	nn.AssignGrads(params, grads)
}

// Layers

// Conv3D is a "same"-padded 3D convolution.
type Conv3D[B tensor.Backend] = nn.Conv3D[B]

// NewConv3D creates a 3D convolution with kernel [KD, KH, KW, in, out].
func NewConv3D[B tensor.Backend](prefix string, in, out int, kernel, stride [3]int, rng *rand.Rand, backend B) *Conv3D[B] {
	return nn.NewConv3D(prefix, in, out, kernel, stride, rng, backend)
}

// ConvTranspose3D is a "same"-padded 3D transposed convolution.
type ConvTranspose3D[B tensor.Backend] = nn.ConvTranspose3D[B]

// NewConvTranspose3D creates a transposed convolution with kernel [KD, KH, KW, out, in].
func NewConvTranspose3D[B tensor.Backend](prefix string, in, out int, kernel, stride [3]int, rng *rand.Rand, backend B) *ConvTranspose3D[B] {
	return nn.NewConvTranspose3D(prefix, in, out, kernel, stride, rng, backend)
}

// InstanceNorm normalizes every (sample, channel) pair over depth, height and width.
type InstanceNorm[B tensor.Backend] = nn.InstanceNorm[B]

// NewInstanceNorm creates an instance norm with gamma = 1 and beta = 0.
func NewInstanceNorm[B tensor.Backend](prefix string, channels int, backend B) *InstanceNorm[B] {
	return nn.NewInstanceNorm(prefix, channels, backend)
}

// Activations

// ReLU is the rectified linear activation.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Tanh is the hyperbolic tangent activation.
type Tanh[B tensor.Backend] = nn.Tanh[B]

// NewTanh creates a Tanh activation.
func NewTanh[B tensor.Backend]() *Tanh[B] {
	return nn.NewTanh[B]()
}
