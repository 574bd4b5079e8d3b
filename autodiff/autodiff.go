// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// New wraps a backend so that every operation is recorded on a gradient
// tape while recording is on. Backward then walks the tape in reverse.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net, _ := unet.New(cfg, backend)
//	backend.Tape().StartRecording()
//	out, _ := net.Forward(x, nil)
//	loss := out.Prediction.Sub(y).Square().Mean().Add(out.TotalLoss())
//	grads := autodiff.Backward(loss, backend)
//	nn.AssignGrads(net.Parameters(), grads)
//
// A backend owns a single tape, so concurrent training steps need one
// backend each.
package autodiff

import (
	"github.com/vq-sce/vqsce/internal/autodiff"
	"github.com/vq-sce/vqsce/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates an autodiff backend wrapping backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// BackwardCapable is implemented by backends that own a tape.
type BackwardCapable = autodiff.BackwardCapable

// Backward computes the gradient of t with respect to every recorded input,
// keyed by RawTensor identity.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}
