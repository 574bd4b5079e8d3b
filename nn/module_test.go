// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"math/rand"
	"testing"

	"github.com/vq-sce/vqsce/backend/cpu"
	"github.com/vq-sce/vqsce/nn"
	"github.com/vq-sce/vqsce/tensor"
)

// TestModuleInterface verifies that the layers implement Module.
func TestModuleInterface(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name   string
		module nn.Module[*cpu.Backend]
		params int
		want   tensor.Shape
	}{
		{"Conv3D", nn.NewConv3D("conv", 2, 4, [3]int{2, 4, 4}, [3]int{1, 2, 2}, rng, backend), 2, tensor.Shape{1, 4, 4, 4, 4}},
		{"ConvTranspose3D", nn.NewConvTranspose3D("tconv", 2, 3, [3]int{2, 4, 4}, [3]int{1, 2, 2}, rng, backend), 2, tensor.Shape{1, 4, 16, 16, 3}},
		{"InstanceNorm", nn.NewInstanceNorm("norm", 2, backend), 2, tensor.Shape{1, 4, 8, 8, 2}},
		{"ReLU", nn.NewReLU[*cpu.Backend](), 0, tensor.Shape{1, 4, 8, 8, 2}},
		{"Tanh", nn.NewTanh[*cpu.Backend](), 0, tensor.Shape{1, 4, 8, 8, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tensor.RandNormal[float32](tensor.Shape{1, 4, 8, 8, 2}, 0, 1, rng, backend)
			out := tt.module.Forward(input)
			if !out.Shape().Equal(tt.want) {
				t.Errorf("Forward shape = %v, want %v", out.Shape(), tt.want)
			}
			if got := len(tt.module.Parameters()); got != tt.params {
				t.Errorf("len(Parameters()) = %d, want %d", got, tt.params)
			}
		})
	}
}

// TestParameterNames verifies state-dict prefixes.
func TestParameterNames(t *testing.T) {
	conv := nn.NewConv3D("down_0/conv1", 1, 4, [3]int{2, 4, 4}, [3]int{1, 1, 1}, rand.New(rand.NewSource(1)), cpu.New())
	params := conv.Parameters()
	if params[0].Name() != "down_0/conv1/kernel" || params[1].Name() != "down_0/conv1/bias" {
		t.Errorf("names = %q, %q", params[0].Name(), params[1].Name())
	}
	if want := (tensor.Shape{2, 4, 4, 1, 4}); !params[0].Tensor().Shape().Equal(want) {
		t.Errorf("kernel shape = %v, want %v", params[0].Tensor().Shape(), want)
	}
}
