// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor API of vqsce.
//
// Feature maps are 5D volumes laid out as [batch, depth, height, width,
// channels] (NDHWC). The package re-exports the core types:
//   - Tensor[T, B]: generic tensor bound to a backend
//   - RawTensor: untyped contiguous storage
//   - Backend: the volumetric operations a compute backend provides
//   - Shape, Volume, DataType, Device
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{1, 12, 64, 64, 1}, backend)
//	y := x.Upsample3D([3]int{2, 1, 1}) // [1, 24, 64, 64, 1]
package tensor

import (
	"math/rand"

	"github.com/vq-sce/vqsce/internal/tensor"
)

// DType constrains tensor element types to float32 and float64.
type DType = tensor.DType

// DataType is the runtime element type of a RawTensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
)

// Device identifies where tensor data resides.
type Device = tensor.Device

// CPU is the only device.
const CPU Device = tensor.CPU

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// Volume is an NDHWC shape split into named axes.
type Volume = tensor.Volume

// RawTensor is the untyped storage behind a Tensor.
type RawTensor = tensor.RawTensor

// Backend is the set of operations a compute backend implements.
type Backend = tensor.Backend

// Tensor is a generic tensor with element type T on backend B.
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// NewRaw allocates a zeroed RawTensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// New wraps raw in a Tensor on backend b.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T, B](raw, b)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice(data, shape, b)
}

// Zeros creates a zero-filled tensor.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T](shape, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Ones[T](shape, b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full(shape, value, b)
}

// RandNormal draws every element from N(mean, std²).
func RandNormal[T DType, B Backend](shape Shape, mean, std float64, rng *rand.Rand, b B) *Tensor[T, B] {
	return tensor.RandNormal[T](shape, mean, std, rng, b)
}

// RandUniform draws every element from U(low, high).
func RandUniform[T DType, B Backend](shape Shape, low, high float64, rng *rand.Rand, b B) *Tensor[T, B] {
	return tensor.RandUniform[T](shape, low, high, rng, b)
}

// ConcatChannels concatenates NDHWC tensors along the channel axis.
func ConcatChannels[T DType, B Backend](tensors ...*Tensor[T, B]) *Tensor[T, B] {
	return tensor.ConcatChannels(tensors...)
}

// TileTime broadcasts a per-sample value [N] to [N, D, H, W, 1].
func TileTime[T DType, B Backend](t *Tensor[T, B], spatial [3]int) *Tensor[T, B] {
	return tensor.TileTime(t, spatial)
}
