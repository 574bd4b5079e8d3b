// Package cpu implements the pure-Go CPU backend for volumetric tensors.
package cpu

import (
	"fmt"

	"github.com/vq-sce/vqsce/internal/parallel"
	"github.com/vq-sce/vqsce/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
//
// Every operation allocates its result; inputs are never modified. This keeps
// the backend safe for concurrent forward passes that share parameters.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

// New creates a CPU backend that spreads kernels over all available CPUs.
func New() *CPUBackend {
	return NewWithParallel(parallel.DefaultConfig())
}

// NewWithParallel creates a CPU backend with an explicit worker configuration.
// parallel.Sequential() gives a single-threaded backend.
func NewWithParallel(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		parallel: cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// float is the element constraint for the generic kernels in this package.
type float interface {
	~float32 | ~float64
}

// view returns the typed data of r for kernel type T.
func view[T float](r *tensor.RawTensor) []T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(r.AsFloat32()).([]T)
	case float64:
		return any(r.AsFloat64()).([]T)
	default:
		panic("cpu: unsupported element type")
	}
}

// newLike allocates a zeroed tensor of the given shape with x's dtype.
func (cpu *CPUBackend) newLike(op string, x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

// volume validates that x is a 5D NDHWC tensor.
func volume(op string, x *tensor.RawTensor) tensor.Volume {
	v, err := x.Shape().AsVolume()
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	return v
}

func mustSameShape(op string, a, b *tensor.RawTensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}
}

func unsupported(op string, dt tensor.DataType) string {
	return fmt.Sprintf("%s: unsupported dtype %s", op, dt)
}
