package cpu

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vq-sce/vqsce/internal/parallel"
	"github.com/vq-sce/vqsce/internal/tensor"
)

func raw64(t *testing.T, shape tensor.Shape, values ...float64) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	if len(values) > 0 {
		r.SetFloat64s(values)
	}
	return r
}

func randRaw(shape tensor.Shape, rng *rand.Rand) *tensor.RawTensor {
	r := tensor.MustNewRaw(shape, tensor.Float64, tensor.CPU)
	data := r.AsFloat64()
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return r
}

func dot(a, b *tensor.RawTensor) float64 {
	x, y := a.Float64s(), b.Float64s()
	var s float64
	for i := range x {
		s += x[i] * y[i]
	}
	return s
}

func TestBackend_Name(t *testing.T) {
	backend := New()
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
}

func TestElementwise(t *testing.T) {
	backend := New()
	a := raw64(t, tensor.Shape{2, 2}, 1, -2, 3, -4)
	b := raw64(t, tensor.Shape{2, 2}, 10, 20, 30, 40)

	assert.Equal(t, []float64{11, 18, 33, 36}, backend.Add(a, b).Float64s())
	assert.Equal(t, []float64{-9, -22, -27, -44}, backend.Sub(a, b).Float64s())
	assert.Equal(t, []float64{10, -40, 90, -160}, backend.Mul(a, b).Float64s())
	assert.Equal(t, []float64{0.5, -1, 1.5, -2}, backend.MulScalar(a, 0.5).Float64s())
	assert.Equal(t, []float64{1, 0, 3, 0}, backend.ReLU(a).Float64s())

	th := backend.Tanh(a).Float64s()
	assert.InDelta(t, math.Tanh(-2), th[1], 1e-12)

	// Inputs are never modified.
	assert.Equal(t, []float64{1, -2, 3, -4}, a.Float64s())
}

func TestElementwise_ShapeMismatchPanics(t *testing.T) {
	backend := New()
	a := raw64(t, tensor.Shape{2, 2})
	b := raw64(t, tensor.Shape{4})
	assert.Panics(t, func() { backend.Add(a, b) })
}

func TestAddBias(t *testing.T) {
	backend := New()
	x := raw64(t, tensor.Shape{2, 3}, 0, 0, 0, 1, 1, 1)
	bias := raw64(t, tensor.Shape{3}, 1, 2, 3)
	assert.Equal(t, []float64{1, 2, 3, 2, 3, 4}, backend.AddBias(x, bias).Float64s())
	assert.Equal(t, []float64{1, 1, 1}, backend.SumToChannels(x).Float64s())
}

func TestStopGradient_Copies(t *testing.T) {
	backend := New()
	x := raw64(t, tensor.Shape{2}, 1, 2)
	y := backend.StopGradient(x)
	y.AsFloat64()[0] = 42
	assert.Equal(t, 1.0, x.AsFloat64()[0])
}

func TestMatMulTranspose(t *testing.T) {
	backend := New()
	a := raw64(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := raw64(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)

	c := backend.MatMul(a, b)
	assert.Equal(t, tensor.Shape{2, 2}, c.Shape())
	assert.Equal(t, []float64{58, 64, 139, 154}, c.Float64s())

	at := backend.Transpose(a)
	assert.Equal(t, tensor.Shape{3, 2}, at.Shape())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, at.Float64s())

	a32 := tensor.MustNewRaw(tensor.Shape{1, 2}, tensor.Float32, tensor.CPU)
	copy(a32.AsFloat32(), []float32{1, 2})
	b32 := tensor.MustNewRaw(tensor.Shape{2, 1}, tensor.Float32, tensor.CPU)
	copy(b32.AsFloat32(), []float32{3, 4})
	assert.Equal(t, []float32{11}, backend.MatMul(a32, b32).AsFloat32())
}

func TestMean(t *testing.T) {
	backend := New()
	x := raw64(t, tensor.Shape{2, 2}, 1, 2, 3, 6)
	m := backend.Mean(x)
	assert.Empty(t, m.Shape())
	assert.Equal(t, 3.0, m.AsFloat64()[0])
}

func TestParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	x := randRaw(tensor.Shape{3, 5, 6, 4, 2}, rng)
	k := randRaw(tensor.Shape{3, 3, 3, 2, 4}, rng)
	gamma := randRaw(tensor.Shape{2}, rng)
	beta := randRaw(tensor.Shape{2}, rng)
	stride := [3]int{2, 2, 1}

	seq := NewWithParallel(parallel.Sequential())
	par := NewWithParallel(parallel.Config{Workers: 4, Grain: 1})

	conv := seq.Conv3D(x, k, stride)
	assert.Equal(t, conv.Float64s(), par.Conv3D(x, k, stride).Float64s())

	grad := randRaw(conv.Shape(), rng)
	assert.Equal(t,
		seq.Conv3DInputBackward(x, k, grad, stride).Float64s(),
		par.Conv3DInputBackward(x, k, grad, stride).Float64s())

	tk := randRaw(tensor.Shape{3, 3, 3, 2, 2}, rng)
	assert.Equal(t,
		seq.ConvTranspose3D(x, tk, stride).Float64s(),
		par.ConvTranspose3D(x, tk, stride).Float64s())

	assert.Equal(t,
		seq.InstanceNorm(x, gamma, beta, 1e-5).Float64s(),
		par.InstanceNorm(x, gamma, beta, 1e-5).Float64s())

	dy := randRaw(x.Shape(), rng)
	dx1, dg1, db1 := seq.InstanceNormBackward(x, gamma, dy, 1e-5)
	dx2, dg2, db2 := par.InstanceNormBackward(x, gamma, dy, 1e-5)
	assert.Equal(t, dx1.Float64s(), dx2.Float64s())
	assert.Equal(t, dg1.Float64s(), dg2.Float64s())
	assert.Equal(t, db1.Float64s(), db2.Float64s())
}
