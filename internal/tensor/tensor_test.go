package tensor_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vq-sce/vqsce/internal/backend/cpu"
	"github.com/vq-sce/vqsce/internal/tensor"
)

func TestShape(t *testing.T) {
	s := tensor.Shape{2, 3, 4, 5, 1}
	assert.Equal(t, 120, s.NumElements())
	assert.Equal(t, 1, tensor.Shape{}.NumElements())
	assert.Equal(t, []int{60, 20, 5, 1, 1}, s.ComputeStrides())
	assert.NoError(t, s.Validate())
	assert.Error(t, tensor.Shape{2, 0, 3}.Validate())

	clone := s.Clone()
	clone[0] = 9
	assert.Equal(t, 2, s[0])
	assert.False(t, s.Equal(clone))
	assert.False(t, s.Equal(tensor.Shape{2, 3, 4, 5}))
}

func TestShape_AsVolume(t *testing.T) {
	v, err := tensor.Shape{2, 12, 64, 48, 3}.AsVolume()
	require.NoError(t, err)
	assert.Equal(t, tensor.Volume{N: 2, D: 12, H: 64, W: 48, C: 3}, v)
	assert.Equal(t, [3]int{12, 64, 48}, v.Spatial())
	assert.Equal(t, 12*64*48, v.Voxels())
	assert.Equal(t, tensor.Shape{2, 12, 64, 48, 3}, v.Shape())

	_, err = tensor.Shape{12, 64, 64}.AsVolume()
	assert.Error(t, err)
}

func TestRawTensor(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, 24, raw.ByteSize())
	assert.Equal(t, "float32", raw.DType().String())
	assert.Equal(t, "CPU", raw.Device().String())

	copy(raw.AsFloat32(), []float32{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, raw.Float64s())

	view, err := raw.View(tensor.Shape{3, 2})
	require.NoError(t, err)
	view.AsFloat32()[0] = 10
	assert.Equal(t, float32(10), raw.AsFloat32()[0], "views share storage")

	_, err = raw.View(tensor.Shape{4})
	assert.Error(t, err)

	clone := raw.Clone()
	clone.SetFloat64s([]float64{0, 0, 0, 0, 0, 0})
	assert.Equal(t, float32(10), raw.AsFloat32()[0], "clones do not share storage")

	other := tensor.MustNewRaw(tensor.Shape{2, 3}, tensor.Float64, tensor.CPU)
	assert.Error(t, raw.CopyFrom(other))
	assert.Panics(t, func() { raw.AsFloat64() })

	_, err = tensor.NewRaw(tensor.Shape{2, -1}, tensor.Float32, tensor.CPU)
	assert.Error(t, err)
}

func TestTensor_IndexingAndReshape(t *testing.T) {
	backend := cpu.New()
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)

	assert.Equal(t, float32(6), x.At(1, 2))
	x.Set(7, 0, 1)
	assert.Equal(t, float32(7), x.Data()[1])
	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.At(0) })

	flat := x.Reshape(-1)
	assert.Equal(t, tensor.Shape{6}, flat.Shape())
	assert.Equal(t, tensor.Shape{3, 2}, x.Reshape(3, -1).Shape())
	assert.Panics(t, func() { x.Reshape(-1, -1) })

	assert.Equal(t, tensor.Shape{3, 2}, x.T().Shape())
	assert.InDelta(t, 26.0/6, x.Mean().Item(), 1e-6)
	assert.Panics(t, func() { x.Item() })

	_, err = tensor.FromSlice([]float32{1}, tensor.Shape{2}, backend)
	assert.Error(t, err)
}

func TestTensor_Creation(t *testing.T) {
	backend := cpu.New()
	shape := tensor.Shape{1, 2, 4, 4, 1}

	for _, v := range tensor.Ones[float32](shape, backend).Data() {
		require.Equal(t, float32(1), v)
	}
	for _, v := range tensor.Full[float64](shape, 0.5, backend).Data() {
		require.Equal(t, 0.5, v)
	}
	for _, v := range tensor.RandUniform[float32](shape, -0.05, 0.05, rand.New(rand.NewSource(1)), backend).Data() {
		require.GreaterOrEqual(t, v, float32(-0.05))
		require.Less(t, v, float32(0.05))
	}

	a := tensor.RandNormal[float32](shape, 0, 0.02, rand.New(rand.NewSource(7)), backend)
	b := tensor.RandNormal[float32](shape, 0, 0.02, rand.New(rand.NewSource(7)), backend)
	assert.Equal(t, a.Data(), b.Data(), "same seed, same values")
	assert.Equal(t, tensor.Float64, tensor.Zeros[float64](shape, backend).DType())
}

func TestTensor_VolumeOps(t *testing.T) {
	backend := cpu.New()
	x := tensor.RandUniform[float32](tensor.Shape{2, 2, 2, 2, 1}, -1, 1, rand.New(rand.NewSource(3)), backend)

	assert.Same(t, x, x.Upsample3D([3]int{1, 1, 1}))
	up := x.Upsample3D([3]int{2, 2, 1})
	assert.Equal(t, tensor.Shape{2, 4, 4, 2, 1}, up.Shape())
	assert.Equal(t, x.At(1, 1, 0, 1, 0), up.At(1, 3, 1, 1, 0))

	tv, err := tensor.FromSlice([]float32{3, 4}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	tiled := tensor.TileTime(tv, [3]int{2, 2, 2})
	assert.Equal(t, tensor.Shape{2, 2, 2, 2, 1}, tiled.Shape())
	assert.Equal(t, float32(4), tiled.At(1, 1, 1, 0, 0))

	cat := tensor.ConcatChannels(x, tiled, x)
	assert.Equal(t, tensor.Shape{2, 2, 2, 2, 3}, cat.Shape())
	assert.Equal(t, float32(3), cat.At(0, 1, 0, 1, 1))
	assert.Equal(t, x.At(0, 1, 0, 1, 0), cat.At(0, 1, 0, 1, 2))

	detached := x.Detach()
	assert.Equal(t, x.Data(), detached.Data())
	assert.NotSame(t, x.Raw(), detached.Raw())
}
