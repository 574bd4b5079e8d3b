package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vq-sce/vqsce/internal/autodiff"
	"github.com/vq-sce/vqsce/internal/backend/cpu"
	"github.com/vq-sce/vqsce/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	b := autodiff.New(cpu.New())
	b.Tape().StartRecording()
	return b
}

func TestAutodiffBackend_Name(t *testing.T) {
	b := autodiff.New(cpu.New())
	assert.Equal(t, "Autodiff(CPU)", b.Name())
	assert.Equal(t, tensor.CPU, b.Device())
}

func TestTape_RecordsOnlyWhileRecording(t *testing.T) {
	b := autodiff.New(cpu.New())
	x := tensor.Ones[float64](tensor.Shape{2}, b)

	x.Add(x)
	assert.Equal(t, 0, b.Tape().NumOps())

	b.Tape().StartRecording()
	x.Add(x)
	x.Mul(x)
	assert.Equal(t, 2, b.Tape().NumOps())

	b.Tape().Clear()
	assert.Equal(t, 0, b.Tape().NumOps())
	assert.True(t, b.Tape().IsRecording())
}

func TestBackward_SquareMean(t *testing.T) {
	b := newBackend()
	x, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{4}, b)
	require.NoError(t, err)

	y := x.Square().Mean()
	grads := autodiff.Backward(y, b)

	// d/dx mean(x²) = 2x/n
	assert.InDeltaSlice(t, []float64{0.5, 1, 1.5, 2}, grads[x.Raw()].Float64s(), 1e-12)
}

func TestBackward_AccumulatesReusedInputs(t *testing.T) {
	b := newBackend()
	x, err := tensor.FromSlice([]float64{3}, tensor.Shape{1}, b)
	require.NoError(t, err)

	// y = x + 2x
	y := x.Add(x.MulScalar(2)).Mean()
	grads := autodiff.Backward(y, b)
	assert.InDelta(t, 3.0, grads[x.Raw()].Float64s()[0], 1e-12)
}

func TestBackward_SeedsRequestedOutput(t *testing.T) {
	b := newBackend()
	x, err := tensor.FromSlice([]float64{1, 2}, tensor.Shape{2}, b)
	require.NoError(t, err)

	loss := x.MulScalar(3).Mean()
	_ = x.Square().Mean() // recorded later, unrelated to loss

	grads := autodiff.Backward(loss, b)
	assert.InDeltaSlice(t, []float64{1.5, 1.5}, grads[x.Raw()].Float64s(), 1e-12)
}

func TestStopGradient_BlocksFlow(t *testing.T) {
	b := newBackend()
	x, err := tensor.FromSlice([]float64{1, -2}, tensor.Shape{2}, b)
	require.NoError(t, err)

	stopped := x.Detach()
	assert.Equal(t, x.Data(), stopped.Data())
	assert.NotSame(t, x.Raw(), stopped.Raw())

	// y = x + stop(3x - x): forward equals 3x, gradient is that of x alone.
	y := x.Add(x.MulScalar(3).Sub(x).Detach())
	assert.Equal(t, []float64{3, -6}, y.Data())

	grads := autodiff.Backward(y.Mean(), b)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, grads[x.Raw()].Float64s(), 1e-12)
	_, ok := grads[stopped.Raw()]
	assert.False(t, ok)
}

func TestBackward_MatMulTranspose(t *testing.T) {
	b := newBackend()
	a, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{2, 2}, b)
	require.NoError(t, err)
	c, err := tensor.FromSlice([]float64{5, 6, 7, 8}, tensor.Shape{2, 2}, b)
	require.NoError(t, err)

	y := a.MatMul(c.T()).Mean()
	grads := autodiff.Backward(y, b)

	// d/da_ij mean(a @ c^T) = (Σ_k c_kj) / 4
	assert.InDeltaSlice(t, []float64{3, 3.5, 3, 3.5}, grads[a.Raw()].Float64s(), 1e-12)
	// d/dc_kj = (Σ_i a_ij) / 4
	assert.InDeltaSlice(t, []float64{1, 1.5, 1, 1.5}, grads[c.Raw()].Float64s(), 1e-12)
}

func TestBackward_PanicsWithoutRecording(t *testing.T) {
	b := autodiff.New(cpu.New())
	x := tensor.Ones[float64](tensor.Shape{1}, b)
	assert.Panics(t, func() { autodiff.Backward(x, b) })
}
