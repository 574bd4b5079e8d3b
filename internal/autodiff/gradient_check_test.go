package autodiff_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vq-sce/vqsce/internal/autodiff"
	"github.com/vq-sce/vqsce/internal/backend/cpu"
	"github.com/vq-sce/vqsce/internal/tensor"
)

// checkGradients compares autodiff gradients of f against central finite
// differences for every element of every parameter.
func checkGradients(t *testing.T, params []*tensor.Tensor[float64, Backend], f func(b Backend) *tensor.Tensor[float64, Backend], b Backend) {
	t.Helper()

	b.Tape().Clear()
	b.Tape().StartRecording()
	grads := autodiff.Backward(f(b), b)
	b.Tape().StopRecording()

	const h = 1e-6
	for p, param := range params {
		grad, ok := grads[param.Raw()]
		require.True(t, ok, "param %d received no gradient", p)
		want := grad.Float64s()

		data := param.Data()
		for i := range data {
			orig := data[i]
			data[i] = orig + h
			up := f(b).Item()
			data[i] = orig - h
			down := f(b).Item()
			data[i] = orig

			assert.InDelta(t, (up-down)/(2*h), want[i], 1e-5, "param %d element %d", p, i)
		}
	}
}

func randTensor(shape tensor.Shape, rng *rand.Rand, b Backend) *tensor.Tensor[float64, Backend] {
	return tensor.RandNormal[float64](shape, 0, 1, rng, b)
}

func TestGradient_Conv3D(t *testing.T) {
	b := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(10))

	x := randTensor(tensor.Shape{1, 2, 4, 4, 2}, rng, b)
	k := randTensor(tensor.Shape{2, 4, 4, 2, 3}, rng, b)
	bias := randTensor(tensor.Shape{3}, rng, b)
	w := randTensor(tensor.Shape{1, 2, 2, 2, 3}, rng, b)

	checkGradients(t, []*tensor.Tensor[float64, Backend]{x, k, bias}, func(b Backend) *tensor.Tensor[float64, Backend] {
		out := tensor.New[float64](b.Conv3D(x.Raw(), k.Raw(), [3]int{1, 2, 2}), b)
		return out.AddBias(bias).Mul(w).Mean()
	}, b)
}

func TestGradient_ConvTranspose3D(t *testing.T) {
	b := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(11))

	x := randTensor(tensor.Shape{1, 1, 2, 2, 3}, rng, b)
	k := randTensor(tensor.Shape{4, 4, 4, 2, 3}, rng, b)
	w := randTensor(tensor.Shape{1, 2, 4, 4, 2}, rng, b)

	checkGradients(t, []*tensor.Tensor[float64, Backend]{x, k}, func(b Backend) *tensor.Tensor[float64, Backend] {
		out := tensor.New[float64](b.ConvTranspose3D(x.Raw(), k.Raw(), [3]int{2, 2, 2}), b)
		return out.Mul(w).Mean()
	}, b)
}

func TestGradient_InstanceNormReLUTanh(t *testing.T) {
	b := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(12))

	x := randTensor(tensor.Shape{2, 1, 2, 3, 2}, rng, b)
	gamma := randTensor(tensor.Shape{2}, rng, b)
	beta := randTensor(tensor.Shape{2}, rng, b)
	w := randTensor(x.Shape(), rng, b)

	checkGradients(t, []*tensor.Tensor[float64, Backend]{x, gamma, beta}, func(b Backend) *tensor.Tensor[float64, Backend] {
		y := tensor.New[float64](b.InstanceNorm(x.Raw(), gamma.Raw(), beta.Raw(), 1e-12), b)
		return y.Tanh().Mul(w).Mean()
	}, b)
}

func TestGradient_ConcatUpsampleTileTime(t *testing.T) {
	b := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(13))

	a := randTensor(tensor.Shape{2, 1, 2, 2, 2}, rng, b)
	c := randTensor(tensor.Shape{2, 2, 2, 2, 1}, rng, b)
	tt := randTensor(tensor.Shape{2}, rng, b)
	w := randTensor(tensor.Shape{2, 2, 2, 2, 4}, rng, b)

	checkGradients(t, []*tensor.Tensor[float64, Backend]{a, c, tt}, func(b Backend) *tensor.Tensor[float64, Backend] {
		up := a.Upsample3D([3]int{2, 1, 1})
		cat := tensor.ConcatChannels(up, c, tensor.TileTime(tt, [3]int{2, 2, 2}))
		return cat.Mul(w).Square().Mean()
	}, b)
}

func TestGradient_ReshapeMatMul(t *testing.T) {
	b := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(14))

	x := randTensor(tensor.Shape{1, 2, 2, 1, 3}, rng, b)
	m := randTensor(tensor.Shape{3, 5}, rng, b)

	checkGradients(t, []*tensor.Tensor[float64, Backend]{x, m}, func(b Backend) *tensor.Tensor[float64, Backend] {
		flat := x.Reshape(-1, 3)
		return flat.MatMul(m).ReLU().Sub(flat.MatMul(m).MulScalar(0.5)).Mean()
	}, b)
}
