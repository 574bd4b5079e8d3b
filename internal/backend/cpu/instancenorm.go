package cpu

import (
	"fmt"
	"math"

	"github.com/vq-sce/vqsce/internal/parallel"
	"github.com/vq-sce/vqsce/internal/tensor"
)

// InstanceNorm normalizes every (sample, channel) slice of an NDHWC tensor
// over its spatial positions:
//
//	y = (x - mean) / (std + eps) * gamma + beta
//
// std is the population standard deviation. gamma and beta have shape [C].
func (cpu *CPUBackend) InstanceNorm(x, gamma, beta *tensor.RawTensor, eps float64) *tensor.RawTensor {
	v := volume("instance_norm", x)
	checkChannelParam("instance_norm", gamma, v.C)
	checkChannelParam("instance_norm", beta, v.C)
	result := cpu.newLike("instance_norm", x, x.Shape())

	switch x.DType() {
	case tensor.Float32:
		instanceNormT(cpu.parallel, v, view[float32](x), view[float32](gamma), view[float32](beta), view[float32](result), eps)
	case tensor.Float64:
		instanceNormT(cpu.parallel, v, view[float64](x), view[float64](gamma), view[float64](beta), view[float64](result), eps)
	default:
		panic(unsupported("instance_norm", x.DType()))
	}
	return result
}

func checkChannelParam(op string, p *tensor.RawTensor, channels int) {
	if len(p.Shape()) != 1 || p.Shape()[0] != channels {
		panic(fmt.Sprintf("%s: parameter shape %v, expected [%d]", op, p.Shape(), channels))
	}
}

// channelStats returns mean and population std of channel c in sample b.
func channelStats[T float](v tensor.Volume, x []T, b, c int) (mean, std float64) {
	m := v.Voxels()
	base := b * m * v.C
	for i := 0; i < m; i++ {
		mean += float64(x[base+i*v.C+c])
	}
	mean /= float64(m)
	var variance float64
	for i := 0; i < m; i++ {
		d := float64(x[base+i*v.C+c]) - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(m))
}

func instanceNormT[T float](par parallel.Config, v tensor.Volume, x, gamma, beta, y []T, eps float64) {
	m := v.Voxels()
	parallel.ForBatch(v.N, v.C, par, func(b, c int) {
		base := b * m * v.C
		mean, std := channelStats(v, x, b, c)
		scale := float64(gamma[c]) / (std + eps)
		shift := float64(beta[c])
		for i := 0; i < m; i++ {
			idx := base + i*v.C + c
			y[idx] = T((float64(x[idx])-mean)*scale + shift)
		}
	})
}

// InstanceNormBackward returns the gradients of InstanceNorm w.r.t. x, gamma and beta.
func (cpu *CPUBackend) InstanceNormBackward(x, gamma, grad *tensor.RawTensor, eps float64) (dx, dgamma, dbeta *tensor.RawTensor) {
	v := volume("instance_norm_backward", x)
	checkChannelParam("instance_norm_backward", gamma, v.C)
	mustSameShape("instance_norm_backward", x, grad)

	dx = cpu.newLike("instance_norm_backward", x, x.Shape())
	dgamma = cpu.newLike("instance_norm_backward", gamma, gamma.Shape())
	dbeta = cpu.newLike("instance_norm_backward", gamma, gamma.Shape())

	switch x.DType() {
	case tensor.Float32:
		instanceNormBackwardT(cpu.parallel, v, view[float32](x), view[float32](gamma), view[float32](grad),
			view[float32](dx), view[float32](dgamma), view[float32](dbeta), eps)
	case tensor.Float64:
		instanceNormBackwardT(cpu.parallel, v, view[float64](x), view[float64](gamma), view[float64](grad),
			view[float64](dx), view[float64](dgamma), view[float64](dbeta), eps)
	default:
		panic(unsupported("instance_norm_backward", x.DType()))
	}
	return dx, dgamma, dbeta
}

// instanceNormBackwardT splits work by channel; each channel owns its dx
// slice positions and its dgamma and dbeta entries.
func instanceNormBackwardT[T float](par parallel.Config, v tensor.Volume, x, gamma, dy, dx, dgamma, dbeta []T, eps float64) {
	m := v.Voxels()
	fm := float64(m)
	parallel.For(v.C, par, func(c int) {
		var sumGamma, sumBeta float64
		for b := 0; b < v.N; b++ {
			base := b * m * v.C
			mean, std := channelStats(v, x, b, c)
			d := std + eps

			// g = dy * gamma; accumulate mean(g) and Σ g·(x - mean).
			var sumG, sumGX float64
			for i := 0; i < m; i++ {
				idx := base + i*v.C + c
				xm := float64(x[idx]) - mean
				g := float64(dy[idx]) * float64(gamma[c])
				sumG += g
				sumGX += g * xm
				sumGamma += float64(dy[idx]) * xm / d
				sumBeta += float64(dy[idx])
			}
			meanG := sumG / fm

			var coef float64
			if std > 0 {
				coef = sumGX / (fm * std * d * d)
			}
			for i := 0; i < m; i++ {
				idx := base + i*v.C + c
				xm := float64(x[idx]) - mean
				g := float64(dy[idx]) * float64(gamma[c])
				dx[idx] = T((g-meanG)/d - xm*coef)
			}
		}
		dgamma[c] = T(sumGamma)
		dbeta[c] = T(sumBeta)
	})
}
