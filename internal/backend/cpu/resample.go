package cpu

import (
	"fmt"

	"github.com/vq-sce/vqsce/internal/tensor"
)

// ConcatChannels concatenates NDHWC tensors along the channel axis.
// All inputs must agree on N, D, H and W.
func (cpu *CPUBackend) ConcatChannels(tensors []*tensor.RawTensor) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("concat_channels: no tensors")
	}
	first := volume("concat_channels", tensors[0])
	total := 0
	for i, t := range tensors {
		v := volume("concat_channels", t)
		if v.N != first.N || v.Spatial() != first.Spatial() {
			panic(fmt.Sprintf("concat_channels: tensor %d has shape %v, expected [%d %d %d %d *]",
				i, t.Shape(), first.N, first.D, first.H, first.W))
		}
		if t.DType() != tensors[0].DType() {
			panic(fmt.Sprintf("concat_channels: dtype mismatch at tensor %d", i))
		}
		total += v.C
	}

	out := first
	out.C = total
	result := cpu.newLike("concat_channels", tensors[0], out.Shape())

	offset := 0
	for _, t := range tensors {
		c := t.Shape()[4]
		switch t.DType() {
		case tensor.Float32:
			copyChannels(view[float32](result), view[float32](t), out.N*out.Voxels(), total, c, offset, 0)
		case tensor.Float64:
			copyChannels(view[float64](result), view[float64](t), out.N*out.Voxels(), total, c, offset, 0)
		default:
			panic(unsupported("concat_channels", t.DType()))
		}
		offset += c
	}
	return result
}

// SliceChannels returns channels [start, end) of an NDHWC tensor.
func (cpu *CPUBackend) SliceChannels(x *tensor.RawTensor, start, end int) *tensor.RawTensor {
	v := volume("slice_channels", x)
	if start < 0 || end > v.C || start >= end {
		panic(fmt.Sprintf("slice_channels: invalid range [%d, %d) for %d channels", start, end, v.C))
	}
	out := v
	out.C = end - start
	result := cpu.newLike("slice_channels", x, out.Shape())

	switch x.DType() {
	case tensor.Float32:
		copyChannels(view[float32](result), view[float32](x), v.N*v.Voxels(), out.C, v.C, 0, start)
	case tensor.Float64:
		copyChannels(view[float64](result), view[float64](x), v.N*v.Voxels(), out.C, v.C, 0, start)
	default:
		panic(unsupported("slice_channels", x.DType()))
	}
	return result
}

// copyChannels copies width channels per voxel from src (starting at srcOff)
// into dst (starting at dstOff). dstC and srcC are the channel counts.
func copyChannels[T float](dst, src []T, voxels, dstC, srcC, dstOff, srcOff int) {
	width := dstC
	if srcC-srcOff < width {
		width = srcC - srcOff
	}
	if dstC-dstOff < width {
		width = dstC - dstOff
	}
	for i := 0; i < voxels; i++ {
		copy(dst[i*dstC+dstOff:i*dstC+dstOff+width], src[i*srcC+srcOff:i*srcC+srcOff+width])
	}
}

// Upsample3D repeats every voxel factors[i] times along spatial axis i.
func (cpu *CPUBackend) Upsample3D(x *tensor.RawTensor, factors [3]int) *tensor.RawTensor {
	v := volume("upsample3d", x)
	checkFactors("upsample3d", factors)
	out := tensor.Volume{N: v.N, D: v.D * factors[0], H: v.H * factors[1], W: v.W * factors[2], C: v.C}
	result := cpu.newLike("upsample3d", x, out.Shape())

	switch x.DType() {
	case tensor.Float32:
		dst, src := view[float32](result), view[float32](x)
		repeatVoxels(out, factors, func(outOff, inOff int) {
			copy(dst[outOff:outOff+v.C], src[inOff:inOff+v.C])
		})
	case tensor.Float64:
		dst, src := view[float64](result), view[float64](x)
		repeatVoxels(out, factors, func(outOff, inOff int) {
			copy(dst[outOff:outOff+v.C], src[inOff:inOff+v.C])
		})
	default:
		panic(unsupported("upsample3d", x.DType()))
	}
	return result
}

// Upsample3DBackward sums the gradient of every repeated block back onto its source voxel.
func (cpu *CPUBackend) Upsample3DBackward(grad *tensor.RawTensor, factors [3]int) *tensor.RawTensor {
	g := volume("upsample3d_backward", grad)
	checkFactors("upsample3d_backward", factors)
	if g.D%factors[0] != 0 || g.H%factors[1] != 0 || g.W%factors[2] != 0 {
		panic(fmt.Sprintf("upsample3d_backward: grad shape %v not divisible by %v", grad.Shape(), factors))
	}
	in := tensor.Volume{N: g.N, D: g.D / factors[0], H: g.H / factors[1], W: g.W / factors[2], C: g.C}
	result := cpu.newLike("upsample3d_backward", grad, in.Shape())

	switch grad.DType() {
	case tensor.Float32:
		dst, src := view[float32](result), view[float32](grad)
		repeatVoxels(g, factors, func(gOff, inOff int) {
			for c := 0; c < g.C; c++ {
				dst[inOff+c] += src[gOff+c]
			}
		})
	case tensor.Float64:
		dst, src := view[float64](result), view[float64](grad)
		repeatVoxels(g, factors, func(gOff, inOff int) {
			for c := 0; c < g.C; c++ {
				dst[inOff+c] += src[gOff+c]
			}
		})
	default:
		panic(unsupported("upsample3d_backward", grad.DType()))
	}
	return result
}

func checkFactors(op string, factors [3]int) {
	for i, f := range factors {
		if f <= 0 {
			panic(fmt.Sprintf("%s: factor[%d] must be positive, got %d", op, i, f))
		}
	}
}

// repeatVoxels visits every voxel of the upsampled volume out and passes its
// offset together with the offset of the source voxel it was copied from.
func repeatVoxels(out tensor.Volume, factors [3]int, fn func(outOff, srcOff int)) {
	sd, sh, sw := out.D/factors[0], out.H/factors[1], out.W/factors[2]
	for b := 0; b < out.N; b++ {
		for d := 0; d < out.D; d++ {
			for h := 0; h < out.H; h++ {
				for w := 0; w < out.W; w++ {
					outOff := (((b*out.D+d)*out.H+h)*out.W + w) * out.C
					srcOff := (((b*sd+d/factors[0])*sh+h/factors[1])*sw + w/factors[2]) * out.C
					fn(outOff, srcOff)
				}
			}
		}
	}
}

// TileTime broadcasts a per-sample value t of shape [N] (or [N, 1]) to a
// single-channel volume [N, D, H, W, 1].
func (cpu *CPUBackend) TileTime(t *tensor.RawTensor, spatial [3]int) *tensor.RawTensor {
	n := t.Shape().NumElements()
	if len(t.Shape()) == 0 || t.Shape()[0] != n {
		panic(fmt.Sprintf("tile_time: expected [N] or [N, 1], got %v", t.Shape()))
	}
	out := tensor.Volume{N: n, D: spatial[0], H: spatial[1], W: spatial[2], C: 1}
	result := cpu.newLike("tile_time", t, out.Shape())

	switch t.DType() {
	case tensor.Float32:
		tileT(view[float32](result), view[float32](t), out.Voxels())
	case tensor.Float64:
		tileT(view[float64](result), view[float64](t), out.Voxels())
	default:
		panic(unsupported("tile_time", t.DType()))
	}
	return result
}

func tileT[T float](dst, src []T, voxels int) {
	for b, v := range src {
		block := dst[b*voxels : (b+1)*voxels]
		for i := range block {
			block[i] = v
		}
	}
}

// TileTimeBackward sums a [N, D, H, W, 1] gradient back to [N].
func (cpu *CPUBackend) TileTimeBackward(grad *tensor.RawTensor) *tensor.RawTensor {
	g := volume("tile_time_backward", grad)
	if g.C != 1 {
		panic(fmt.Sprintf("tile_time_backward: expected 1 channel, got %d", g.C))
	}
	result := cpu.newLike("tile_time_backward", grad, tensor.Shape{g.N})

	switch grad.DType() {
	case tensor.Float32:
		untileT(view[float32](result), view[float32](grad), g.Voxels())
	case tensor.Float64:
		untileT(view[float64](result), view[float64](grad), g.Voxels())
	default:
		panic(unsupported("tile_time_backward", grad.DType()))
	}
	return result
}

func untileT[T float](dst, src []T, voxels int) {
	for b := range dst {
		var sum float64
		for _, v := range src[b*voxels : (b+1)*voxels] {
			sum += float64(v)
		}
		dst[b] = T(sum)
	}
}
