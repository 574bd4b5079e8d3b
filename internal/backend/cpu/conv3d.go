package cpu

import (
	"fmt"

	"github.com/vq-sce/vqsce/internal/parallel"
	"github.com/vq-sce/vqsce/internal/tensor"
)

// convGeometry relates a fine grid (conv input, transposed-conv output) to a
// coarse grid (conv output, transposed-conv input) under "same" padding.
//
// Fine index f and coarse index c are linked through kernel tap k by
//
//	f = c*stride - padBefore + k
//
// so every one of the six convolution kernels (two forward, four backward)
// is one of gather, scatter or kernelGrad over this relation.
type convGeometry struct {
	n              int
	fine, coarse   [3]int
	kernel, stride [3]int
	pad            [3]int
	cFine, cCoarse int
}

// samePadBefore returns the leading padding for one axis.
func samePadBefore(fine, coarse, kernel, stride int) int {
	total := (coarse-1)*stride + kernel - fine
	if total < 0 {
		total = 0
	}
	return total / 2
}

func newConvGeometry(n int, fine, coarse [3]int, kernelShape tensor.Shape, stride [3]int) convGeometry {
	g := convGeometry{
		n:       n,
		fine:    fine,
		coarse:  coarse,
		kernel:  [3]int{kernelShape[0], kernelShape[1], kernelShape[2]},
		stride:  stride,
		cFine:   kernelShape[3],
		cCoarse: kernelShape[4],
	}
	for i := 0; i < 3; i++ {
		g.pad[i] = samePadBefore(fine[i], coarse[i], g.kernel[i], stride[i])
	}
	return g
}

func checkKernel(op string, kernel *tensor.RawTensor, stride [3]int) {
	if len(kernel.Shape()) != 5 {
		panic(fmt.Sprintf("%s: expected 5D kernel [KD,KH,KW,C,C], got %v", op, kernel.Shape()))
	}
	for i, s := range stride {
		if s <= 0 {
			panic(fmt.Sprintf("%s: stride[%d] must be positive, got %d", op, i, s))
		}
	}
}

// convGeometryFor builds the geometry for a Conv3D whose input is fine.
func convGeometryFor(op string, input, kernel *tensor.RawTensor, stride [3]int) convGeometry {
	checkKernel(op, kernel, stride)
	in := volume(op, input)
	ks := kernel.Shape()
	if in.C != ks[3] {
		panic(fmt.Sprintf("%s: input has %d channels, kernel expects %d", op, in.C, ks[3]))
	}
	var coarse [3]int
	for i, d := range in.Spatial() {
		coarse[i] = (d + stride[i] - 1) / stride[i]
	}
	return newConvGeometry(in.N, in.Spatial(), coarse, ks, stride)
}

// tconvGeometryFor builds the geometry for a ConvTranspose3D whose input is coarse.
func tconvGeometryFor(op string, input, kernel *tensor.RawTensor, stride [3]int) convGeometry {
	checkKernel(op, kernel, stride)
	in := volume(op, input)
	ks := kernel.Shape()
	if in.C != ks[4] {
		panic(fmt.Sprintf("%s: input has %d channels, kernel expects %d", op, in.C, ks[4]))
	}
	var fine [3]int
	for i, d := range in.Spatial() {
		fine[i] = d * stride[i]
	}
	return newConvGeometry(in.N, fine, in.Spatial(), ks, stride)
}

func (g convGeometry) fineShape() tensor.Shape {
	return tensor.Shape{g.n, g.fine[0], g.fine[1], g.fine[2], g.cFine}
}

func (g convGeometry) coarseShape() tensor.Shape {
	return tensor.Shape{g.n, g.coarse[0], g.coarse[1], g.coarse[2], g.cCoarse}
}

// taps calls fn for every (fine offset, coarse offset, kernel offset) triple
// that lies inside both grids. Offsets point at channel 0 of the voxel.
func (g convGeometry) taps(fn func(fineOff, coarseOff, kernelOff int)) {
	for slab := 0; slab < g.slabs(); slab++ {
		g.slabTaps(slab, fn)
	}
}

// slabs is the number of (sample, coarse depth) planes.
func (g convGeometry) slabs() int {
	return g.n * g.coarse[0]
}

// slabTaps is taps restricted to one coarse plane. Distinct slabs never
// share a coarse offset.
func (g convGeometry) slabTaps(slab int, fn func(fineOff, coarseOff, kernelOff int)) {
	kStride := g.cFine * g.cCoarse
	b, cd := slab/g.coarse[0], slab%g.coarse[0]
	for ch := 0; ch < g.coarse[1]; ch++ {
		for cw := 0; cw < g.coarse[2]; cw++ {
			coarseOff := ((slab*g.coarse[1]+ch)*g.coarse[2] + cw) * g.cCoarse
			for kd := 0; kd < g.kernel[0]; kd++ {
				fd := cd*g.stride[0] - g.pad[0] + kd
				if fd < 0 || fd >= g.fine[0] {
					continue
				}
				for kh := 0; kh < g.kernel[1]; kh++ {
					fh := ch*g.stride[1] - g.pad[1] + kh
					if fh < 0 || fh >= g.fine[1] {
						continue
					}
					for kw := 0; kw < g.kernel[2]; kw++ {
						fw := cw*g.stride[2] - g.pad[2] + kw
						if fw < 0 || fw >= g.fine[2] {
							continue
						}
						fineOff := (((b*g.fine[0]+fd)*g.fine[1]+fh)*g.fine[2] + fw) * g.cFine
						kernelOff := ((kd*g.kernel[1]+kh)*g.kernel[2] + kw) * kStride
						fn(fineOff, coarseOff, kernelOff)
					}
				}
			}
		}
	}
}

// gather computes coarse[cc] += Σ fine[cf] * k[cf, cc], one coarse plane
// per task.
func gather[T float](par parallel.Config, g convGeometry, fine, kernel, coarse []T) {
	parallel.For(g.slabs(), par, func(slab int) {
		g.slabTaps(slab, func(fo, co, ko int) {
			for cf := 0; cf < g.cFine; cf++ {
				v := fine[fo+cf]
				if v == 0 {
					continue
				}
				row := kernel[ko+cf*g.cCoarse : ko+(cf+1)*g.cCoarse]
				out := coarse[co : co+g.cCoarse]
				for cc, w := range row {
					out[cc] += v * w
				}
			}
		})
	})
}

// scatter computes fine[cf] += Σ coarse[cc] * k[cf, cc], one sample per
// task. Neighbouring planes of a sample overlap in the fine grid, so the
// planes of a sample are visited in order.
func scatter[T float](par parallel.Config, g convGeometry, coarse, kernel, fine []T) {
	parallel.For(g.n, par, func(b int) {
		for cd := 0; cd < g.coarse[0]; cd++ {
			g.slabTaps(b*g.coarse[0]+cd, func(fo, co, ko int) {
				in := coarse[co : co+g.cCoarse]
				for cf := 0; cf < g.cFine; cf++ {
					row := kernel[ko+cf*g.cCoarse : ko+(cf+1)*g.cCoarse]
					var sum T
					for cc, w := range row {
						sum += in[cc] * w
					}
					fine[fo+cf] += sum
				}
			})
		}
	})
}

// kernelGrad computes k[cf, cc] += Σ fine[cf] * coarse[cc].
func kernelGrad[T float](g convGeometry, fine, coarse, kernel []T) {
	g.taps(func(fo, co, ko int) {
		in := coarse[co : co+g.cCoarse]
		for cf := 0; cf < g.cFine; cf++ {
			v := fine[fo+cf]
			if v == 0 {
				continue
			}
			row := kernel[ko+cf*g.cCoarse : ko+(cf+1)*g.cCoarse]
			for cc, c := range in {
				row[cc] += v * c
			}
		}
	})
}

// Conv3D performs a 3D convolution with "same" padding.
//
// Input:  [N, D, H, W, Cin]
// Kernel: [KD, KH, KW, Cin, Cout]
// Output: [N, ceil(D/sd), ceil(H/sh), ceil(W/sw), Cout].
func (cpu *CPUBackend) Conv3D(input, kernel *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	g := convGeometryFor("conv3d", input, kernel, stride)
	result := cpu.newLike("conv3d", input, g.coarseShape())
	switch input.DType() {
	case tensor.Float32:
		gather(cpu.parallel, g, view[float32](input), view[float32](kernel), view[float32](result))
	case tensor.Float64:
		gather(cpu.parallel, g, view[float64](input), view[float64](kernel), view[float64](result))
	default:
		panic(unsupported("conv3d", input.DType()))
	}
	return result
}

// Conv3DInputBackward computes the gradient of Conv3D w.r.t. its input.
func (cpu *CPUBackend) Conv3DInputBackward(input, kernel, grad *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	g := convGeometryFor("conv3d_input_backward", input, kernel, stride)
	result := cpu.newLike("conv3d_input_backward", input, g.fineShape())
	switch input.DType() {
	case tensor.Float32:
		scatter(cpu.parallel, g, view[float32](grad), view[float32](kernel), view[float32](result))
	case tensor.Float64:
		scatter(cpu.parallel, g, view[float64](grad), view[float64](kernel), view[float64](result))
	default:
		panic(unsupported("conv3d_input_backward", input.DType()))
	}
	return result
}

// Conv3DKernelBackward computes the gradient of Conv3D w.r.t. its kernel.
func (cpu *CPUBackend) Conv3DKernelBackward(input, kernel, grad *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	g := convGeometryFor("conv3d_kernel_backward", input, kernel, stride)
	result := cpu.newLike("conv3d_kernel_backward", kernel, kernel.Shape())
	switch input.DType() {
	case tensor.Float32:
		kernelGrad(g, view[float32](input), view[float32](grad), view[float32](result))
	case tensor.Float64:
		kernelGrad(g, view[float64](input), view[float64](grad), view[float64](result))
	default:
		panic(unsupported("conv3d_kernel_backward", input.DType()))
	}
	return result
}

// ConvTranspose3D performs a 3D transposed convolution with "same" padding.
//
// Input:  [N, D, H, W, Cin]
// Kernel: [KD, KH, KW, Cout, Cin]
// Output: [N, D*sd, H*sh, W*sw, Cout].
func (cpu *CPUBackend) ConvTranspose3D(input, kernel *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	g := tconvGeometryFor("conv_transpose3d", input, kernel, stride)
	result := cpu.newLike("conv_transpose3d", input, g.fineShape())
	switch input.DType() {
	case tensor.Float32:
		scatter(cpu.parallel, g, view[float32](input), view[float32](kernel), view[float32](result))
	case tensor.Float64:
		scatter(cpu.parallel, g, view[float64](input), view[float64](kernel), view[float64](result))
	default:
		panic(unsupported("conv_transpose3d", input.DType()))
	}
	return result
}

// ConvTranspose3DInputBackward computes the gradient of ConvTranspose3D w.r.t. its input.
func (cpu *CPUBackend) ConvTranspose3DInputBackward(input, kernel, grad *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	g := tconvGeometryFor("conv_transpose3d_input_backward", input, kernel, stride)
	result := cpu.newLike("conv_transpose3d_input_backward", input, g.coarseShape())
	switch input.DType() {
	case tensor.Float32:
		gather(cpu.parallel, g, view[float32](grad), view[float32](kernel), view[float32](result))
	case tensor.Float64:
		gather(cpu.parallel, g, view[float64](grad), view[float64](kernel), view[float64](result))
	default:
		panic(unsupported("conv_transpose3d_input_backward", input.DType()))
	}
	return result
}

// ConvTranspose3DKernelBackward computes the gradient of ConvTranspose3D w.r.t. its kernel.
func (cpu *CPUBackend) ConvTranspose3DKernelBackward(input, kernel, grad *tensor.RawTensor, stride [3]int) *tensor.RawTensor {
	g := tconvGeometryFor("conv_transpose3d_kernel_backward", input, kernel, stride)
	result := cpu.newLike("conv_transpose3d_kernel_backward", kernel, kernel.Shape())
	switch input.DType() {
	case tensor.Float32:
		kernelGrad(g, view[float32](grad), view[float32](input), view[float32](result))
	case tensor.Float64:
		kernelGrad(g, view[float64](grad), view[float64](input), view[float64](result))
	default:
		panic(unsupported("conv_transpose3d_kernel_backward", input.DType()))
	}
	return result
}
