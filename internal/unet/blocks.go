package unet

import (
	"fmt"
	"math/rand"

	"github.com/vq-sce/vqsce/internal/nn"
	"github.com/vq-sce/vqsce/internal/tensor"
	"github.com/vq-sce/vqsce/internal/vq"
)

// Block is the part shared by every stage of the network. The concrete
// kinds are DownBlock, BottomBlock, UpBlock and UpBlockNoSkip; their
// Forward signatures differ by whether they emit or consume a skip.
type Block[B tensor.Backend] interface {
	Config() LayerConfig
	Parameters() []*nn.Parameter[B]
	// Quantizer returns the stage quantizer, or nil.
	Quantizer() *vq.Quantizer[B]
}

// head is the conv→norm→[VQ]→ReLU sequence every block ends with.
type head[B tensor.Backend] struct {
	stage           string
	conv            *nn.Conv3D[B]
	norm            *nn.InstanceNorm[B]
	quantizer       *vq.Quantizer[B]
	timeConditioned bool
}

func newHead[B tensor.Backend](
	l LayerConfig, conv, norm string, in int, stride [3]int, beta float64, rng *rand.Rand, backend B,
) (*head[B], error) {
	h := &head[B]{
		stage:           l.Name,
		conv:            nn.NewConv3D(l.Name+"/"+conv, in, l.Channels, l.Kernel, stride, rng, backend),
		norm:            nn.NewInstanceNorm(l.Name+"/"+norm, l.Channels, backend),
		timeConditioned: l.TimeConditioned,
	}
	if l.HasQuantizer() {
		q, err := vq.New(l.Name+"/vq", l.Embeddings, l.Channels, beta, rng, backend)
		if err != nil {
			return nil, err
		}
		h.quantizer = q
	}
	return h, nil
}

func (h *head[B]) forward(x, t *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], *StageLoss[B], error) {
	x = h.norm.Forward(h.conv.Forward(x))
	if h.quantizer == nil {
		return x.ReLU(), nil, nil
	}

	var qt *tensor.Tensor[float32, B]
	if h.timeConditioned {
		qt = t
	}
	x, loss, codes, err := h.quantizer.Quantize(x, qt)
	if err != nil {
		return nil, nil, err
	}
	return x.ReLU(), &StageLoss[B]{Stage: h.stage, Loss: loss, Codes: codes}, nil
}

func (h *head[B]) parameters() []*nn.Parameter[B] {
	params := append(h.conv.Parameters(), h.norm.Parameters()...)
	if h.quantizer != nil {
		params = append(params, h.quantizer.Parameters()...)
	}
	return params
}

// appendTime tiles t over the spatial grid of x and appends it as the last
// channel when enabled.
func appendTime[B tensor.Backend](x, t *tensor.Tensor[float32, B], enabled bool) (*tensor.Tensor[float32, B], error) {
	if !enabled {
		return x, nil
	}
	v, err := x.Shape().AsVolume()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrShapeMismatch)
	}
	if t == nil {
		return nil, fmt.Errorf("time input required: %w", ErrShapeMismatch)
	}
	if t.NumElements() != v.N {
		return nil, fmt.Errorf("time has %d values for batch %d: %w", t.NumElements(), v.N, ErrShapeMismatch)
	}
	return tensor.ConcatChannels(x, tensor.TileTime(t, v.Spatial())), nil
}

// DownBlock is an encoder stage:
//
//	conv(stride 1)→norm→ReLU (skip) → conv(stride)→norm→[VQ]→ReLU
type DownBlock[B tensor.Backend] struct {
	cfg   LayerConfig
	conv1 *nn.Conv3D[B]
	norm1 *nn.InstanceNorm[B]
	head  *head[B]
}

// NewDownBlock builds the encoder stage described by l.
func NewDownBlock[B tensor.Backend](l LayerConfig, beta float64, rng *rand.Rand, backend B) (*DownBlock[B], error) {
	conv1 := nn.NewConv3D(l.Name+"/conv1", l.InChannels, l.Channels, l.Kernel, [3]int{1, 1, 1}, rng, backend)
	norm1 := nn.NewInstanceNorm(l.Name+"/norm1", l.Channels, backend)
	h, err := newHead(l, "conv2", "norm2", l.Channels, l.Stride, beta, rng, backend)
	if err != nil {
		return nil, err
	}
	return &DownBlock[B]{cfg: l, conv1: conv1, norm1: norm1, head: h}, nil
}

// Forward returns the stage output, the skip tensor and the quantizer loss
// (nil without a quantizer).
func (b *DownBlock[B]) Forward(x, t *tensor.Tensor[float32, B]) (out, skip *tensor.Tensor[float32, B], loss *StageLoss[B], err error) {
	x, err = appendTime(x, t, b.cfg.TimeChannel)
	if err != nil {
		return nil, nil, nil, err
	}
	skip = b.norm1.Forward(b.conv1.Forward(x)).ReLU()
	out, loss, err = b.head.forward(skip, t)
	if err != nil {
		return nil, nil, nil, err
	}
	return out, skip, loss, nil
}

// Config returns the stage configuration.
func (b *DownBlock[B]) Config() LayerConfig { return b.cfg }

// Quantizer returns the stage quantizer, or nil.
func (b *DownBlock[B]) Quantizer() *vq.Quantizer[B] { return b.head.quantizer }

// Parameters returns conv1, norm1, conv2, norm2 and codebook parameters.
func (b *DownBlock[B]) Parameters() []*nn.Parameter[B] {
	params := append(b.conv1.Parameters(), b.norm1.Parameters()...)
	return append(params, b.head.parameters()...)
}

// BottomBlock is the bottleneck: a DownBlock with unit strides and no skip.
type BottomBlock[B tensor.Backend] struct {
	cfg   LayerConfig
	conv1 *nn.Conv3D[B]
	norm1 *nn.InstanceNorm[B]
	head  *head[B]
}

// NewBottomBlock builds the bottleneck described by l.
func NewBottomBlock[B tensor.Backend](l LayerConfig, beta float64, rng *rand.Rand, backend B) (*BottomBlock[B], error) {
	conv1 := nn.NewConv3D(l.Name+"/conv1", l.InChannels, l.Channels, l.Kernel, l.Stride, rng, backend)
	norm1 := nn.NewInstanceNorm(l.Name+"/norm1", l.Channels, backend)
	h, err := newHead(l, "conv2", "norm2", l.Channels, l.Stride, beta, rng, backend)
	if err != nil {
		return nil, err
	}
	return &BottomBlock[B]{cfg: l, conv1: conv1, norm1: norm1, head: h}, nil
}

// Forward returns the stage output and the quantizer loss.
func (b *BottomBlock[B]) Forward(x, t *tensor.Tensor[float32, B]) (out *tensor.Tensor[float32, B], loss *StageLoss[B], err error) {
	x, err = appendTime(x, t, b.cfg.TimeChannel)
	if err != nil {
		return nil, nil, err
	}
	x = b.norm1.Forward(b.conv1.Forward(x)).ReLU()
	return b.head.forward(x, t)
}

// Config returns the stage configuration.
func (b *BottomBlock[B]) Config() LayerConfig { return b.cfg }

// Quantizer returns the stage quantizer, or nil.
func (b *BottomBlock[B]) Quantizer() *vq.Quantizer[B] { return b.head.quantizer }

// Parameters returns conv1, norm1, conv2, norm2 and codebook parameters.
func (b *BottomBlock[B]) Parameters() []*nn.Parameter[B] {
	params := append(b.conv1.Parameters(), b.norm1.Parameters()...)
	return append(params, b.head.parameters()...)
}

// UpBlock is a decoder stage:
//
//	tconv(stride)→norm→ReLU → concat skip → conv→norm→ReLU → conv→norm→[VQ]→ReLU
//
// The skip is repeated along depth by the stage up-sample factor before the
// concatenation.
type UpBlock[B tensor.Backend] struct {
	cfg   LayerConfig
	tconv *nn.ConvTranspose3D[B]
	tnorm *nn.InstanceNorm[B]
	conv1 *nn.Conv3D[B]
	norm1 *nn.InstanceNorm[B]
	head  *head[B]
}

// NewUpBlock builds the decoder stage described by l.
func NewUpBlock[B tensor.Backend](l LayerConfig, beta float64, rng *rand.Rand, backend B) (*UpBlock[B], error) {
	unit := [3]int{1, 1, 1}
	tconv := nn.NewConvTranspose3D(l.Name+"/tconv", l.InChannels, l.Channels, l.Kernel, l.Stride, rng, backend)
	tnorm := nn.NewInstanceNorm(l.Name+"/tnorm", l.Channels, backend)
	conv1 := nn.NewConv3D(l.Name+"/conv1", l.Channels+l.SkipChannels, l.Channels, l.Kernel, unit, rng, backend)
	norm1 := nn.NewInstanceNorm(l.Name+"/norm1", l.Channels, backend)
	h, err := newHead(l, "conv2", "norm2", l.Channels, unit, beta, rng, backend)
	if err != nil {
		return nil, err
	}
	return &UpBlock[B]{cfg: l, tconv: tconv, tnorm: tnorm, conv1: conv1, norm1: norm1, head: h}, nil
}

// Forward returns the stage output and the quantizer loss.
func (b *UpBlock[B]) Forward(x, skip, t *tensor.Tensor[float32, B]) (out *tensor.Tensor[float32, B], loss *StageLoss[B], err error) {
	x, err = appendTime(x, t, b.cfg.TimeChannel)
	if err != nil {
		return nil, nil, err
	}
	x = b.tnorm.Forward(b.tconv.Forward(x)).ReLU()

	skip = skip.Upsample3D([3]int{b.cfg.UpsampleFactor, 1, 1})
	want := x.Shape().Clone()
	want[4] = b.cfg.SkipChannels
	if !skip.Shape().Equal(want) {
		return nil, nil, fmt.Errorf("skip shape %v after depth repeat %d, want %v: %w",
			skip.Shape(), b.cfg.UpsampleFactor, want, ErrShapeMismatch)
	}

	x = tensor.ConcatChannels(x, skip)
	x = b.norm1.Forward(b.conv1.Forward(x)).ReLU()
	return b.head.forward(x, t)
}

// Config returns the stage configuration.
func (b *UpBlock[B]) Config() LayerConfig { return b.cfg }

// Quantizer returns the stage quantizer, or nil.
func (b *UpBlock[B]) Quantizer() *vq.Quantizer[B] { return b.head.quantizer }

// Parameters returns tconv, tnorm, conv1, norm1, conv2, norm2 and codebook parameters.
func (b *UpBlock[B]) Parameters() []*nn.Parameter[B] {
	params := append(b.tconv.Parameters(), b.tnorm.Parameters()...)
	params = append(params, b.conv1.Parameters()...)
	params = append(params, b.norm1.Parameters()...)
	return append(params, b.head.parameters()...)
}

// UpBlockNoSkip is an UpBlock without the skip concatenation:
//
//	tconv(stride)→norm→ReLU → conv→norm→[VQ]→ReLU
type UpBlockNoSkip[B tensor.Backend] struct {
	cfg   LayerConfig
	tconv *nn.ConvTranspose3D[B]
	tnorm *nn.InstanceNorm[B]
	head  *head[B]
}

// NewUpBlockNoSkip builds the skip-less up-sampling stage described by l.
func NewUpBlockNoSkip[B tensor.Backend](l LayerConfig, beta float64, rng *rand.Rand, backend B) (*UpBlockNoSkip[B], error) {
	tconv := nn.NewConvTranspose3D(l.Name+"/tconv", l.InChannels, l.Channels, l.Kernel, l.Stride, rng, backend)
	tnorm := nn.NewInstanceNorm(l.Name+"/tnorm", l.Channels, backend)
	h, err := newHead(l, "conv1", "norm1", l.Channels, [3]int{1, 1, 1}, beta, rng, backend)
	if err != nil {
		return nil, err
	}
	return &UpBlockNoSkip[B]{cfg: l, tconv: tconv, tnorm: tnorm, head: h}, nil
}

// Forward returns the stage output and the quantizer loss.
func (b *UpBlockNoSkip[B]) Forward(x, t *tensor.Tensor[float32, B]) (out *tensor.Tensor[float32, B], loss *StageLoss[B], err error) {
	x, err = appendTime(x, t, b.cfg.TimeChannel)
	if err != nil {
		return nil, nil, err
	}
	x = b.tnorm.Forward(b.tconv.Forward(x)).ReLU()
	return b.head.forward(x, t)
}

// Config returns the stage configuration.
func (b *UpBlockNoSkip[B]) Config() LayerConfig { return b.cfg }

// Quantizer returns the stage quantizer, or nil.
func (b *UpBlockNoSkip[B]) Quantizer() *vq.Quantizer[B] { return b.head.quantizer }

// Parameters returns tconv, tnorm, conv1, norm1 and codebook parameters.
func (b *UpBlockNoSkip[B]) Parameters() []*nn.Parameter[B] {
	params := append(b.tconv.Parameters(), b.tnorm.Parameters()...)
	return append(params, b.head.parameters()...)
}
