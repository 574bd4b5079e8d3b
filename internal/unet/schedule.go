package unet

import "fmt"

// BlockKind identifies the structure of a stage.
type BlockKind int

// Stage kinds in forward order.
const (
	KindDown BlockKind = iota
	KindBottom
	KindUp
	KindUpNoSkip
	KindFinal
)

// String returns the block type name.
func (k BlockKind) String() string {
	switch k {
	case KindDown:
		return "DownBlock"
	case KindBottom:
		return "BottomBlock"
	case KindUp:
		return "UpBlock"
	case KindUpNoSkip:
		return "UpBlockNoSkip"
	case KindFinal:
		return "Conv3D+tanh"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// LayerConfig is the derived configuration of one stage. Dims are
// (depth, height, width).
type LayerConfig struct {
	Name string
	Kind BlockKind

	InChannels   int // input features plus the time channel, if any
	Channels     int
	SkipChannels int // channels of the emitted (down) or consumed (up) skip

	Kernel [3]int
	Stride [3]int

	InputDims  [3]int
	OutputDims [3]int

	// UpsampleFactor is the depth repeat applied to the skip of an up
	// stage, or to the output of the bottom stage. 1 means no repeat.
	UpsampleFactor int

	Embeddings      int  // codebook size, 0 without a quantizer
	TimeChannel     bool // time is concatenated to the stage input
	TimeConditioned bool // time is passed to the quantizer
}

// HasQuantizer reports whether the stage ends in a quantizer.
func (l LayerConfig) HasQuantizer() bool { return l.Embeddings > 0 }

// Plan is the complete stage schedule of a network.
type Plan struct {
	Stages []LayerConfig // forward order: down_0.., bottom, ..up_0, [upsamp], final

	// InputFactors repeats the input volume to the target grid. The copy
	// feeds the residual sum, the output quantizer sum and the skip of
	// the up-sampling stage.
	InputFactors [3]int
	NeedsInput   bool

	OutputEmbeddings int
}

// NewPlan derives the stage schedule of cfg and checks that shapes
// propagate through the whole graph to the target dims.
func NewPlan(cfg Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	layers := cfg.Layers
	channels := func(i int) int { return min(cfg.NC<<i, MaxChannels) }
	timeChannel := func(stage string) bool {
		return cfg.TimeInput && !(cfg.embeddings(stage) > 0 && cfg.VQTime)
	}
	stage := func(name string, kind BlockKind) LayerConfig {
		l := LayerConfig{
			Name:           name,
			Kind:           kind,
			UpsampleFactor: 1,
			Embeddings:     cfg.embeddings(name),
			TimeChannel:    timeChannel(name),
		}
		l.TimeConditioned = l.HasQuantizer() && cfg.VQTime && cfg.TimeInput
		return l
	}
	withTime := func(l LayerConfig, in int) int {
		if l.TimeChannel {
			return in + 1
		}
		return in
	}

	decoderTarget := cfg.TargetDims
	if cfg.UpsampleLayer {
		if decoderTarget[1]%2 != 0 || decoderTarget[2]%2 != 0 {
			return nil, fmt.Errorf("upsample_layer needs even target height and width, got %v: %w",
				cfg.TargetDims, ErrShapeMismatch)
		}
		decoderTarget[1] /= 2
		decoderTarget[2] /= 2
	}

	source := make([][3]int, layers+1)
	target := make([][3]int, layers+1)
	sourceKernel := make([][3]int, layers)
	sourceStride := make([][3]int, layers)
	targetKernel := make([][3]int, layers)
	targetStride := make([][3]int, layers)
	source[0], target[0] = cfg.SourceDims, decoderTarget
	for i := range layers {
		source[i+1], sourceKernel[i], sourceStride[i] = halve(source[i])
		target[i+1], targetKernel[i], targetStride[i] = halve(target[i])
	}

	plan := &Plan{
		Stages:           make([]LayerConfig, 0, 2*layers+3),
		OutputEmbeddings: cfg.embeddings(FinalStage),
	}

	inChannels := 1
	for i := range layers {
		l := stage(DownStage(i), KindDown)
		l.InChannels = withTime(l, inChannels)
		l.Channels = channels(i)
		l.SkipChannels = l.Channels
		l.Kernel, l.Stride = sourceKernel[i], sourceStride[i]
		l.InputDims, l.OutputDims = source[i], source[i+1]
		plan.Stages = append(plan.Stages, l)
		inChannels = l.Channels
	}

	bottom := stage(BottomStage, KindBottom)
	bottom.InChannels = withTime(bottom, inChannels)
	bottom.Channels, bottom.Kernel = cfg.NC, [3]int{2, 4, 4}
	if layers > 0 {
		bottom.Channels, bottom.Kernel = channels(layers-1), sourceKernel[layers-1]
	}
	bottom.Stride = [3]int{1, 1, 1}
	bottom.InputDims = source[layers]
	factor, err := depthFactor(source[layers], target[layers])
	if err != nil {
		return nil, fmt.Errorf("%s output %v cannot reach decoder dims %v: %w",
			BottomStage, source[layers], target[layers], err)
	}
	bottom.UpsampleFactor = factor
	bottom.OutputDims = target[layers]
	plan.Stages = append(plan.Stages, bottom)

	dims, inChannels := bottom.OutputDims, bottom.Channels
	for i := layers - 1; i >= 0; i-- {
		l := stage(UpStage(i), KindUp)
		l.InChannels = withTime(l, inChannels)
		l.Channels = channels(i)
		l.SkipChannels = channels(i)
		l.Kernel, l.Stride = targetKernel[i], targetStride[i]
		l.InputDims = dims
		l.OutputDims = scale(dims, l.Stride)
		factor, err := depthFactor(source[i], l.OutputDims)
		if err != nil {
			return nil, fmt.Errorf("%s skip %v cannot reach %v: %w", l.Name, source[i], l.OutputDims, err)
		}
		l.UpsampleFactor = factor
		plan.Stages = append(plan.Stages, l)
		dims, inChannels = l.OutputDims, l.Channels
	}
	if dims != decoderTarget {
		return nil, fmt.Errorf("decoder produces %v, want %v: %w", dims, decoderTarget, ErrShapeMismatch)
	}

	hw := 1
	if cfg.UpsampleLayer {
		hw = 2
	}
	plan.InputFactors = [3]int{cfg.TargetDims[0] / cfg.SourceDims[0], hw, hw}
	plan.NeedsInput = cfg.Residual || plan.OutputEmbeddings > 0 || (cfg.UpsampleLayer && cfg.UpsampleSkip)
	if plan.NeedsInput && scale(cfg.SourceDims, plan.InputFactors) != cfg.TargetDims {
		return nil, fmt.Errorf("input %v repeated by %v does not match target %v: %w",
			cfg.SourceDims, plan.InputFactors, cfg.TargetDims, ErrShapeMismatch)
	}

	if cfg.UpsampleLayer {
		l := stage(UpsampleStage, KindUpNoSkip)
		if cfg.UpsampleSkip {
			l.Kind = KindUp
			l.SkipChannels = 1
		}
		l.InChannels = withTime(l, inChannels)
		l.Channels = inChannels
		l.Kernel, l.Stride = [3]int{2, 4, 4}, [3]int{1, 2, 2}
		l.InputDims = dims
		l.OutputDims = scale(dims, l.Stride)
		plan.Stages = append(plan.Stages, l)
		dims = l.OutputDims
	}

	final := LayerConfig{
		Name:           FinalStage,
		Kind:           KindFinal,
		InChannels:     inChannels,
		Channels:       1,
		Kernel:         [3]int{1, 1, 1},
		Stride:         [3]int{1, 1, 1},
		InputDims:      dims,
		OutputDims:     dims,
		UpsampleFactor: 1,
		Embeddings:     plan.OutputEmbeddings,
	}
	final.TimeConditioned = final.HasQuantizer() && cfg.VQTime && cfg.TimeInput
	plan.Stages = append(plan.Stages, final)

	if dims != cfg.TargetDims {
		return nil, fmt.Errorf("network produces %v, want %v: %w", dims, cfg.TargetDims, ErrShapeMismatch)
	}
	return plan, nil
}

// Stage returns the stage called name.
func (p *Plan) Stage(name string) (LayerConfig, bool) {
	for _, l := range p.Stages {
		if l.Name == name {
			return l, true
		}
	}
	return LayerConfig{}, false
}

// Layers returns the number of encoder stages.
func (p *Plan) Layers() int {
	n := 0
	for _, l := range p.Stages {
		if l.Kind == KindDown {
			n++
		}
	}
	return n
}

// halve applies one encoder step: shallow volumes are down-sampled on all
// axes, deeper ones in-plane only.
func halve(dims [3]int) (next, kernel, stride [3]int) {
	if dims[0]/2 < 2 {
		kernel, stride = [3]int{4, 4, 4}, [3]int{2, 2, 2}
	} else {
		kernel, stride = [3]int{2, 4, 4}, [3]int{1, 2, 2}
	}
	for i := range 3 {
		next[i] = (dims[i] + stride[i] - 1) / stride[i]
	}
	return next, kernel, stride
}

func scale(dims, factors [3]int) [3]int {
	return [3]int{dims[0] * factors[0], dims[1] * factors[1], dims[2] * factors[2]}
}

// depthFactor returns the depth repeat taking from to to. Height and width
// must already agree.
func depthFactor(from, to [3]int) (int, error) {
	if from[1] != to[1] || from[2] != to[2] || to[0] < from[0] || to[0]%from[0] != 0 {
		return 0, ErrShapeMismatch
	}
	return to[0] / from[0], nil
}
