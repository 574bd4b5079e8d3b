// Package unet builds and runs the volumetric encoder-decoder network.
//
// A Config is turned into a Plan (the stage schedule, fully shape-checked)
// and then into a Network whose blocks are wired once and never mutated:
//
//	cfg := unet.DefaultConfig()
//	cfg.VQLayers = map[string]int{"bottom": 64}
//	net, err := unet.New(cfg, cpu.New())
//	out, err := net.Forward(x, nil) // x: [N, D, H, W, 1]
//
// Forward composes encoder → bottom → decoder → [up-sampling stage] → final
// projection → [output quantizer] and returns every quantizer loss
// explicitly in Output.Losses.
package unet

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/vq-sce/vqsce/internal/nn"
	"github.com/vq-sce/vqsce/internal/tensor"
	"github.com/vq-sce/vqsce/internal/vq"
)

// StageLoss is the quantizer loss produced by one stage.
type StageLoss[B tensor.Backend] struct {
	Stage string
	Loss  *tensor.Tensor[float32, B]
	// Codes holds the selected code of every quantized vector, batch-major.
	Codes []int
}

// Output is the result of a forward pass.
//
//	output VQ | residual | Prediction      | Quantized
//	no        | no       | final(x)        | nil
//	no        | yes      | final(x) + x₀   | nil
//	yes       | no       | final(x)        | VQ(final(x)) + x₀
//	yes       | yes      | final(x) + x₀   | VQ(final(x)) + x₀
//
// where x₀ is the input repeated to the target grid.
type Output[B tensor.Backend] struct {
	Prediction *tensor.Tensor[float32, B]
	Quantized  *tensor.Tensor[float32, B]
	Losses     []StageLoss[B]
}

// TotalLoss returns the sum of all quantizer losses, or nil when the network
// has no quantizer.
func (o *Output[B]) TotalLoss() *tensor.Tensor[float32, B] {
	if len(o.Losses) == 0 {
		return nil
	}
	total := o.Losses[0].Loss
	for _, l := range o.Losses[1:] {
		total = total.Add(l.Loss)
	}
	return total
}

// Network is a built encoder-decoder. Forward only reads parameters, so
// concurrent forward passes are safe on a non-recording backend.
type Network[B tensor.Backend] struct {
	cfg  Config
	plan *Plan

	encoder  []*DownBlock[B]
	bottom   *BottomBlock[B]
	decoder  []*UpBlock[B] // deepest stage first
	upsample Block[B]      // *UpBlock, *UpBlockNoSkip or nil
	final    *nn.Conv3D[B]
	tanh     *nn.Tanh[B]
	outputVQ *vq.Quantizer[B]

	backend B
}

// New validates cfg and builds the network. Weights are drawn from a
// generator seeded with cfg.Seed.
func New[B tensor.Backend](cfg Config, backend B) (*Network[B], error) {
	plan, err := NewPlan(cfg)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // G404: weight initialization does not need a CSPRNG
	rng := rand.New(rand.NewSource(cfg.Seed))
	n := &Network[B]{
		cfg:     cfg,
		plan:    plan,
		tanh:    nn.NewTanh[B](),
		backend: backend,
	}

	for _, l := range plan.Stages {
		if err := n.build(l, rng); err != nil {
			return nil, stageError(l.Name, err)
		}
	}

	slog.Debug("built network",
		"layers", cfg.Layers,
		"stages", len(plan.Stages),
		"quantizers", len(n.Quantizers()),
		"parameters", n.NumParameters(),
		"backend", backend.Name())
	return n, nil
}

func (n *Network[B]) build(l LayerConfig, rng *rand.Rand) error {
	beta := n.cfg.VQBeta
	switch l.Kind {
	case KindDown:
		b, err := NewDownBlock(l, beta, rng, n.backend)
		if err != nil {
			return err
		}
		n.encoder = append(n.encoder, b)
	case KindBottom:
		b, err := NewBottomBlock(l, beta, rng, n.backend)
		if err != nil {
			return err
		}
		n.bottom = b
	case KindUp:
		b, err := NewUpBlock(l, beta, rng, n.backend)
		if err != nil {
			return err
		}
		if l.Name == UpsampleStage {
			n.upsample = b
		} else {
			n.decoder = append(n.decoder, b)
		}
	case KindUpNoSkip:
		b, err := NewUpBlockNoSkip(l, beta, rng, n.backend)
		if err != nil {
			return err
		}
		n.upsample = b
	case KindFinal:
		n.final = nn.NewConv3D(FinalStage, l.InChannels, l.Channels, l.Kernel, l.Stride, rng, n.backend)
		if l.HasQuantizer() {
			q, err := vq.New(OutputQuantizer, l.Embeddings, 1, beta, rng, n.backend)
			if err != nil {
				return err
			}
			n.outputVQ = q
		}
	default:
		return fmt.Errorf("unknown block kind %v: %w", l.Kind, ErrInvalidConfig)
	}
	return nil
}

// Forward runs the network on x [N, D, H, W, 1] with source dims (D, H, W).
// t holds one time value per sample; it is required when the network was
// configured with time input and must be nil otherwise.
func (n *Network[B]) Forward(x, t *tensor.Tensor[float32, B]) (*Output[B], error) {
	if err := n.checkInputs(x, t); err != nil {
		return nil, err
	}

	out := &Output[B]{}
	addLoss := func(loss *StageLoss[B]) {
		if loss != nil {
			out.Losses = append(out.Losses, *loss)
		}
	}

	var upsampled *tensor.Tensor[float32, B]
	if n.plan.NeedsInput {
		upsampled = x.Upsample3D(n.plan.InputFactors)
	}

	h := x
	skips := make([]*tensor.Tensor[float32, B], 0, len(n.encoder))
	for _, b := range n.encoder {
		var skip *tensor.Tensor[float32, B]
		var loss *StageLoss[B]
		var err error
		if h, skip, loss, err = b.Forward(h, t); err != nil {
			return nil, stageError(b.cfg.Name, err)
		}
		skips = append(skips, skip)
		addLoss(loss)
	}

	h, loss, err := n.bottom.Forward(h, t)
	if err != nil {
		return nil, stageError(BottomStage, err)
	}
	addLoss(loss)
	h = h.Upsample3D([3]int{n.bottom.cfg.UpsampleFactor, 1, 1})

	for i, b := range n.decoder {
		if h, loss, err = b.Forward(h, skips[len(skips)-1-i], t); err != nil {
			return nil, stageError(b.cfg.Name, err)
		}
		addLoss(loss)
	}

	switch b := n.upsample.(type) {
	case *UpBlock[B]:
		h, loss, err = b.Forward(h, upsampled, t)
	case *UpBlockNoSkip[B]:
		h, loss, err = b.Forward(h, t)
	default:
		loss = nil
	}
	if err != nil {
		return nil, stageError(UpsampleStage, err)
	}
	addLoss(loss)

	projected := n.tanh.Forward(n.final.Forward(h))

	out.Prediction = projected
	if n.cfg.Residual {
		out.Prediction = projected.Add(upsampled)
	}
	if n.outputVQ != nil {
		var qt *tensor.Tensor[float32, B]
		if final := n.plan.Stages[len(n.plan.Stages)-1]; final.TimeConditioned {
			qt = t
		}
		quantized, loss, codes, err := n.outputVQ.Quantize(projected, qt)
		if err != nil {
			return nil, stageError(FinalStage, err)
		}
		out.Quantized = quantized.Add(upsampled)
		addLoss(&StageLoss[B]{Stage: FinalStage, Loss: loss, Codes: codes})
	}
	return out, nil
}

func (n *Network[B]) checkInputs(x, t *tensor.Tensor[float32, B]) error {
	src := n.cfg.SourceDims
	v, err := x.Shape().AsVolume()
	if err != nil || v.N <= 0 || v.Spatial() != src || v.C != 1 {
		return fmt.Errorf("input shape %v, want [N %d %d %d 1]: %w",
			x.Shape(), src[0], src[1], src[2], ErrShapeMismatch)
	}

	switch {
	case n.cfg.TimeInput && t == nil:
		return fmt.Errorf("network expects a time input: %w", ErrShapeMismatch)
	case !n.cfg.TimeInput && t != nil:
		return fmt.Errorf("network was built without time input: %w", ErrShapeMismatch)
	case t != nil && t.NumElements() != v.N:
		return fmt.Errorf("time has %d values for batch %d: %w", t.NumElements(), v.N, ErrShapeMismatch)
	}
	return nil
}

// Config returns the configuration the network was built from.
func (n *Network[B]) Config() Config { return n.cfg }

// Plan returns the stage schedule.
func (n *Network[B]) Plan() *Plan { return n.plan }

// Backend returns the backend the parameters live on.
func (n *Network[B]) Backend() B { return n.backend }

// Blocks returns the convolutional stages in forward order.
func (n *Network[B]) Blocks() []Block[B] {
	blocks := make([]Block[B], 0, len(n.encoder)+len(n.decoder)+2)
	for _, b := range n.encoder {
		blocks = append(blocks, b)
	}
	blocks = append(blocks, n.bottom)
	for _, b := range n.decoder {
		blocks = append(blocks, b)
	}
	if n.upsample != nil {
		blocks = append(blocks, n.upsample)
	}
	return blocks
}

// Quantizers returns every quantizer in forward order, the output
// quantizer last.
func (n *Network[B]) Quantizers() []*vq.Quantizer[B] {
	var qs []*vq.Quantizer[B]
	for _, b := range n.Blocks() {
		if q := b.Quantizer(); q != nil {
			qs = append(qs, q)
		}
	}
	if n.outputVQ != nil {
		qs = append(qs, n.outputVQ)
	}
	return qs
}

// Parameters returns all parameters in forward order.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, b := range n.Blocks() {
		params = append(params, b.Parameters()...)
	}
	params = append(params, n.final.Parameters()...)
	if n.outputVQ != nil {
		params = append(params, n.outputVQ.Parameters()...)
	}
	return params
}

// NumParameters returns the number of scalar weights.
func (n *Network[B]) NumParameters() int {
	total := 0
	for _, p := range n.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}
