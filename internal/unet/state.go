package unet

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/vq-sce/vqsce/internal/tensor"
)

// StateDict maps parameter names to tensors.
type StateDict = orderedmap.OrderedMap[string, *tensor.RawTensor]

// StateDict returns a copy of every parameter keyed by name
// ("down_0/conv1/kernel", "bottom/vq/codebook", "output_vq/codebook", ...),
// in forward order.
func (n *Network[B]) StateDict() *StateDict {
	sd := orderedmap.New[string, *tensor.RawTensor]()
	for _, p := range n.Parameters() {
		sd.Set(p.Name(), p.Tensor().Raw().Clone())
	}
	return sd
}

// LoadStateDict copies sd into the network parameters. sd must hold exactly
// the network's parameter names with matching shapes; nothing is written
// unless every entry checks out.
func (n *Network[B]) LoadStateDict(sd *StateDict) error {
	params := n.Parameters()
	known := make(map[string]struct{}, len(params))
	for _, p := range params {
		known[p.Name()] = struct{}{}

		raw, ok := sd.Get(p.Name())
		if !ok {
			return fmt.Errorf("missing %s: %w", p.Name(), ErrStateDict)
		}
		if raw.DType() != tensor.Float32 {
			return fmt.Errorf("%s has dtype %s, want float32: %w", p.Name(), raw.DType(), ErrStateDict)
		}
		if want := p.Tensor().Shape(); !raw.Shape().Equal(want) {
			return fmt.Errorf("%s has shape %v, want %v: %w", p.Name(), raw.Shape(), want, ErrShapeMismatch)
		}
	}
	for pair := sd.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := known[pair.Key]; !ok {
			return fmt.Errorf("unexpected %s: %w", pair.Key, ErrStateDict)
		}
	}

	for _, p := range params {
		raw, _ := sd.Get(p.Name())
		if err := p.Load(raw); err != nil {
			return err
		}
	}
	return nil
}
