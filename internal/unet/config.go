package unet

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"math/bits"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// MaxChannels caps the feature channels of any stage.
const MaxChannels = 512

// Stage names. Encoder and decoder stages are numbered from the top of the
// network: down_0 sees the input volume and up_0 produces the last decoder
// features.
const (
	BottomStage   = "bottom"
	UpsampleStage = "upsamp"
	FinalStage    = "final"

	// OutputQuantizer is the state-dict prefix of the quantizer selected by
	// the "final" vq_layers key.
	OutputQuantizer = "output_vq"
)

// DownStage returns the name of encoder stage i.
func DownStage(i int) string { return fmt.Sprintf("down_%d", i) }

// UpStage returns the name of decoder stage i.
func UpStage(i int) string { return fmt.Sprintf("up_%d", i) }

// Config describes a network. Dims are (depth, height, width).
type Config struct {
	SourceDims    [3]int         `yaml:"source_dims"`
	TargetDims    [3]int         `yaml:"target_dims"`
	NC            int            `yaml:"nc"`
	Layers        int            `yaml:"layers"`
	VQLayers      map[string]int `yaml:"vq_layers,omitempty"`
	VQBeta        float64        `yaml:"vq_beta"`
	VQTime        bool           `yaml:"vq_time"`
	UpsampleLayer bool           `yaml:"upsample_layer"`
	Residual      bool           `yaml:"residual"`

	// TimeInput makes Forward require a per-sample time value.
	TimeInput bool `yaml:"time_input"`
	// UpsampleSkip concatenates the up-sampled input as the skip of the
	// extra up-sampling stage.
	UpsampleSkip bool  `yaml:"upsample_skip"`
	Seed         int64 `yaml:"seed"`
}

// DefaultConfig returns the configuration used for keys a config file omits.
func DefaultConfig() Config {
	return Config{
		SourceDims:   [3]int{12, 64, 64},
		TargetDims:   [3]int{12, 64, 64},
		NC:           16,
		Layers:       3,
		VQBeta:       0.25,
		UpsampleSkip: true,
	}
}

// DecodeConfig reads a YAML config from r on top of DefaultConfig.
// Unknown keys are rejected.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %v: %w", err, ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	//nolint:gosec // G304: path comes from the caller
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()
	return DecodeConfig(f)
}

// YAML returns the config as YAML text.
func (c Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(out), nil
}

// MaxLayers returns floor(log2(min(height, width))) of the source volume.
func (c Config) MaxLayers() int {
	m := min(c.SourceDims[1], c.SourceDims[2])
	if m <= 0 {
		return 0
	}
	return bits.Len(uint(m)) - 1
}

// StageNames lists every stage a vq_layers key may name, in forward order.
func (c Config) StageNames() []string {
	names := make([]string, 0, 2*c.Layers+3)
	for i := 0; i < c.Layers; i++ {
		names = append(names, DownStage(i))
	}
	names = append(names, BottomStage)
	for i := c.Layers - 1; i >= 0; i-- {
		names = append(names, UpStage(i))
	}
	if c.UpsampleLayer {
		names = append(names, UpsampleStage)
	}
	return append(names, FinalStage)
}

// Validate checks everything that does not depend on shape propagation.
func (c Config) Validate() error {
	for i := range 3 {
		if c.SourceDims[i] <= 0 || c.TargetDims[i] <= 0 {
			return fmt.Errorf("dims must be positive, got source %v target %v: %w",
				c.SourceDims, c.TargetDims, ErrInvalidConfig)
		}
	}
	if c.NC <= 0 {
		return fmt.Errorf("nc must be positive, got %d: %w", c.NC, ErrInvalidConfig)
	}
	if maxLayers := c.MaxLayers(); c.Layers < 0 || c.Layers > maxLayers {
		return fmt.Errorf("layers must be in [0, %d] for source %v, got %d: %w",
			maxLayers, c.SourceDims, c.Layers, ErrInvalidConfig)
	}
	if c.VQBeta < 0 {
		return fmt.Errorf("vq_beta must be non-negative, got %g: %w", c.VQBeta, ErrInvalidConfig)
	}

	stages := c.StageNames()
	for _, name := range slices.Sorted(maps.Keys(c.VQLayers)) {
		if !slices.Contains(stages, name) {
			return fmt.Errorf("vq_layers: unknown stage %q (valid: %v): %w", name, stages, ErrInvalidConfig)
		}
		if k := c.VQLayers[name]; k <= 0 {
			return fmt.Errorf("vq_layers: %s needs a positive number of embeddings, got %d: %w",
				name, k, ErrInvalidConfig)
		}
	}
	return nil
}

// embeddings returns the codebook size configured for stage, 0 for none.
func (c Config) embeddings(stage string) int {
	return c.VQLayers[stage]
}
