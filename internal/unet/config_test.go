package unet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const superResolutionYAML = `
source_dims: [3, 32, 32]
target_dims: [12, 32, 32]
nc: 8
layers: 2
vq_layers:
  bottom: 64
  final: 16
vq_beta: 0.5
residual: true
seed: 7
`

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(superResolutionYAML))
	require.NoError(t, err)

	want := Config{
		SourceDims:   [3]int{3, 32, 32},
		TargetDims:   [3]int{12, 32, 32},
		NC:           8,
		Layers:       2,
		VQLayers:     map[string]int{"bottom": 64, "final": 16},
		VQBeta:       0.5,
		Residual:     true,
		UpsampleSkip: true,
		Seed:         7,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeConfig_EmptyUsesDefaults(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestDecodeConfig_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":      "nc: 8\nchannels: 4\n",
		"short dims":       "source_dims: [32, 32]\n",
		"bad type":         "layers: many\n",
		"invalid values":   "nc: 0\n",
		"unknown vq stage": "layers: 1\nvq_layers: {down_1: 8}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeConfig(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VQLayers = map[string]int{"up_0": 32, "final": 8}
	cfg.VQTime = true
	cfg.TimeInput = true
	cfg.UpsampleSkip = false
	cfg.Seed = -3

	text, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, text, "upsample_skip: false")

	back, err := DecodeConfig(strings.NewReader(text))
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(superResolutionYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.NC)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero source dim", func(c *Config) { c.SourceDims[0] = 0 }},
		{"negative target dim", func(c *Config) { c.TargetDims[2] = -4 }},
		{"zero nc", func(c *Config) { c.NC = 0 }},
		{"too many layers", func(c *Config) { c.Layers = 7 }},
		{"negative layers", func(c *Config) { c.Layers = -1 }},
		{"negative beta", func(c *Config) { c.VQBeta = -0.1 }},
		{"stage beyond depth", func(c *Config) { c.VQLayers = map[string]int{"down_3": 8} }},
		{"upsamp without upsample layer", func(c *Config) { c.VQLayers = map[string]int{"upsamp": 8} }},
		{"misspelled stage", func(c *Config) { c.VQLayers = map[string]int{"bottleneck": 8} }},
		{"zero embeddings", func(c *Config) { c.VQLayers = map[string]int{"bottom": 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfig_StageNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layers = 2
	cfg.UpsampleLayer = true
	assert.Equal(t,
		[]string{"down_0", "down_1", "bottom", "up_1", "up_0", "upsamp", "final"},
		cfg.StageNames())

	cfg.Layers = 0
	cfg.UpsampleLayer = false
	assert.Equal(t, []string{"bottom", "final"}, cfg.StageNames())
}

func TestConfig_MaxLayers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceDims = [3]int{4, 48, 100}
	assert.Equal(t, 5, cfg.MaxLayers())

	cfg.SourceDims = [3]int{4, 1, 1}
	assert.Equal(t, 0, cfg.MaxLayers())
}
