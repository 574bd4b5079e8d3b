package unet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stageRow struct {
	Name           string
	Kind           BlockKind
	In, Out, Skip  int
	Kernel, Stride [3]int
	From, To       [3]int
	Repeat         int
}

func stageRows(p *Plan) []stageRow {
	rows := make([]stageRow, len(p.Stages))
	for i, l := range p.Stages {
		rows[i] = stageRow{
			Name: l.Name, Kind: l.Kind,
			In: l.InChannels, Out: l.Channels, Skip: l.SkipChannels,
			Kernel: l.Kernel, Stride: l.Stride,
			From: l.InputDims, To: l.OutputDims,
			Repeat: l.UpsampleFactor,
		}
	}
	return rows
}

var (
	k244 = [3]int{2, 4, 4}
	k444 = [3]int{4, 4, 4}
	k111 = [3]int{1, 1, 1}
	s122 = [3]int{1, 2, 2}
	s222 = [3]int{2, 2, 2}
	s111 = [3]int{1, 1, 1}
)

func TestNewPlan_InPlaneSchedule(t *testing.T) {
	plan, err := NewPlan(DefaultConfig())
	require.NoError(t, err)

	want := []stageRow{
		{"down_0", KindDown, 1, 16, 16, k244, s122, [3]int{12, 64, 64}, [3]int{12, 32, 32}, 1},
		{"down_1", KindDown, 16, 32, 32, k244, s122, [3]int{12, 32, 32}, [3]int{12, 16, 16}, 1},
		{"down_2", KindDown, 32, 64, 64, k244, s122, [3]int{12, 16, 16}, [3]int{12, 8, 8}, 1},
		{"bottom", KindBottom, 64, 64, 0, k244, s111, [3]int{12, 8, 8}, [3]int{12, 8, 8}, 1},
		{"up_2", KindUp, 64, 64, 64, k244, s122, [3]int{12, 8, 8}, [3]int{12, 16, 16}, 1},
		{"up_1", KindUp, 64, 32, 32, k244, s122, [3]int{12, 16, 16}, [3]int{12, 32, 32}, 1},
		{"up_0", KindUp, 32, 16, 16, k244, s122, [3]int{12, 32, 32}, [3]int{12, 64, 64}, 1},
		{"final", KindFinal, 16, 1, 0, k111, s111, [3]int{12, 64, 64}, [3]int{12, 64, 64}, 1},
	}
	if diff := cmp.Diff(want, stageRows(plan)); diff != "" {
		t.Errorf("schedule mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, plan.NeedsInput)
	assert.Equal(t, 3, plan.Layers())
	assert.Zero(t, plan.OutputEmbeddings)
}

func TestNewPlan_SuperResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceDims = [3]int{3, 16, 16}
	cfg.TargetDims = [3]int{12, 16, 16}
	cfg.NC = 4
	cfg.Layers = 2
	cfg.Residual = true

	plan, err := NewPlan(cfg)
	require.NoError(t, err)

	// Shallow source volumes are halved on every axis, the deep target
	// in-plane only; skips and the bottleneck are repeated along depth.
	want := []stageRow{
		{"down_0", KindDown, 1, 4, 4, k444, s222, [3]int{3, 16, 16}, [3]int{2, 8, 8}, 1},
		{"down_1", KindDown, 4, 8, 8, k444, s222, [3]int{2, 8, 8}, [3]int{1, 4, 4}, 1},
		{"bottom", KindBottom, 8, 8, 0, k444, s111, [3]int{1, 4, 4}, [3]int{12, 4, 4}, 12},
		{"up_1", KindUp, 8, 8, 8, k244, s122, [3]int{12, 4, 4}, [3]int{12, 8, 8}, 6},
		{"up_0", KindUp, 8, 4, 4, k244, s122, [3]int{12, 8, 8}, [3]int{12, 16, 16}, 4},
		{"final", KindFinal, 4, 1, 0, k111, s111, [3]int{12, 16, 16}, [3]int{12, 16, 16}, 1},
	}
	if diff := cmp.Diff(want, stageRows(plan)); diff != "" {
		t.Errorf("schedule mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, plan.NeedsInput)
	assert.Equal(t, [3]int{4, 1, 1}, plan.InputFactors)
}

func TestNewPlan_NoLayers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceDims = [3]int{4, 8, 8}
	cfg.TargetDims = [3]int{4, 8, 8}
	cfg.NC = 8
	cfg.Layers = 0
	cfg.VQLayers = map[string]int{"bottom": 16}

	plan, err := NewPlan(cfg)
	require.NoError(t, err)

	want := []stageRow{
		{"bottom", KindBottom, 1, 8, 0, k244, s111, [3]int{4, 8, 8}, [3]int{4, 8, 8}, 1},
		{"final", KindFinal, 8, 1, 0, k111, s111, [3]int{4, 8, 8}, [3]int{4, 8, 8}, 1},
	}
	if diff := cmp.Diff(want, stageRows(plan)); diff != "" {
		t.Errorf("schedule mismatch (-want +got):\n%s", diff)
	}
	bottom, ok := plan.Stage(BottomStage)
	require.True(t, ok)
	assert.Equal(t, 16, bottom.Embeddings)
	assert.Zero(t, plan.Layers())
}

func TestNewPlan_UpsampleLayer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceDims = [3]int{4, 8, 8}
	cfg.TargetDims = [3]int{4, 16, 16}
	cfg.NC = 8
	cfg.Layers = 2
	cfg.UpsampleLayer = true

	plan, err := NewPlan(cfg)
	require.NoError(t, err)

	upsamp, ok := plan.Stage(UpsampleStage)
	require.True(t, ok)
	assert.Equal(t, KindUp, upsamp.Kind)
	assert.Equal(t, 8, upsamp.InChannels)
	assert.Equal(t, 8, upsamp.Channels)
	assert.Equal(t, 1, upsamp.SkipChannels)
	assert.Equal(t, k244, upsamp.Kernel)
	assert.Equal(t, s122, upsamp.Stride)
	assert.Equal(t, [3]int{4, 8, 8}, upsamp.InputDims)
	assert.Equal(t, [3]int{4, 16, 16}, upsamp.OutputDims)

	assert.True(t, plan.NeedsInput)
	assert.Equal(t, [3]int{1, 2, 2}, plan.InputFactors)

	final := plan.Stages[len(plan.Stages)-1]
	assert.Equal(t, [3]int{4, 16, 16}, final.OutputDims)

	cfg.UpsampleSkip = false
	plan, err = NewPlan(cfg)
	require.NoError(t, err)
	upsamp, _ = plan.Stage(UpsampleStage)
	assert.Equal(t, KindUpNoSkip, upsamp.Kind)
	assert.Zero(t, upsamp.SkipChannels)
	assert.False(t, plan.NeedsInput)
}

func TestNewPlan_TimeRouting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceDims = [3]int{4, 8, 8}
	cfg.TargetDims = [3]int{4, 8, 8}
	cfg.NC = 4
	cfg.Layers = 1
	cfg.TimeInput = true
	cfg.VQTime = true
	cfg.VQLayers = map[string]int{"bottom": 8}

	plan, err := NewPlan(cfg)
	require.NoError(t, err)

	down, _ := plan.Stage("down_0")
	assert.True(t, down.TimeChannel)
	assert.False(t, down.TimeConditioned)
	assert.Equal(t, 2, down.InChannels)

	bottom, _ := plan.Stage(BottomStage)
	assert.False(t, bottom.TimeChannel)
	assert.True(t, bottom.TimeConditioned)
	assert.Equal(t, 4, bottom.InChannels)

	up, _ := plan.Stage("up_0")
	assert.True(t, up.TimeChannel)
	assert.Equal(t, 5, up.InChannels)

	final := plan.Stages[len(plan.Stages)-1]
	assert.False(t, final.TimeChannel)
	assert.Equal(t, 4, final.InChannels)

	// Without time-conditioned quantizers, every block takes time as a channel.
	cfg.VQTime = false
	plan, err = NewPlan(cfg)
	require.NoError(t, err)
	bottom, _ = plan.Stage(BottomStage)
	assert.True(t, bottom.TimeChannel)
	assert.False(t, bottom.TimeConditioned)
	assert.Equal(t, 5, bottom.InChannels)
}

func TestNewPlan_LayerBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceDims = [3]int{4, 8, 8}
	cfg.TargetDims = [3]int{4, 8, 8}
	cfg.NC = 2
	require.Equal(t, 3, cfg.MaxLayers())

	cfg.Layers = 3
	plan, err := NewPlan(cfg)
	require.NoError(t, err)
	bottom, _ := plan.Stage(BottomStage)
	assert.Equal(t, [3]int{4, 1, 1}, bottom.InputDims)

	cfg.Layers = 4
	_, err = NewPlan(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Layers = -1
	_, err = NewPlan(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewPlan_ChannelCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceDims = [3]int{4, 64, 64}
	cfg.TargetDims = [3]int{4, 64, 64}
	cfg.NC = 128
	cfg.Layers = 4

	plan, err := NewPlan(cfg)
	require.NoError(t, err)
	var channels []int
	for _, l := range plan.Stages[:4] {
		channels = append(channels, l.Channels)
	}
	assert.Equal(t, []int{128, 256, 512, 512}, channels)
}

func TestNewPlan_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"depth not a multiple", func(c *Config) {
			c.SourceDims, c.TargetDims, c.Layers = [3]int{4, 8, 8}, [3]int{6, 8, 8}, 1
		}},
		{"target shallower than source", func(c *Config) {
			c.SourceDims, c.TargetDims, c.Layers = [3]int{8, 8, 8}, [3]int{4, 8, 8}, 1
		}},
		{"in-plane size differs", func(c *Config) {
			c.SourceDims, c.TargetDims, c.Layers = [3]int{4, 8, 8}, [3]int{4, 16, 16}, 1
		}},
		{"odd in-plane size", func(c *Config) {
			c.SourceDims, c.TargetDims, c.Layers = [3]int{4, 12, 12}, [3]int{4, 12, 12}, 3
		}},
		{"odd target with upsample layer", func(c *Config) {
			c.SourceDims, c.TargetDims, c.Layers = [3]int{4, 8, 8}, [3]int{4, 15, 15}, 1
			c.UpsampleLayer = true
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.NC = 2
			tt.mutate(&cfg)
			_, err := NewPlan(cfg)
			assert.ErrorIs(t, err, ErrShapeMismatch)
		})
	}
}

func TestHalve(t *testing.T) {
	next, kernel, stride := halve([3]int{12, 64, 64})
	assert.Equal(t, [3]int{12, 32, 32}, next)
	assert.Equal(t, k244, kernel)
	assert.Equal(t, s122, stride)

	next, kernel, stride = halve([3]int{3, 5, 5})
	assert.Equal(t, [3]int{2, 3, 3}, next)
	assert.Equal(t, k444, kernel)
	assert.Equal(t, s222, stride)
}

func TestBlockKind_String(t *testing.T) {
	assert.Equal(t, "DownBlock", KindDown.String())
	assert.Equal(t, "UpBlockNoSkip", KindUpNoSkip.String())
	assert.Equal(t, "BlockKind(9)", BlockKind(9).String())
}
