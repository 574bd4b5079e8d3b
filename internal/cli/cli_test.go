package cli

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/vq-sce/vqsce/internal/backend/cpu"
	"github.com/vq-sce/vqsce/internal/serialization"
	"github.com/vq-sce/vqsce/internal/tensor"
	"github.com/vq-sce/vqsce/internal/unet"
)

const smallConfig = `source_dims: [4, 8, 8]
target_dims: [4, 8, 8]
nc: 4
layers: 2
vq_layers:
  bottom: 8
seed: 3
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCLI()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeVolume(t *testing.T, path string, shape tensor.Shape, time []float32) {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	tensors := orderedmap.New[string, *tensor.RawTensor]()
	tensors.Set(VolumeTensor, tensor.RandUniform[float32](shape, -1, 1, rng, cpu.New()).Raw())
	if time != nil {
		tt, err := tensor.FromSlice(time, tensor.Shape{len(time)}, cpu.New())
		require.NoError(t, err)
		tensors.Set(TimeTensor, tt.Raw())
	}
	require.NoError(t, serialization.WriteFile(path, tensors, nil, serialization.WriterOptions{}))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "vqsce version "+Version+"\n", out)
}

func TestSummary(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "net.yaml", smallConfig)

	out, err := execute(t, "summary", "--config", cfg)
	require.NoError(t, err)
	for _, want := range []string{
		"STAGE", "down_0", "down_1", "bottom", "up_1", "up_0", "final",
		"DownBlock", "BottomBlock", "UpBlock", "Conv3D+tanh",
		"source:     4x8x8", "quantizers: 1", "parameters: ",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "upsamp")
	assert.NotContains(t, out, "input copy")
}

func TestSummary_FlagOverrides(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "net.yaml", smallConfig)

	out, err := execute(t, "summary", "-c", cfg, "--layers", "1", "--vq", "final=4", "--vq", "down_0=2")
	require.NoError(t, err)
	assert.NotContains(t, out, "down_1")
	assert.Contains(t, out, "quantizers: 2")
	// The output quantizer adds the input copy to its result.
	assert.Contains(t, out, "input copy: x1x1x1")
}

func TestSummary_Errors(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "net.yaml", smallConfig)

	_, err := execute(t, "summary", "-c", cfg, "--vq", "bottom")
	assert.ErrorIs(t, err, unet.ErrInvalidConfig)

	_, err = execute(t, "summary", "-c", cfg, "--vq", "middle=4")
	assert.ErrorIs(t, err, unet.ErrInvalidConfig)

	_, err = execute(t, "summary", "-c", cfg, "--layers", "9")
	assert.ErrorIs(t, err, unet.ErrInvalidConfig)

	bad := writeFile(t, dir, "bad.yaml", "nc: 4\nchannels: 8\n")
	_, err = execute(t, "summary", "-c", bad)
	assert.ErrorIs(t, err, unet.ErrInvalidConfig)

	_, err = execute(t, "summary", "-c", cfg, "--checkpoint", filepath.Join(dir, "model.safetensors"))
	assert.Error(t, err)
}

func TestInitPredict(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "net.yaml", smallConfig)
	model := filepath.Join(dir, "model.safetensors")

	out, err := execute(t, "init", "-c", cfg, "-o", model, "--run-id", "run-42")
	require.NoError(t, err)
	assert.Equal(t, "run-42\n", out)

	out, err = execute(t, "summary", "--checkpoint", model)
	require.NoError(t, err)
	assert.Contains(t, out, "run:        run-42")
	assert.Contains(t, out, "precision:  float32")
	assert.Contains(t, out, "bottom")

	inputs := []string{filepath.Join(dir, "a.safetensors"), filepath.Join(dir, "b.safetensors")}
	writeVolume(t, inputs[0], tensor.Shape{2, 4, 8, 8}, nil)
	writeVolume(t, inputs[1], tensor.Shape{4, 8, 8}, nil)

	outDir := filepath.Join(dir, "predictions")
	out, err = execute(t, "predict", "--checkpoint", model, "-o", outDir, "-j", "2", inputs[0], inputs[1])
	require.NoError(t, err)
	assert.Contains(t, out, "PERPLEXITY")
	assert.Contains(t, out, "a.safetensors")
	assert.Contains(t, out, "b.safetensors")

	for name, batch := range map[string]int{"a": 2, "b": 1} {
		f, err := serialization.ReadFile(filepath.Join(outDir, name+predictionSuffix), serialization.ReaderOptions{})
		require.NoError(t, err)
		pred, err := f.Tensor(PredictionTensor)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{batch, 4, 8, 8, 1}, pred.Shape())
		_, err = f.Tensor(QuantizedTensor)
		assert.ErrorIs(t, err, serialization.ErrTensorNotFound)
		assert.Equal(t, "run-42", f.Metadata[unet.MetaRunID])
		assert.Contains(t, f.Metadata, "loss/bottom")
	}
}

func TestPredict_TimeInput(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "net.yaml", smallConfig+"time_input: true\n")
	model := filepath.Join(dir, "model.safetensors")
	_, err := execute(t, "init", "-c", cfg, "-o", model, "--f16")
	require.NoError(t, err)

	untimed := filepath.Join(dir, "untimed.safetensors")
	writeVolume(t, untimed, tensor.Shape{2, 4, 8, 8, 1}, nil)
	_, err = execute(t, "predict", "--checkpoint", model, untimed)
	assert.ErrorIs(t, err, unet.ErrShapeMismatch)

	timed := filepath.Join(dir, "timed.safetensors")
	writeVolume(t, timed, tensor.Shape{2, 4, 8, 8, 1}, []float32{0.1, 0.9})
	_, err = execute(t, "predict", "--checkpoint", model, "--f16", timed)
	require.NoError(t, err)

	f, err := serialization.ReadFile(filepath.Join(dir, "timed"+predictionSuffix), serialization.ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, serialization.DTypeF16, f.DTypes[PredictionTensor])
}

func TestPredict_RequiresCheckpoint(t *testing.T) {
	_, err := execute(t, "predict", "input.safetensors")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "checkpoint"))
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "scan"+predictionSuffix), outputPath(filepath.Join("data", "scan.safetensors"), ""))
	assert.Equal(t, filepath.Join("out", "scan"+predictionSuffix), outputPath(filepath.Join("data", "scan.safetensors"), "out"))
}

func TestParseVQLayers(t *testing.T) {
	layers, err := parseVQLayers([]string{"bottom=64", " up_0 =8"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bottom": 64, "up_0": 8}, layers)

	_, err = parseVQLayers([]string{"bottom=many"})
	assert.ErrorIs(t, err, unet.ErrInvalidConfig)
}
