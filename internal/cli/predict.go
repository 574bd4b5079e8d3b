package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vq-sce/vqsce/internal/backend/cpu"
	"github.com/vq-sce/vqsce/internal/serialization"
	"github.com/vq-sce/vqsce/internal/tensor"
	"github.com/vq-sce/vqsce/internal/unet"
	"github.com/vq-sce/vqsce/internal/vq"
)

// Tensor names of prediction inputs and outputs.
const (
	VolumeTensor     = "volume"     // [N, D, H, W, 1], [N, D, H, W] or [D, H, W]
	TimeTensor       = "time"       // [N], optional
	PredictionTensor = "prediction" // [N, D', H', W', 1]
	QuantizedTensor  = "quantized"  // present with an output quantizer

	predictionSuffix = ".pred.safetensors"
)

type (
	cpuNetwork = unet.Network[*cpu.CPUBackend]
	cpuTensor  = tensor.Tensor[float32, *cpu.CPUBackend]
)

type predictResult struct {
	input  string
	output string
	losses []unet.StageLoss[*cpu.CPUBackend]
}

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict INPUT...",
		Short: "Run a checkpoint on SafeTensors volumes",
		Long: "Run a checkpoint on every INPUT file. Each input holds a \"" + VolumeTensor + "\" tensor and,\n" +
			"for time-conditioned networks, a \"" + TimeTensor + "\" tensor with one value per sample.\n" +
			"Results are written next to the input (or to --out) as <name>" + predictionSuffix + ".",
		Args: cobra.MinimumNArgs(1),
		RunE: PredictHandler,
	}
	cmd.Flags().String("checkpoint", "", "Checkpoint to run")
	cmd.Flags().StringP("out", "o", "", "Output directory (defaults to the input directory)")
	cmd.Flags().IntP("jobs", "j", runtime.NumCPU(), "Number of files processed concurrently")
	cmd.Flags().Bool("f16", false, "Store outputs in half precision")
	_ = cmd.MarkFlagRequired("checkpoint")
	return cmd
}

// PredictHandler runs the network on every input file and prints quantizer
// code usage per file.
func PredictHandler(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("checkpoint")
	outDir, _ := flags.GetString("out")
	jobs, _ := flags.GetInt("jobs")
	f16, _ := flags.GetBool("f16")

	net, info, err := unet.LoadCheckpoint(path, cpu.New())
	if err != nil {
		return err
	}
	slog.Debug("loaded checkpoint", "path", path, "run_id", info.RunID, "parameters", net.NumParameters())

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	results := make([]predictResult, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(jobs, 1))
	for i, input := range args {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := predictFile(net, input, outputPath(input, outDir), info.RunID, f16)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			results[i] = r
			slog.Info("wrote prediction", "input", input, "output", r.output)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	renderUsage(cmd.OutOrStdout(), net.Plan(), results)
	return nil
}

func predictFile(net *cpuNetwork, input, output, runID string, f16 bool) (predictResult, error) {
	x, t, err := loadVolume(input, net.Config().TimeInput)
	if err != nil {
		return predictResult{}, err
	}
	out, err := net.Forward(x, t)
	if err != nil {
		return predictResult{}, err
	}

	tensors := orderedmap.New[string, *tensor.RawTensor]()
	tensors.Set(PredictionTensor, out.Prediction.Raw())
	if out.Quantized != nil {
		tensors.Set(QuantizedTensor, out.Quantized.Raw())
	}
	meta := map[string]string{
		"source":        filepath.Base(input),
		unet.MetaRunID:  runID,
		"vqsce_version": Version,
	}
	for _, l := range out.Losses {
		meta["loss/"+l.Stage] = strconv.FormatFloat(float64(l.Loss.Item()), 'g', -1, 32)
	}

	if err := serialization.WriteFile(output, tensors, meta, serialization.WriterOptions{Float16: f16}); err != nil {
		return predictResult{}, err
	}
	return predictResult{input: input, output: output, losses: out.Losses}, nil
}

// loadVolume reads the input volume and, when the network takes one, the
// time tensor.
func loadVolume(path string, timeInput bool) (x, t *cpuTensor, err error) {
	f, err := serialization.ReadFile(path, serialization.ReaderOptions{})
	if err != nil {
		return nil, nil, err
	}

	raw, err := f.Tensor(VolumeTensor)
	if err != nil {
		return nil, nil, err
	}
	shape := raw.Shape()
	switch len(shape) {
	case 3:
		shape = tensor.Shape{1, shape[0], shape[1], shape[2], 1}
	case 4:
		shape = tensor.Shape{shape[0], shape[1], shape[2], shape[3], 1}
	case 5:
	default:
		return nil, nil, fmt.Errorf("%s has shape %v, want [N D H W 1]: %w", VolumeTensor, shape, unet.ErrShapeMismatch)
	}
	if x, err = tensor.FromSlice(float32s(raw), shape, cpu.New()); err != nil {
		return nil, nil, err
	}

	rawTime, ok := f.Tensors.Get(TimeTensor)
	switch {
	case timeInput && !ok:
		return nil, nil, fmt.Errorf("network takes a time input but %s has no %q tensor: %w",
			path, TimeTensor, unet.ErrShapeMismatch)
	case !timeInput && ok:
		slog.Warn("ignoring time tensor, network has no time input", "input", path)
	case ok:
		if t, err = tensor.FromSlice(float32s(rawTime), tensor.Shape{rawTime.NumElements()}, cpu.New()); err != nil {
			return nil, nil, err
		}
	}
	return x, t, nil
}

func float32s(raw *tensor.RawTensor) []float32 {
	if raw.DType() == tensor.Float32 {
		return raw.AsFloat32()
	}
	values := raw.Float64s()
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

func outputPath(input, dir string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + predictionSuffix
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}

func renderUsage(w io.Writer, plan *unet.Plan, results []predictResult) {
	var data [][]string
	for _, r := range results {
		for _, l := range r.losses {
			stage, _ := plan.Stage(l.Stage)
			usage := vq.CodeUsage(l.Codes, stage.Embeddings)
			used := stage.Embeddings - usage.Dead
			data = append(data, []string{
				filepath.Base(r.input),
				l.Stage,
				strconv.FormatFloat(float64(l.Loss.Item()), 'f', 6, 32),
				fmt.Sprintf("%d/%d", used, stage.Embeddings),
				strconv.FormatFloat(usage.Perplexity, 'f', 2, 64),
			})
		}
	}
	if len(data) == 0 {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"INPUT", "STAGE", "LOSS", "CODES USED", "PERPLEXITY"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
