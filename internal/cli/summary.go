package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vq-sce/vqsce/internal/backend/cpu"
	"github.com/vq-sce/vqsce/internal/unet"
)

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the stage schedule of a network",
		Long: "Show the stage schedule of the network described by --config and the flag\n" +
			"overrides, or of the network stored in --checkpoint.",
		Args: cobra.NoArgs,
		RunE: SummaryHandler,
	}
	addConfigFlags(cmd)
	cmd.Flags().String("checkpoint", "", "Summarize a saved checkpoint instead of a config")
	cmd.MarkFlagsMutuallyExclusive("checkpoint", "config")
	return cmd
}

// SummaryHandler prints the plan table and the parameter count.
func SummaryHandler(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	var net *unet.Network[*cpu.CPUBackend]
	if path, _ := cmd.Flags().GetString("checkpoint"); path != "" {
		var info *unet.CheckpointInfo
		var err error
		if net, info, err = unet.LoadCheckpoint(path, cpu.New()); err != nil {
			return err
		}
		precision := "float32"
		if info.Float16 {
			precision = "float16"
		}
		fmt.Fprintf(out, "run:        %s\n", info.RunID)
		fmt.Fprintf(out, "created:    %s\n", info.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "precision:  %s\n\n", precision)
	} else {
		cfg, err := configFromFlags(cmd)
		if err != nil {
			return err
		}
		if net, err = unet.New(cfg, cpu.New()); err != nil {
			return err
		}
	}

	renderPlan(out, net.Plan())

	cfg := net.Config()
	fmt.Fprintf(out, "\nsource:     %s\n", formatDims(cfg.SourceDims))
	fmt.Fprintf(out, "target:     %s\n", formatDims(cfg.TargetDims))
	if plan := net.Plan(); plan.NeedsInput {
		fmt.Fprintf(out, "input copy: x%s\n", formatDims(plan.InputFactors))
	}
	fmt.Fprintf(out, "quantizers: %d\n", len(net.Quantizers()))
	fmt.Fprintf(out, "parameters: %d\n", net.NumParameters())
	return nil
}

func renderPlan(w io.Writer, plan *unet.Plan) {
	var data [][]string
	for _, l := range plan.Stages {
		codes := "-"
		if l.HasQuantizer() {
			codes = strconv.Itoa(l.Embeddings)
			if l.TimeConditioned {
				codes += " (t)"
			}
		}
		in := strconv.Itoa(l.InChannels)
		if l.TimeChannel {
			in += " (t)"
		}
		skip := "-"
		if l.SkipChannels > 0 {
			skip = strconv.Itoa(l.SkipChannels)
		}
		data = append(data, []string{
			l.Name,
			l.Kind.String(),
			in,
			strconv.Itoa(l.Channels),
			skip,
			formatDims(l.Kernel),
			formatDims(l.Stride),
			formatDims(l.InputDims),
			formatDims(l.OutputDims),
			strconv.Itoa(l.UpsampleFactor),
			codes,
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"STAGE", "BLOCK", "IN", "OUT", "SKIP", "KERNEL", "STRIDE", "INPUT", "OUTPUT", "REPEAT", "CODES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func formatDims(d [3]int) string {
	return fmt.Sprintf("%dx%dx%d", d[0], d[1], d[2])
}
