package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vq-sce/vqsce/internal/backend/cpu"
	"github.com/vq-sce/vqsce/internal/unet"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a network and save its weights",
		Args:  cobra.NoArgs,
		RunE:  InitHandler,
	}
	addConfigFlags(cmd)
	cmd.Flags().StringP("out", "o", "model.safetensors", "Checkpoint path")
	cmd.Flags().Bool("f16", false, "Store weights in half precision")
	cmd.Flags().String("run-id", "", "Run identifier (random UUID when empty)")
	return cmd
}

// InitHandler builds a freshly initialized network and writes it as a checkpoint.
func InitHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	net, err := unet.New(cfg, cpu.New())
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("out")
	f16, _ := cmd.Flags().GetBool("f16")
	runID, _ := cmd.Flags().GetString("run-id")

	runID, err = unet.SaveCheckpoint(path, net, unet.CheckpointOptions{
		Float16: f16,
		RunID:   runID,
		Metadata: map[string]string{
			"vqsce_version": Version,
		},
	})
	if err != nil {
		return err
	}

	slog.Info("saved checkpoint", "path", path, "run_id", runID, "parameters", net.NumParameters(), "f16", f16)
	fmt.Fprintln(cmd.OutOrStdout(), runID)
	return nil
}
