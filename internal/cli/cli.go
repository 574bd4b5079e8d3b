// Package cli implements the vqsce command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vq-sce/vqsce/internal/unet"
)

// Version is the CLI version, overridden at link time.
var Version = "v0.1.0-dev"

// envDebug enables debug logging like --verbose.
const envDebug = "VQSCE_DEBUG"

// NewCLI returns the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "vqsce",
		Short:         "Volumetric U-Net with vector-quantized bottlenecks",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: logLevel(verbose),
			})))
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "Enable debug logging (also "+envDebug+"=1)")

	rootCmd.AddCommand(
		newSummaryCmd(),
		newInitCmd(),
		newPredictCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func logLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	if s := os.Getenv(envDebug); s != "" {
		if b, err := strconv.ParseBool(s); err == nil && b {
			return slog.LevelDebug
		}
	}
	return slog.LevelInfo
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vqsce version %s\n", Version)
		},
	}
}

// addConfigFlags registers the flags read by configFromFlags.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "YAML network configuration (defaults when empty)")
	cmd.Flags().Int("layers", 0, "Override the number of encoder stages")
	cmd.Flags().Int("nc", 0, "Override the base channel count")
	cmd.Flags().Int64("seed", 0, "Override the weight initialization seed")
	cmd.Flags().StringSlice("vq", nil, "Quantize a stage, as stage=codes (repeatable)")
}

// configFromFlags loads --config and applies the overrides that were set.
func configFromFlags(cmd *cobra.Command) (unet.Config, error) {
	flags := cmd.Flags()

	cfg := unet.DefaultConfig()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = unet.LoadConfig(path); err != nil {
			return unet.Config{}, err
		}
	}

	if flags.Changed("layers") {
		cfg.Layers, _ = flags.GetInt("layers")
	}
	if flags.Changed("nc") {
		cfg.NC, _ = flags.GetInt("nc")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("vq") {
		specs, _ := flags.GetStringSlice("vq")
		layers, err := parseVQLayers(specs)
		if err != nil {
			return unet.Config{}, err
		}
		cfg.VQLayers = layers
	}

	if err := cfg.Validate(); err != nil {
		return unet.Config{}, err
	}
	return cfg, nil
}

func parseVQLayers(specs []string) (map[string]int, error) {
	layers := make(map[string]int, len(specs))
	for _, arg := range specs {
		stage, codes, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("vq %q: want stage=codes: %w", arg, unet.ErrInvalidConfig)
		}
		n, err := strconv.Atoi(codes)
		if err != nil {
			return nil, fmt.Errorf("vq %q: %v: %w", arg, err, unet.ErrInvalidConfig)
		}
		layers[strings.TrimSpace(stage)] = n
	}
	return layers, nil
}
