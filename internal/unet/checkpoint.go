package unet

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vq-sce/vqsce/internal/serialization"
	"github.com/vq-sce/vqsce/internal/tensor"
)

// Checkpoint metadata keys.
const (
	MetaFormat        = "format"
	MetaFormatVersion = "format_version"
	MetaConfig        = "config"
	MetaRunID         = "run_id"
	MetaCreatedAt     = "created_at"
)

// Checkpoint format identifiers.
const (
	CheckpointFormat        = "vqsce-unet"
	CheckpointFormatVersion = "1"
)

// CheckpointOptions configures SaveCheckpoint.
type CheckpointOptions struct {
	// Float16 stores weights in half precision.
	Float16 bool
	// RunID identifies the run that produced the weights. A random UUID is
	// used when empty.
	RunID string
	// Metadata is stored alongside the reserved keys, which take precedence.
	Metadata map[string]string
}

// CheckpointInfo describes a stored checkpoint.
type CheckpointInfo struct {
	Config    Config
	RunID     string
	CreatedAt time.Time
	Float16   bool
	Metadata  map[string]string
}

// SaveCheckpoint writes the network weights and the config they were built
// from to a SafeTensors file. It returns the run id written.
func SaveCheckpoint[B tensor.Backend](path string, net *Network[B], opts CheckpointOptions) (string, error) {
	cfgYAML, err := net.Config().YAML()
	if err != nil {
		return "", err
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	meta := make(map[string]string, len(opts.Metadata)+5)
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	meta[MetaFormat] = CheckpointFormat
	meta[MetaFormatVersion] = CheckpointFormatVersion
	meta[MetaConfig] = cfgYAML
	meta[MetaRunID] = runID
	meta[MetaCreatedAt] = time.Now().UTC().Format(time.RFC3339)

	wopts := serialization.WriterOptions{Float16: opts.Float16}
	if err := serialization.WriteFile(path, net.StateDict(), meta, wopts); err != nil {
		return "", fmt.Errorf("save checkpoint: %w", err)
	}
	return runID, nil
}

// ReadCheckpoint reads a checkpoint's metadata and state dict without
// building a network.
func ReadCheckpoint(path string) (*CheckpointInfo, *StateDict, error) {
	f, err := serialization.ReadFile(path, serialization.ReaderOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if got := f.Metadata[MetaFormat]; got != CheckpointFormat {
		return nil, nil, fmt.Errorf("read checkpoint: format %q, want %q: %w", got, CheckpointFormat, ErrInvalidConfig)
	}
	if got := f.Metadata[MetaFormatVersion]; got != CheckpointFormatVersion {
		return nil, nil, fmt.Errorf("read checkpoint: unsupported format version %q: %w", got, ErrInvalidConfig)
	}

	cfg, err := DecodeConfig(strings.NewReader(f.Metadata[MetaConfig]))
	if err != nil {
		return nil, nil, fmt.Errorf("read checkpoint: %w", err)
	}
	info := &CheckpointInfo{
		Config:   cfg,
		RunID:    f.Metadata[MetaRunID],
		Metadata: f.Metadata,
	}
	if created, err := time.Parse(time.RFC3339, f.Metadata[MetaCreatedAt]); err == nil {
		info.CreatedAt = created
	}
	for _, dtype := range f.DTypes {
		if dtype == serialization.DTypeF16 {
			info.Float16 = true
			break
		}
	}
	return info, f.Tensors, nil
}

// LoadCheckpoint builds a network from the config stored at path and loads
// its weights.
func LoadCheckpoint[B tensor.Backend](path string, backend B) (*Network[B], *CheckpointInfo, error) {
	info, sd, err := ReadCheckpoint(path)
	if err != nil {
		return nil, nil, err
	}
	net, err := New(info.Config, backend)
	if err != nil {
		return nil, nil, err
	}
	if err := net.LoadStateDict(sd); err != nil {
		return nil, nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	return net, info, nil
}
