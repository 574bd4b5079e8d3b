// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package unet provides the volumetric encoder-decoder network with
// optional vector-quantized stages.
//
// # Basic Usage
//
//	cfg := unet.DefaultConfig()
//	cfg.VQLayers = map[string]int{"bottom": 512}
//	net, err := unet.New(cfg, cpu.New())
//	if err != nil {
//	    return err
//	}
//	out, err := net.Forward(x, nil) // x: [N, 12, 64, 64, 1]
//	// out.Prediction: [N, 12, 64, 64, 1], out.TotalLoss(): VQ loss
//
// # Checkpoints
//
// SaveCheckpoint stores the weights and the config in one SafeTensors file;
// LoadCheckpoint rebuilds the network from it:
//
//	runID, err := unet.SaveCheckpoint("model.safetensors", net, unet.CheckpointOptions{})
//	net, info, err := unet.LoadCheckpoint("model.safetensors", cpu.New())
package unet

import (
	"io"

	"github.com/vq-sce/vqsce/internal/unet"
	"github.com/vq-sce/vqsce/internal/vq"
	"github.com/vq-sce/vqsce/tensor"
)

// Errors returned by construction, forward passes and checkpoint loading.
var (
	ErrInvalidConfig = unet.ErrInvalidConfig
	ErrShapeMismatch = unet.ErrShapeMismatch
	ErrStateDict     = unet.ErrStateDict
)

// StageError names the stage an error occurred in.
type StageError = unet.StageError

// Stage names.
const (
	BottomStage     = unet.BottomStage
	UpsampleStage   = unet.UpsampleStage
	FinalStage      = unet.FinalStage
	OutputQuantizer = unet.OutputQuantizer
	MaxChannels     = unet.MaxChannels
)

// DownStage returns the name of encoder stage i.
func DownStage(i int) string { return unet.DownStage(i) }

// UpStage returns the name of decoder stage i.
func UpStage(i int) string { return unet.UpStage(i) }

// Configuration

// Config describes a network.
type Config = unet.Config

// DefaultConfig returns the default configuration.
func DefaultConfig() Config { return unet.DefaultConfig() }

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) { return unet.LoadConfig(path) }

// DecodeConfig reads a YAML config; missing keys keep their defaults.
func DecodeConfig(r io.Reader) (Config, error) { return unet.DecodeConfig(r) }

// Schedule

// BlockKind identifies the block type of a stage.
type BlockKind = unet.BlockKind

// Block kinds.
const (
	KindDown     = unet.KindDown
	KindBottom   = unet.KindBottom
	KindUp       = unet.KindUp
	KindUpNoSkip = unet.KindUpNoSkip
	KindFinal    = unet.KindFinal
)

// LayerConfig is the derived configuration of one stage.
type LayerConfig = unet.LayerConfig

// Plan is the shape-checked stage schedule of a Config.
type Plan = unet.Plan

// NewPlan derives the stage schedule of cfg.
func NewPlan(cfg Config) (*Plan, error) { return unet.NewPlan(cfg) }

// Network

// Network is a built encoder-decoder.
type Network[B tensor.Backend] = unet.Network[B]

// Output is the result of Network.Forward.
type Output[B tensor.Backend] = unet.Output[B]

// StageLoss is the quantizer loss and selected codes of one stage.
type StageLoss[B tensor.Backend] = unet.StageLoss[B]

// Block is a convolutional stage of a Network.
type Block[B tensor.Backend] = unet.Block[B]

// Quantizer is a vector-quantization layer.
type Quantizer[B tensor.Backend] = vq.Quantizer[B]

// CodeUsage summarizes how often each code of a codebook was selected.
type CodeUsage = vq.Usage

// Usage computes code usage statistics for the codes of a StageLoss.
func Usage(codes []int, numEmbeddings int) CodeUsage { return vq.CodeUsage(codes, numEmbeddings) }

// New validates cfg and builds the network on backend.
func New[B tensor.Backend](cfg Config, backend B) (*Network[B], error) {
	return unet.New(cfg, backend)
}

// Persistence

// StateDict maps parameter names to weights in forward order.
type StateDict = unet.StateDict

// CheckpointOptions configures SaveCheckpoint.
type CheckpointOptions = unet.CheckpointOptions

// CheckpointInfo describes a stored checkpoint.
type CheckpointInfo = unet.CheckpointInfo

// SaveCheckpoint writes the network to path and returns the run id.
func SaveCheckpoint[B tensor.Backend](path string, net *Network[B], opts CheckpointOptions) (string, error) {
	return unet.SaveCheckpoint(path, net, opts)
}

// ReadCheckpoint reads the metadata and weights stored at path.
func ReadCheckpoint(path string) (*CheckpointInfo, *StateDict, error) {
	return unet.ReadCheckpoint(path)
}

// LoadCheckpoint rebuilds the network stored at path on backend.
func LoadCheckpoint[B tensor.Backend](path string, backend B) (*Network[B], *CheckpointInfo, error) {
	return unet.LoadCheckpoint(path, backend)
}
