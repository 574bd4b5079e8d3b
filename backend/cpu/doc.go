// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// # Overview
//
// The backend implements every volumetric operation the network needs:
//   - Conv3D and ConvTranspose3D with TensorFlow "same" padding
//   - Instance normalization over depth, height and width
//   - Nearest-neighbour depth/plane repetition and channel concatenation
//   - Element-wise arithmetic, 2D matrix products and reductions
//
// Gradients are provided by wrapping the backend with autodiff.New.
//
// # Basic Usage
//
//	backend := cpu.New()
//	net, err := unet.New(unet.DefaultConfig(), backend)
//	out, err := net.Forward(x, nil)
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each operation allocates its
// result and does not share mutable state.
package cpu
