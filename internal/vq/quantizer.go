// Package vq implements a vector-quantization layer with a straight-through
// gradient estimator.
//
// A Quantizer owns a codebook of K embeddings of dimension D stored as a
// [D, K] matrix. Forward replaces every D-vector of its input with the
// nearest codebook column and returns an auxiliary loss that pulls the
// codebook and the encoder output towards each other:
//
//	loss = mean((stop(x) - q)²) + beta * mean((x - stop(q))²)
//
// The returned tensor equals q in value, while its gradient w.r.t. x is the
// identity.
package vq

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/vq-sce/vqsce/internal/nn"
	"github.com/vq-sce/vqsce/internal/tensor"
)

const (
	// ScalarCodebookScale multiplies the selected value of a scalar
	// (embedding dimension 1) codebook. Distances are still measured
	// against the unscaled codebook.
	ScalarCodebookScale = 0.02

	// DefaultBeta is the default commitment loss weight.
	DefaultBeta = 0.25

	// InitRange bounds the uniform codebook initializer: U(-InitRange, InitRange).
	InitRange = 0.05
)

var (
	// ErrInvalidConfig indicates a quantizer cannot be built from its arguments.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrShapeMismatch indicates an input whose shape the quantizer cannot accept.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Quantizer is a vector-quantization layer.
//
// The codebook is read-only during Forward, so a Quantizer may be shared by
// concurrent forward passes on a non-recording backend.
type Quantizer[B tensor.Backend] struct {
	name          string
	numEmbeddings int
	embeddingDim  int
	beta          float64
	codebook      *nn.Parameter[B] // [embeddingDim, numEmbeddings]
	backend       B
}

// New creates a quantizer named name with numEmbeddings codes of size embeddingDim.
// Its codebook parameter is called "<name>/codebook".
func New[B tensor.Backend](name string, numEmbeddings, embeddingDim int, beta float64, rng *rand.Rand, backend B) (*Quantizer[B], error) {
	if numEmbeddings <= 0 {
		return nil, fmt.Errorf("%s: num_embeddings must be positive, got %d: %w", name, numEmbeddings, ErrInvalidConfig)
	}
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("%s: embedding_dim must be positive, got %d: %w", name, embeddingDim, ErrInvalidConfig)
	}
	if beta < 0 {
		return nil, fmt.Errorf("%s: beta must be non-negative, got %g: %w", name, beta, ErrInvalidConfig)
	}

	codebook := nn.Uniform(tensor.Shape{embeddingDim, numEmbeddings}, -InitRange, InitRange, rng, backend)
	return &Quantizer[B]{
		name:          name,
		numEmbeddings: numEmbeddings,
		embeddingDim:  embeddingDim,
		beta:          beta,
		codebook:      nn.NewParameter(name+"/codebook", codebook),
		backend:       backend,
	}, nil
}

// Name returns the quantizer name.
func (q *Quantizer[B]) Name() string { return q.name }

// NumEmbeddings returns K.
func (q *Quantizer[B]) NumEmbeddings() int { return q.numEmbeddings }

// EmbeddingDim returns D.
func (q *Quantizer[B]) EmbeddingDim() int { return q.embeddingDim }

// Beta returns the commitment loss weight.
func (q *Quantizer[B]) Beta() float64 { return q.beta }

// Codebook returns the [D, K] codebook parameter.
func (q *Quantizer[B]) Codebook() *nn.Parameter[B] { return q.codebook }

// Parameters returns [codebook].
func (q *Quantizer[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{q.codebook}
}

// Forward quantizes x, whose last axis must equal the embedding dimension.
//
// t is an optional per-sample time value. It is checked against the batch
// size and otherwise does not affect the lookup.
//
// Returns the straight-through quantized tensor (same shape as x) and the
// scalar auxiliary loss.
func (q *Quantizer[B]) Forward(x, t *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B], error) {
	out, loss, _, err := q.Quantize(x, t)
	return out, loss, err
}

// Quantize is Forward that also returns the selected code index of every
// D-vector of x, in row-major order of the leading axes.
func (q *Quantizer[B]) Quantize(x, t *tensor.Tensor[float32, B]) (out, loss *tensor.Tensor[float32, B], indices []int, err error) {
	if err := q.checkInput(x.Shape()); err != nil {
		return nil, nil, nil, err
	}
	if t != nil && t.NumElements() != x.Shape()[0] {
		return nil, nil, nil, fmt.Errorf("%s: time has %d values for batch %d: %w",
			q.name, t.NumElements(), x.Shape()[0], ErrShapeMismatch)
	}

	indices = q.lookup(x.Raw())
	oneHot := tensor.Zeros[float32](tensor.Shape{len(indices), q.numEmbeddings}, q.backend)
	for row, k := range indices {
		oneHot.Set(1, row, k)
	}

	quantized := oneHot.MatMul(q.codebook.Tensor().T())
	if q.embeddingDim == 1 {
		quantized = quantized.MulScalar(ScalarCodebookScale)
	}
	quantized = quantized.Reshape(x.Shape()...)

	dictionaryLoss := x.Detach().Sub(quantized).Square().Mean()
	commitmentLoss := x.Sub(quantized.Detach()).Square().Mean()
	loss = dictionaryLoss.Add(commitmentLoss.MulScalar(q.beta))

	// Straight-through estimator.
	out = x.Add(quantized.Sub(x).Detach())
	// x + (q - x) can differ from q by rounding; the value must be exactly q.
	copy(out.Data(), quantized.Data())
	return out, loss, indices, nil
}

// Indices returns the selected code index for every D-vector of x, in
// row-major order of the leading axes.
func (q *Quantizer[B]) Indices(x *tensor.Tensor[float32, B]) ([]int, error) {
	if err := q.checkInput(x.Shape()); err != nil {
		return nil, err
	}
	return q.lookup(x.Raw()), nil
}

func (q *Quantizer[B]) checkInput(shape tensor.Shape) error {
	if len(shape) < 2 || shape[len(shape)-1] != q.embeddingDim {
		return fmt.Errorf("%s: input shape %v, last axis must be %d: %w",
			q.name, shape, q.embeddingDim, ErrShapeMismatch)
	}
	return nil
}

// lookup returns the nearest codebook column for every row of x viewed as
// [N, D], using ‖a−b‖² = ‖a‖² + ‖b‖² − 2·a·b. Ties go to the lowest index.
func (q *Quantizer[B]) lookup(x *tensor.RawTensor) []int {
	d, k := q.embeddingDim, q.numEmbeddings
	n := x.NumElements() / d

	flat := mat.NewDense(n, d, x.Float64s())
	codebook := mat.NewDense(d, k, q.codebook.Tensor().Raw().Float64s())

	var similarity mat.Dense
	similarity.Mul(flat, codebook)

	codeNorms := make([]float64, k)
	column := make([]float64, d)
	for j := range codeNorms {
		mat.Col(column, j, codebook)
		codeNorms[j] = floats.Dot(column, column)
	}

	indices := make([]int, n)
	for i := 0; i < n; i++ {
		row := flat.RawRowView(i)
		rowNorm := floats.Dot(row, row)
		sims := similarity.RawRowView(i)

		best, bestDist := 0, rowNorm+codeNorms[0]-2*sims[0]
		for j := 1; j < k; j++ {
			if dist := rowNorm + codeNorms[j] - 2*sims[j]; dist < bestDist {
				best, bestDist = j, dist
			}
		}
		indices[i] = best
	}
	return indices
}
