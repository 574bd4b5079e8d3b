package vq

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Usage summarizes how often each code of a codebook was selected.
type Usage struct {
	Counts []int
	// Perplexity is exp(entropy) of the code distribution: 1 when a single
	// code is used, K when all K codes are used equally.
	Perplexity float64
	// Dead is the number of codes never selected.
	Dead int
}

// CodeUsage computes usage statistics for indices drawn from numEmbeddings codes.
// Indices outside [0, numEmbeddings) are ignored.
func CodeUsage(indices []int, numEmbeddings int) Usage {
	counts := make([]int, numEmbeddings)
	total := 0
	for _, idx := range indices {
		if idx < 0 || idx >= numEmbeddings {
			continue
		}
		counts[idx]++
		total++
	}

	usage := Usage{Counts: counts}
	probs := make([]float64, numEmbeddings)
	for i, c := range counts {
		if c == 0 {
			usage.Dead++
			continue
		}
		probs[i] = float64(c) / float64(total)
	}
	if total > 0 {
		usage.Perplexity = math.Exp(stat.Entropy(probs))
	}
	return usage
}
