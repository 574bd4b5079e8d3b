// Package parallel splits independent index ranges across goroutines for the
// CPU kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how For partitions work.
type Config struct {
	Workers int // Maximum goroutines; values below 2 run sequentially.
	Grain   int // Minimum indices handed to one goroutine.
}

// DefaultConfig uses one worker per schedulable CPU.
func DefaultConfig() Config {
	return Config{
		Workers: runtime.GOMAXPROCS(0),
		Grain:   1,
	}
}

// Sequential returns a Config that runs every loop on the calling goroutine.
func Sequential() Config {
	return Config{Workers: 1, Grain: 1}
}

// chunk returns the number of indices per goroutine, or 0 when n should be
// processed sequentially.
func (cfg Config) chunk(n int) int {
	grain := max(cfg.Grain, 1)
	if cfg.Workers < 2 || n < 2*grain {
		return 0
	}
	return max((n+cfg.Workers-1)/cfg.Workers, grain)
}

// For calls f(i) for every i in [0, n). Calls for different i may run
// concurrently, so f must only write state owned by index i.
func For(n int, cfg Config, f func(i int)) {
	ForRange(n, cfg, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	})
}

// ForRange splits [0, n) into contiguous ranges and calls f once per range.
func ForRange(n int, cfg Config, f func(lo, hi int)) {
	if n <= 0 {
		return
	}
	size := cfg.chunk(n)
	if size == 0 {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(lo, hi)
		}()
	}
	wg.Wait()
}

// ForBatch calls f for every (sample, channel) pair.
func ForBatch(batch, channels int, cfg Config, f func(b, c int)) {
	For(batch*channels, cfg, func(k int) {
		f(k/channels, k%channels)
	})
}
