// Package parallel runs independent index ranges across goroutines.
//
// The tensor kernels use it to spread batch elements, attention heads and
// matrix rows over the available CPUs. Work items must not depend on each
// other; the caller's function is invoked exactly once per index.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Upper bound on goroutines per call.
	MinChunkSize int  // Minimum indices per goroutine.
}

// DefaultConfig returns defaults based on the CPU count.
func DefaultConfig() Config {
	n := runtime.GOMAXPROCS(0)
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// WithMinChunk returns a copy of cfg with a different chunk floor.
// Kernels whose per-index cost is large (a whole matrix product per batch
// element) use a floor of 1.
func (c Config) WithMinChunk(n int) Config {
	c.MinChunkSize = max(n, 1)
	return c
}

// For executes f(i) for every i in [0, n).
// Small ranges and disabled configs run sequentially on the caller's goroutine.
func For(n int, f func(i int), cfg Config) {
	workers := min(cfg.NumWorkers, n)
	if !cfg.Enabled || workers <= 1 || n < 2*max(cfg.MinChunkSize, 1) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunk := max((n+workers-1)/workers, cfg.MinChunkSize)

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForBatch runs f over the cartesian product of batch and inner indices,
// e.g. (batch element, attention head) or (batch element, channel).
func ForBatch(batch, inner int, f func(b, i int), cfg Config) {
	For(batch*inner, func(k int) {
		f(k/inner, k%inner)
	}, cfg)
}
