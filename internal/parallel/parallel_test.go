package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_VisitsEveryIndexOnce(t *testing.T) {
	cfg := DefaultConfig().WithMinChunk(1)
	cfg.Enabled = true
	cfg.NumWorkers = 4

	n := 1000
	hits := make([]int32, n)
	For(n, func(i int) {
		atomic.AddInt32(&hits[i], 1)
	}, cfg)

	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}
}

func TestFor_Sequential(t *testing.T) {
	var order []int
	For(5, func(i int) {
		order = append(order, i)
	}, Config{Enabled: false})

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFor_Empty(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}

func TestForBatch(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1}

	batch, heads := 4, 8
	var seen [4][8]atomic.Bool
	ForBatch(batch, heads, func(b, h int) {
		seen[b][h].Store(true)
	}, cfg)

	for b := 0; b < batch; b++ {
		for h := 0; h < heads; h++ {
			assert.True(t, seen[b][h].Load(), "missing (%d, %d)", b, h)
		}
	}
}

func TestWithMinChunk(t *testing.T) {
	cfg := DefaultConfig().WithMinChunk(0)
	assert.Equal(t, 1, cfg.MinChunkSize)
}
