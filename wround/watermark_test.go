package wround_test

import (
	"sync"
	"testing"

	"github.com/ssc-witness/witness/wround"
	"github.com/stretchr/testify/require"
)

func TestWatermark_monotonic(t *testing.T) {
	t.Parallel()

	var w wround.Watermark
	require.Zero(t, w.Load())

	require.True(t, w.Advance(5))
	require.False(t, w.Advance(5))
	require.False(t, w.Advance(3))
	require.Equal(t, uint64(5), w.Load())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Advance(uint64(i))
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(49), w.Load())
}
