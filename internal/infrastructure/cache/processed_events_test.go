package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryProcessedEvents_Claim(t *testing.T) {
	store := NewMemoryProcessedEvents()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	won, err := store.Claim(ctx, "evt-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.Claim(ctx, "evt-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, won)

	now = now.Add(2 * time.Hour)
	won, err = store.Claim(ctx, "evt-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, won, "expired claims can be taken again")
}

func TestMemoryProcessedEvents_Release(t *testing.T) {
	store := NewMemoryProcessedEvents()
	ctx := context.Background()

	won, _ := store.Claim(ctx, "evt-1", time.Hour)
	require.True(t, won)
	require.NoError(t, store.Release(ctx, "evt-1"))

	won, _ = store.Claim(ctx, "evt-1", time.Hour)
	assert.True(t, won)
	assert.NoError(t, store.Release(ctx, "never-claimed"))
}

func TestMemoryProcessedEvents_Sweep(t *testing.T) {
	store := NewMemoryProcessedEvents()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = store.Claim(ctx, fmt.Sprintf("short-%d", i), time.Minute)
	}
	now = now.Add(2 * time.Minute)
	for i := 5; i < sweepEvery; i++ {
		_, _ = store.Claim(ctx, fmt.Sprintf("long-%d", i), time.Hour)
	}
	assert.Equal(t, sweepEvery-5, store.Len(), "the sweep drops the expired claims")
}

func TestMemoryProcessedEvents_ConcurrentClaims(t *testing.T) {
	store := NewMemoryProcessedEvents()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.Claim(context.Background(), "same", time.Minute); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestNewProcessedEvents_FallsBackWithoutRedis(t *testing.T) {
	store := NewProcessedEvents(nil, zap.NewNop())
	defer store.Close()

	_, ok := store.(*MemoryProcessedEvents)
	assert.True(t, ok)
}
