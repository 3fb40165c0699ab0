package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrFetch_CachesWithinTTL(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	s := NewWithClock[string, int](func() time.Time { return now })
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}

	v, err := s.GetOrFetch(ctx, "k", false, fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	// Just inside the TTL: no second fetch.
	now = now.Add(TTL - time.Second)
	v, err = s.GetOrFetch(ctx, "k", false, fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestGetOrFetch_RefetchesAfterTTL(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	s := NewWithClock[string, int](func() time.Time { return now })
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := s.GetOrFetch(ctx, "k", false, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	now = now.Add(TTL)
	v, err = s.GetOrFetch(ctx, "k", false, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestGetOrFetch_ForceBypassesFreshEntry(t *testing.T) {
	s := New[string, int]()
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := s.GetOrFetch(ctx, "k", false, fetch)
	require.NoError(t, err)

	v, err := s.GetOrFetch(ctx, "k", true, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestGetOrFetch_FailureKeepsPreviousEntry(t *testing.T) {
	s := New[string, int]()
	ctx := context.Background()

	_, err := s.GetOrFetch(ctx, "k", false, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)

	_, err = s.GetOrFetch(ctx, "k", true, func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)

	v, _, ok := s.Last("k")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestGetOrFetch_ConcurrentCallersShareOneFetch(t *testing.T) {
	s := New[string, int]()
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 99, nil
	}

	const n = 10
	results := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.GetOrFetch(ctx, "k", false, fetch)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give the goroutines a moment to pile onto the flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 99, v)
	}
}

func TestFresh_ExpiredEntryNotReturned(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	s := NewWithClock[string, string](func() time.Time { return now })

	s.Put("k", "v")
	_, ok := s.Fresh("k")
	assert.True(t, ok)

	now = now.Add(TTL)
	_, ok = s.Fresh("k")
	assert.False(t, ok)

	// Last still sees it.
	v, fetchedAt, ok := s.Last("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, now.Add(-TTL), fetchedAt)
}

func TestInvalidateAndClear(t *testing.T) {
	s := New[int, string]()
	s.Put(1, "a")
	s.Put(2, "b")

	s.Invalidate(1)
	_, _, ok := s.Last(1)
	assert.False(t, ok)
	_, _, ok = s.Last(2)
	assert.True(t, ok)

	s.Clear()
	assert.Empty(t, s.Keys())
}
