package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerMutualExclusion(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	var mu sync.Mutex
	inSection := 0
	maxInSection := 0

	var wg sync.WaitGroup
	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			release, err := locker.Acquire(ctx, "parking-a", time.Second)
			require.NoError(t, err)
			defer release()

			mu.Lock()
			inSection++
			if inSection > maxInSection {
				maxInSection = inSection
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInSection, "critical section must never be entered concurrently")
}

func TestLockerDistinctKeysDoNotContend(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "parking-a", 50*time.Millisecond)
	require.NoError(t, err)
	defer releaseA()

	// A different key acquires immediately even while parking-a is held.
	releaseB, err := locker.Acquire(ctx, "parking-b", 50*time.Millisecond)
	require.NoError(t, err)
	releaseB()
}

func TestLockerAcquireTimesOut(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "parking-a", time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, err = locker.Acquire(ctx, "parking-a", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrConcurrencyTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	release()

	// Lock is usable again after release.
	release2, err := locker.Acquire(ctx, "parking-a", 50*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestLockerRespectsContextCancellation(t *testing.T) {
	locker := NewLocker()

	release, err := locker.Acquire(context.Background(), "parking-a", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = locker.Acquire(ctx, "parking-a", time.Minute)
	assert.ErrorIs(t, err, ErrConcurrencyTimeout)
}

func TestLockerCleansUpIdleEntries(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		release, err := locker.Acquire(ctx, string(rune('a'+i%26)), time.Second)
		require.NoError(t, err)
		release()
	}

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Empty(t, locker.locks, "released keys must not accumulate")
}
