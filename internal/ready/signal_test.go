package ready

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Arm / Clear
// ---------------------------------------------------------------------------

func TestSignal_StartsIdle(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.Armed())
	assert.Equal(t, uint64(0), s.Generation())
	assert.Equal(t, uint64(0), s.Mark())
}

func TestSignal_ArmIsIdempotent(t *testing.T) {
	s := NewSignal()

	for i := 0; i < 5; i++ {
		s.Arm()
	}

	assert.True(t, s.Armed())
	assert.Equal(t, uint64(1), s.Generation())
}

func TestSignal_ClearResetsCurrentGeneration(t *testing.T) {
	s := NewSignal()
	s.Arm()

	gen, err := s.Wait(context.Background(), 0)
	require.NoError(t, err)

	s.Clear(gen)
	assert.False(t, s.Armed())

	s.Arm()
	assert.True(t, s.Armed())
	assert.Equal(t, uint64(2), s.Generation())
}

func TestSignal_StaleClearKeepsNewerArming(t *testing.T) {
	s := NewSignal()
	s.Arm()

	gen, err := s.Wait(context.Background(), 0)
	require.NoError(t, err)

	// A faster consumer clears and a new change arms again before the slow
	// consumer gets around to clearing.
	s.Clear(gen)
	s.Arm()
	s.Clear(gen)

	assert.True(t, s.Armed(), "stale clear must not drop the newer arming")
}

func TestSignal_ClearWhenIdleIsNoop(t *testing.T) {
	s := NewSignal()
	s.Clear(0)
	s.Clear(42)
	assert.False(t, s.Armed())
}

// ---------------------------------------------------------------------------
// Mark
// ---------------------------------------------------------------------------

func TestSignal_MarkDeliversPendingArming(t *testing.T) {
	s := NewSignal()
	s.Arm()

	gen, err := s.Wait(context.Background(), s.Mark())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
}

func TestSignal_MarkSkipsClearedArmings(t *testing.T) {
	s := NewSignal()
	s.Arm()
	s.Clear(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Wait(ctx, s.Mark())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ---------------------------------------------------------------------------
// Wait
// ---------------------------------------------------------------------------

func TestSignal_WaitReturnsImmediatelyWhenArmed(t *testing.T) {
	s := NewSignal()
	s.Arm()

	gen, err := s.Wait(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.True(t, s.Armed(), "wait must not consume the arming")
}

func TestSignal_WaitHonoursContext(t *testing.T) {
	s := NewSignal()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Wait(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSignal_CoalescedArmsWakeOnce(t *testing.T) {
	s := NewSignal()

	for i := 0; i < 10; i++ {
		s.Arm()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var (
		wakes int
		last  uint64
	)

	for {
		gen, err := s.Wait(ctx, last)
		if err != nil {
			break
		}

		wakes++
		last = gen
		s.Clear(gen)
	}

	assert.Equal(t, 1, wakes)
}

func TestSignal_BlockedWaitersAllObserveSameArming(t *testing.T) {
	s := NewSignal()

	const waiters = 2

	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		gens    [waiters]uint64
	)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		started.Add(1)

		go func(i int) {
			defer wg.Done()
			started.Done()

			gen, err := s.Wait(context.Background(), 0)
			if err == nil {
				gens[i] = gen
				s.Clear(gen)
			}
		}(i)
	}

	started.Wait()
	time.Sleep(20 * time.Millisecond)
	s.Arm()
	wg.Wait()

	assert.Equal(t, uint64(1), gens[0])
	assert.Equal(t, uint64(1), gens[1])
	assert.False(t, s.Armed())
}

func TestSignal_SlowConsumerSeesArmingClearedByFastConsumer(t *testing.T) {
	s := NewSignal()
	s.Arm()

	fast, err := s.Wait(context.Background(), 0)
	require.NoError(t, err)
	s.Clear(fast)

	slow, err := s.Wait(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, fast, slow)
}

func TestSignal_ConcurrentConsumersNoLostArming(t *testing.T) {
	s := NewSignal()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen [2]atomic.Uint64

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			var last uint64

			for {
				gen, err := s.Wait(ctx, last)
				if err != nil {
					return
				}

				last = gen
				seen[i].Store(gen)
				s.Clear(gen)
			}
		}(i)
	}

	for i := 0; i < 20; i++ {
		s.Arm()
		time.Sleep(2 * time.Millisecond)
	}

	final := s.Generation()

	require.Eventually(t, func() bool {
		return seen[0].Load() == final && seen[1].Load() == final
	}, time.Second, 5*time.Millisecond, "both consumers must observe the last arming")

	cancel()
	wg.Wait()
}
