package ztime

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

func TestWait_PastInstantReturnsPromptly(t *testing.T) {
	past := Now().Minus(Duration{Seconds: 1})

	start := time.Now()
	got, err := past.Wait(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, got.Equal(past))
}

func TestWait_PresentInstant(t *testing.T) {
	start := time.Now()
	_, err := Now().Wait(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWait_NearFuture(t *testing.T) {
	target := Now().Plus(Millis(30))

	got, err := target.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(target))
	assert.False(t, time.Now().Before(target.Time()), "woke up before the target")
}

func TestWait_FarFutureHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Now().Plus(Duration{Seconds: 5}).Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWait_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Now().Minus(Duration{Seconds: 1}).Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWait_UsesClock(t *testing.T) {
	// The clock claims it is already past the target, so no timer is armed.
	target := FromMillis(1000)
	clock := FixedClock{At: time.UnixMilli(2000)}

	start := time.Now()
	_, err := target.Wait(context.Background(), WithClock(clock))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLoop_NoNextRunsOnce(t *testing.T) {
	var calls int
	got, err := Loop(context.Background(), Now(), func(ctx context.Context, at Time, next *Next) (string, error) {
		calls++
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 1, calls)
}

func TestLoop_NextNTimes(t *testing.T) {
	const n = 3
	const step = 20 * time.Millisecond

	start := time.Now()
	var calls int
	got, err := Loop(context.Background(), Now(), func(ctx context.Context, at Time, next *Next) (int, error) {
		calls++
		if calls <= n {
			next.After(FromStd(step))
		}
		return calls, nil
	})

	require.NoError(t, err)
	assert.Equal(t, n+1, calls)
	assert.Equal(t, n+1, got)
	assert.GreaterOrEqual(t, time.Since(start), n*step)
}

func TestLoop_AtReschedules(t *testing.T) {
	first := Now()
	var seen []Time

	_, err := Loop(context.Background(), first, func(ctx context.Context, at Time, next *Next) (struct{}, error) {
		seen = append(seen, at)
		if len(seen) < 3 {
			next.At(at.Plus(Millis(5)))
		}
		return struct{}{}, nil
	})

	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.True(t, seen[0].Equal(first))
	assert.True(t, seen[1].Equal(first.Plus(Millis(5))))
	assert.True(t, seen[2].Equal(first.Plus(Millis(10))))
}

func TestLoop_AgainReusesSchedule(t *testing.T) {
	first := Now().Minus(Duration{Seconds: 1})
	var seen []Time

	_, err := Loop(context.Background(), first, func(ctx context.Context, at Time, next *Next) (int, error) {
		seen = append(seen, at)
		if len(seen) < 4 {
			next.Again()
		}
		return len(seen), nil
	})

	require.NoError(t, err)
	require.Len(t, seen, 4)
	for _, at := range seen {
		assert.True(t, at.Equal(first))
	}
}

func TestLoop_LastCallWins(t *testing.T) {
	first := Now()
	var seen []Time

	_, err := Loop(context.Background(), first, func(ctx context.Context, at Time, next *Next) (int, error) {
		seen = append(seen, at)
		if len(seen) == 1 {
			next.At(first.Plus(Millis(50)))
			next.At(first.Plus(Millis(1)))
		}
		return 0, nil
	})

	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.True(t, seen[1].Equal(first.Plus(Millis(1))))
}

func TestLoop_CallbackErrorStops(t *testing.T) {
	boom := errors.New("boom")
	var calls int

	got, err := Loop(context.Background(), Now(), func(ctx context.Context, at Time, next *Next) (int, error) {
		calls++
		next.Again()
		if calls == 2 {
			return -1, boom
		}
		return calls, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, -1, got)
	assert.Equal(t, 2, calls)
}

func TestLoop_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var (
		got int
		err error
	)
	go func() {
		defer close(done)
		got, err = Loop(ctx, Now(), func(ctx context.Context, at Time, next *Next) (int, error) {
			next.After(Duration{Hours: 1})
			return 7, nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 7, got)
}

func TestLoop_LateNextIsIgnored(t *testing.T) {
	var saved *Next
	var calls int

	_, err := Loop(context.Background(), Now(), func(ctx context.Context, at Time, next *Next) (int, error) {
		calls++
		saved = next
		return 0, nil
	})
	require.NoError(t, err)

	saved.Again()
	assert.False(t, saved.Requested())
	assert.Equal(t, 1, calls)
}

func TestLoop_NextFromJoinedGoroutine(t *testing.T) {
	var calls int

	_, err := Loop(context.Background(), Now(), func(ctx context.Context, at Time, next *Next) (int, error) {
		calls++
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if calls < 2 {
				next.Again()
			}
		}()
		wg.Wait()
		return calls, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLoop_ObserverSeesTransitions(t *testing.T) {
	var states []LoopState
	var iterations []int
	observer := func(state LoopState, at Time, iteration int) {
		states = append(states, state)
		iterations = append(iterations, iteration)
	}

	var calls int
	_, err := Loop(context.Background(), Now(), func(ctx context.Context, at Time, next *Next) (int, error) {
		calls++
		if calls == 1 {
			next.Again()
		}
		return calls, nil
	}, WithObserver(observer))

	require.NoError(t, err)
	assert.Equal(t, []LoopState{LoopWaiting, LoopRunning, LoopWaiting, LoopRunning}, states)
	assert.Equal(t, []int{1, 1, 2, 2}, iterations)
	assert.Equal(t, "waiting", LoopWaiting.String())
	assert.Equal(t, "running", LoopRunning.String())
}

func TestLoop_IterationsNeverOverlap(t *testing.T) {
	var running, overlaps int32
	var calls int

	_, err := Loop(context.Background(), Now(), func(ctx context.Context, at Time, next *Next) (int, error) {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			atomic.AddInt32(&overlaps, 1)
		}
		defer atomic.StoreInt32(&running, 0)

		calls++
		time.Sleep(5 * time.Millisecond)
		if calls < 5 {
			next.After(Millis(1))
		}
		return calls, nil
	})

	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&overlaps))
	assert.Equal(t, 5, calls)
}

func TestLoop_IndependentLoops(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]int, 4)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := Loop(context.Background(), Now(), func(ctx context.Context, at Time, next *Next) (int, error) {
				results[i]++
				if results[i] <= i {
					next.After(Millis(2))
				}
				return results[i], nil
			})
			assert.NoError(t, err)
			assert.Equal(t, i+1, got)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3, 4}, results)
}

func TestTime_Loop(t *testing.T) {
	var calls int
	err := Now().Loop(context.Background(), func(ctx context.Context, at Time, next *Next) error {
		calls++
		if calls < 3 {
			next.After(Millis(1))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
