package lock_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/domain"
	"taskline/internal/lock"
)

func exerciseMutualExclusion(t *testing.T, l lock.Locker) {
	t.Helper()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), lock.TaskKey("t1"))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestMemoryMutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, lock.NewMemory(5*time.Second))
}

func TestMemoryTimeoutIsConflict(t *testing.T) {
	l := lock.NewMemory(20 * time.Millisecond)
	unlock, err := l.Lock(context.Background(), lock.TimerKey("u1"))
	require.NoError(t, err)
	defer unlock()

	_, err = l.Lock(context.Background(), lock.TimerKey("u1"))
	var ce domain.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "timer:u1", ce.Resource)

	// other groups are independent
	other, err := l.Lock(context.Background(), lock.TimerKey("u2"))
	require.NoError(t, err)
	other()
}

func TestMemoryUnlockIsIdempotent(t *testing.T) {
	l := lock.NewMemory(time.Second)
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestMemoryHonoursContext(t *testing.T) {
	l := lock.NewMemory(0)
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisMutualExclusion(t *testing.T) {
	url := os.Getenv("TASKLINE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TASKLINE_TEST_REDIS_URL not set")
	}
	client, err := lock.Connect(context.Background(), url)
	require.NoError(t, err)
	defer client.Close()
	r := lock.NewRedis(client, 5*time.Second, 5*time.Second)
	r.Prefix = "taskline:test:" + t.Name() + ":"
	exerciseMutualExclusion(t, r)

	unlock, err := r.Lock(context.Background(), "held")
	require.NoError(t, err)
	defer unlock()
	r.Wait = 30 * time.Millisecond
	_, err = r.Lock(context.Background(), "held")
	var ce domain.ConflictError
	assert.True(t, errors.As(err, &ce))
}
