package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoCoalescesConcurrentCallsIntoOneCompute(t *testing.T) {
	c := NewCoordinator()
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	fn := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return "result", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := c.Do(context.Background(), "key", fn)
			require.NoError(t, err)
			results[idx] = v
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, "result", v)
	}
}

func TestDoDifferentKeysRunIndependently(t *testing.T) {
	c := NewCoordinator()
	var calls int32
	fn := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			_, err := c.Do(context.Background(), k, fn)
			require.NoError(t, err)
		}(key)
	}
	wg.Wait()

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoOneWaiterCancellationDoesNotAffectOthers(t *testing.T) {
	c := NewCoordinator()
	release := make(chan struct{})
	fn := func() (interface{}, error) {
		<-release
		return "done", nil
	}

	cancelledCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var cancelledErr error
	go func() {
		defer wg.Done()
		_, cancelledErr = c.Do(cancelledCtx, "key", fn)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()
	assert.ErrorIs(t, cancelledErr, context.Canceled)

	// the shared compute must still be running and reachable by a fresh caller
	var wg2 sync.WaitGroup
	wg2.Add(1)
	var sharedResult interface{}
	go func() {
		defer wg2.Done()
		v, err := c.Do(context.Background(), "key", fn)
		require.NoError(t, err)
		sharedResult = v
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg2.Wait()
	assert.Equal(t, "done", sharedResult)
}

func TestDoPropagatesSharedError(t *testing.T) {
	c := NewCoordinator()
	fn := func() (interface{}, error) { return nil, assert.AnError }

	_, err := c.Do(context.Background(), "key", fn)
	assert.ErrorIs(t, err, assert.AnError)
}
