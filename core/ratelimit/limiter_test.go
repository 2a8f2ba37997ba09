package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowAdmitsUpToLimit(t *testing.T) {
	l := New(Rule{Limit: 2, Window: time.Minute}, nil)
	now := time.Now()

	d1 := l.Allow(now, "session-1", "rankings")
	d2 := l.Allow(now, "session-1", "rankings")
	d3 := l.Allow(now, "session-1", "rankings")

	assert.True(t, d1.Allowed)
	assert.True(t, d2.Allowed)
	assert.False(t, d3.Allowed)
}

func TestAllowIsPerIdentityAndEndpoint(t *testing.T) {
	l := New(Rule{Limit: 1, Window: time.Minute}, nil)
	now := time.Now()

	assert.True(t, l.Allow(now, "a", "rankings").Allowed)
	assert.True(t, l.Allow(now, "b", "rankings").Allowed, "different identity gets its own window")
	assert.True(t, l.Allow(now, "a", "field").Allowed, "different endpoint gets its own window")
	assert.False(t, l.Allow(now, "a", "rankings").Allowed)
}

func TestAllowExpiresOldAdmissions(t *testing.T) {
	l := New(Rule{Limit: 1, Window: time.Minute}, nil)
	start := time.Now()

	assert.True(t, l.Allow(start, "a", "rankings").Allowed)
	assert.False(t, l.Allow(start.Add(30*time.Second), "a", "rankings").Allowed)
	assert.True(t, l.Allow(start.Add(61*time.Second), "a", "rankings").Allowed, "window has fully slid past the first admission")
}

func TestAllowRespectsPerEndpointRuleOverride(t *testing.T) {
	l := New(Rule{Limit: 1, Window: time.Minute}, map[string]Rule{
		"rankings": {Limit: 3, Window: time.Minute},
	})
	now := time.Now()

	assert.True(t, l.Allow(now, "a", "rankings").Allowed)
	assert.True(t, l.Allow(now, "a", "rankings").Allowed)
	assert.True(t, l.Allow(now, "a", "rankings").Allowed)
	assert.False(t, l.Allow(now, "a", "rankings").Allowed)
}

func TestAllowNeverExceedsLimitUnderConcurrency(t *testing.T) {
	l := New(Rule{Limit: 20, Window: time.Minute}, nil)
	now := time.Now()

	var wg sync.WaitGroup
	admitted := make([]bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			admitted[idx] = l.Allow(now, "shared", "rankings").Allowed
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range admitted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 20, count)
}

func TestSweepRemovesStaleEmptyWindows(t *testing.T) {
	l := New(Rule{Limit: 1, Window: time.Minute}, nil)
	start := time.Now()
	l.Allow(start, "a", "rankings")

	removed := l.Sweep(start.Add(3 * time.Minute))
	assert.Equal(t, 1, removed)
}

func TestSweepKeepsActiveWindows(t *testing.T) {
	l := New(Rule{Limit: 5, Window: time.Minute}, nil)
	start := time.Now()
	l.Allow(start, "a", "rankings")

	removed := l.Sweep(start.Add(5 * time.Second))
	assert.Equal(t, 0, removed)
}
