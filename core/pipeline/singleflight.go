package pipeline

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Coordinator wraps golang.org/x/sync/singleflight to satisfy spec component
// H: at most one upstream fetch in flight per cache key, with every
// concurrent caller for that key receiving the same result.
type Coordinator struct {
	group singleflight.Group
}

// NewCoordinator builds an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Do joins or launches the compute for key. The first caller for a given key
// runs fn; subsequent concurrent callers block on the same invocation and
// receive its result. ctx cancellation only makes this particular call
// return early with ctx.Err() — it never cancels fn itself or the other
// waiters sharing it, since fn runs detached from any single caller's
// context via DoChan.
func (c *Coordinator) Do(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error) {
	resultCh := c.group.DoChan(key, fn)
	select {
	case res := <-resultCh:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
