package pipe

import (
	"sync"
	"time"
)

// boundedCond is a sync.Cond that wakes on its own after a timeout even
// without a Broadcast, so every blocking IPC wait in this package observes
// shutdown/retry at bounded (<=1s) latency per SPEC_FULL.md §5.
type boundedCond struct {
	*sync.Cond
}

func newBoundedCond(l sync.Locker) *boundedCond {
	return &boundedCond{Cond: sync.NewCond(l)}
}

// WaitTimeout waits on the condition, waking itself after d if nobody else
// signals first. The caller must hold the underlying lock, exactly as for
// sync.Cond.Wait.
func (c *boundedCond) WaitTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		c.L.Lock()
		c.Broadcast()
		c.L.Unlock()
	})
	c.Wait()
	timer.Stop()
}
