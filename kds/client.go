package kds

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Client is one process's handle on the scheduler. It owns the open-context
// bookkeeping and the event counter / wait channel pair used for
// asynchronous completion notification.
type Client struct {
	pid   int
	sched *Sched

	// mu serializes this client's open/close/submit admission checks.
	mu        sync.Mutex
	numCtx    int
	bitstream *uuid.UUID
	cuCtx     map[int]int // open contexts per CU index
	virtCtx   int

	event atomic.Int32
	waitq chan struct{}
}

func newClient(s *Sched, pid int) *Client {
	return &Client{
		pid:   pid,
		sched: s,
		cuCtx: make(map[int]int),
		waitq: make(chan struct{}, 1),
	}
}

// PID returns the owning process id.
func (c *Client) PID() int { return c.pid }

// NumContexts returns the client's open-context count.
func (c *Client) NumContexts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numCtx
}

// Bitstream returns the bitstream id recorded at first context open, or nil.
func (c *Client) Bitstream() *uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bitstream == nil {
		return nil
	}
	id := *c.bitstream
	return &id
}

// postEvent records one completion and wakes a blocked waiter.
func (c *Client) postEvent() {
	c.event.Add(1)
	select {
	case c.waitq <- struct{}{}:
	default:
	}
}

// decEvent consumes one completion event if any is pending.
func (c *Client) decEvent() bool {
	for {
		v := c.event.Load()
		if v <= 0 {
			return false
		}
		if c.event.CompareAndSwap(v, v-1) {
			return true
		}
	}
}

// PollForCompletion consumes at most one completion event, returning the
// number consumed (0 or 1). With block unset it returns immediately; with
// block set it waits until an event arrives or timeout elapses (forever when
// timeout <= 0).
func (c *Client) PollForCompletion(block bool, timeout time.Duration) int {
	var deadline *time.Timer
	if block && timeout > 0 {
		deadline = time.NewTimer(timeout)
		defer deadline.Stop()
	}
	for {
		if c.decEvent() {
			// Events can outnumber wakeup tokens: a poster finding no
			// parked receiver drops its token. Re-signal so another
			// blocked waiter is not stranded on a positive counter.
			if c.event.Load() > 0 {
				select {
				case c.waitq <- struct{}{}:
				default:
				}
			}
			return 1
		}
		if !block {
			return 0
		}
		if deadline == nil {
			<-c.waitq
			continue
		}
		select {
		case <-c.waitq:
		case <-deadline.C:
			return 0
		}
	}
}
