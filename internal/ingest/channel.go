package ingest

import (
	"sync"
	"time"
)

// Channel is the bounded multi-producer/single-consumer conduit between the
// worker set and the drain loop. Blocking a producer on a full buffer is the
// group's backpressure mechanism: broker consumption slows to the pipe's
// append rate. The channel also keeps cumulative blocking-time totals for
// both sides, mirrored into telemetry at finalization.
type Channel struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	buf      []*Record
	capacity int
	down     bool

	putWait time.Duration
	getWait time.Duration
}

func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	c := &Channel{capacity: capacity}
	c.notFull = sync.NewCond(&c.mu)
	c.notEmpty = sync.NewCond(&c.mu)
	return c
}

// Push blocks while the channel is full. It reports false once the channel
// is shut down; the record then stays with the caller, who must discard it.
func (c *Channel) Push(rec *Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	for len(c.buf) >= c.capacity && !c.down {
		c.notFull.Wait()
	}
	c.putWait += time.Since(start)

	if c.down {
		return false
	}
	c.buf = append(c.buf, rec)
	c.notEmpty.Signal()
	return true
}

// Pop blocks while the channel is empty and running. After shutdown it
// drains the remaining buffered records in push order, then reports false
// permanently.
func (c *Channel) Pop() (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	for len(c.buf) == 0 && !c.down {
		c.notEmpty.Wait()
	}
	c.getWait += time.Since(start)

	if len(c.buf) == 0 {
		return nil, false
	}
	rec := c.buf[0]
	c.buf = c.buf[1:]
	c.notFull.Signal()
	return rec, true
}

// Shutdown wakes every blocked pusher and popper. Idempotent.
func (c *Channel) Shutdown() {
	c.mu.Lock()
	if !c.down {
		c.down = true
		c.notFull.Broadcast()
		c.notEmpty.Broadcast()
	}
	c.mu.Unlock()
}

// Drain shuts the channel down and discards anything left unconsumed, so a
// finished attempt never leaks buffered records.
func (c *Channel) Drain() {
	c.Shutdown()
	c.mu.Lock()
	c.buf = nil
	c.mu.Unlock()
}

func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// BlockedPushTime is the total time producers spent waiting in Push.
func (c *Channel) BlockedPushTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putWait
}

// BlockedPopTime is the total time consumers spent waiting in Pop.
func (c *Channel) BlockedPopTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getWait
}
