package ingest

import (
	"sync"
	"sync/atomic"
)

// Pool runs submitted tasks on at most size concurrent goroutines. Submit
// does not queue: a saturated pool rejects immediately, which the
// coordinator turns into a cancel-and-join teardown.
type Pool struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

func (p *Pool) Submit(fn func()) error {
	if p.closed.Load() {
		return errPoolClosed
	}
	select {
	case p.slots <- struct{}{}:
	default:
		return ErrSubmissionRejected
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		fn()
	}()
	return nil
}

// Shutdown stops further submissions. Running tasks are unaffected.
func (p *Pool) Shutdown() { p.closed.Store(true) }

// Join blocks until every submitted task has returned.
func (p *Pool) Join() { p.wg.Wait() }
