package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"streamload/internal/logging"
)

// WorkerState tracks a worker through one attempt.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerAssigned
	WorkerRunning
	WorkerFinished
	WorkerCancelled
	WorkerFailed
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerAssigned:
		return "assigned"
	case WorkerRunning:
		return "running"
	case WorkerFinished:
		return "finished"
	case WorkerCancelled:
		return "cancelled"
	case WorkerFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CancelToken is the cooperative cancellation flag a worker checks between
// poll iterations. There is no forced interruption: worst-case cancel
// latency is one poll interval.
type CancelToken struct {
	set atomic.Bool
}

func (t *CancelToken) Cancel()         { t.set.Store(true) }
func (t *CancelToken) Cancelled() bool { return t.set.Load() }

// Worker owns one broker subscription for a disjoint partition subset and
// feeds polled records into the shared channel.
type Worker struct {
	id     int
	client BrokerClient

	assigned PartitionOffsetMap
	state    atomic.Int32
	token    CancelToken
}

func NewWorker(id int, client BrokerClient) *Worker {
	return &Worker{id: id, client: client}
}

func (w *Worker) ID() int            { return w.id }
func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

// Assign moves the worker from Idle to Assigned. Disjointness across
// workers is the assigner's guarantee, not re-checked here.
func (w *Worker) Assign(offsets PartitionOffsetMap) error {
	if len(offsets) == 0 {
		return fmt.Errorf("%w: empty assignment for worker %d", ErrInvalidConfiguration, w.id)
	}
	if !w.state.CompareAndSwap(int32(WorkerIdle), int32(WorkerAssigned)) {
		return fmt.Errorf("%w: worker %d is %s", ErrAlreadyAssigned, w.id, w.State())
	}
	w.assigned = offsets.Clone()
	return nil
}

// Cancel requests a cooperative stop. Idempotent, callable from any state.
func (w *Worker) Cancel() { w.token.Cancel() }

// Run subscribes the worker's client and polls until the wall-clock budget
// elapses, cancellation is requested, the channel shuts down, or the broker
// fails. The outcome is reported to the group via the completion callback,
// never by unwinding the coordinator thread.
func (w *Worker) Run(ctx context.Context, topic string, ch *Channel, budget, pollTimeout time.Duration) WorkerOutcome {
	log := logging.L().With("worker", w.id)

	if !w.state.CompareAndSwap(int32(WorkerAssigned), int32(WorkerRunning)) {
		err := fmt.Errorf("%w: worker %d ran from state %s", ErrInvalidConfiguration, w.id, w.State())
		w.state.Store(int32(WorkerFailed))
		return WorkerOutcome{WorkerID: w.id, State: WorkerFailed, Err: err}
	}

	if err := w.client.Subscribe(ctx, topic, w.assigned); err != nil {
		w.state.Store(int32(WorkerFailed))
		return WorkerOutcome{WorkerID: w.id, State: WorkerFailed, Err: BrokerError(err)}
	}

	deadline := time.Now().Add(budget)
	for {
		if w.token.Cancelled() {
			log.Debug("worker cancelled")
			w.state.Store(int32(WorkerCancelled))
			return WorkerOutcome{WorkerID: w.id, State: WorkerCancelled}
		}
		if !time.Now().Before(deadline) {
			log.Debug("worker budget elapsed")
			w.state.Store(int32(WorkerFinished))
			return WorkerOutcome{WorkerID: w.id, State: WorkerFinished}
		}

		rec, err := w.client.Poll(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.state.Store(int32(WorkerCancelled))
				return WorkerOutcome{WorkerID: w.id, State: WorkerCancelled}
			}
			log.Warn("worker poll failed", "err", err)
			w.state.Store(int32(WorkerFailed))
			return WorkerOutcome{WorkerID: w.id, State: WorkerFailed, Err: BrokerError(err)}
		}
		if rec == nil {
			// poll timeout, re-check flags
			continue
		}

		if !ch.Push(rec) {
			// Consumer side is gone; the record stays ours and is dropped.
			log.Debug("channel shut down, worker stopping")
			w.state.Store(int32(WorkerFinished))
			return WorkerOutcome{WorkerID: w.id, State: WorkerFinished}
		}
	}
}

// commitShare advisory-commits consumed offsets for the partitions this
// worker owned. The map holds only partitions that yielded records, so a
// partition that stayed at its begin offset is never committed.
func (w *Worker) commitShare(consumed PartitionOffsetMap) error {
	share := make(map[int32]int64, len(w.assigned))
	for p := range w.assigned {
		if off, ok := consumed[p]; ok {
			share[p] = off
		}
	}
	if len(share) == 0 {
		return nil
	}
	return w.client.Commit(share)
}
