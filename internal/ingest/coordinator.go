package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamload/internal/logging"
	"streamload/internal/telemetry"
	"streamload/sink"
)

// Group coordinates one ingestion attempt: it launches the worker set on a
// bounded pool, drains the shared channel on the calling goroutine under the
// attempt's time and byte budgets, and drives the unified shutdown path.
type Group struct {
	id      string
	workers []*Worker
	channel *Channel
	pool    *Pool

	mu       sync.Mutex
	live     int
	groupErr error
}

// NewGroup builds a coordinator over workers. poolSize bounds concurrent
// worker executions; normally it equals len(workers).
func NewGroup(workers []*Worker, channelCap, poolSize int) *Group {
	return &Group{
		id:      uuid.NewString(),
		workers: workers,
		channel: NewChannel(channelCap),
		pool:    NewPool(poolSize),
	}
}

func (g *Group) ID() string { return g.id }

// workerDone is the completion callback, invoked once per worker from
// whichever goroutine finished it. The last worker out shuts the channel
// down, which is the sole producer-side shutdown trigger and guarantees the
// drain loop terminates even if nothing was ever produced. Errors aggregate
// first-error-wins; later ones are only logged.
func (g *Group) workerDone(out WorkerOutcome) {
	g.mu.Lock()
	g.live--
	live := g.live
	if out.Err != nil {
		if g.groupErr == nil {
			g.groupErr = out.Err
		} else {
			logging.L().Warn("suppressing subsequent worker error",
				"group", g.id, "worker", out.WorkerID, "err", out.Err)
		}
	}
	g.mu.Unlock()

	logging.L().Debug("worker finished", "group", g.id,
		"worker", out.WorkerID, "state", out.State.String(), "live", live)
	if live == 0 {
		g.channel.Shutdown()
		logging.L().Info("all workers finished, channel shut down", "group", g.id)
	}
}

// Run executes the attempt. Exactly one terminal Result is produced; worker
// errors never unwind this goroutine directly.
func (g *Group) Run(ctx context.Context, task *Task) Result {
	log := logging.L().With("group", g.id, "topic", task.Topic)

	parts, err := AssignPartitions(task.Offsets, len(g.workers))
	if err != nil {
		_ = task.Pipe.Cancel(err)
		return g.terminal(Result{Status: StatusFailed, Err: err})
	}
	for i, w := range g.workers {
		if err := w.Assign(parts[i]); err != nil {
			_ = task.Pipe.Cancel(err)
			return g.terminal(Result{Status: StatusFailed, Err: err})
		}
	}

	g.mu.Lock()
	g.live = len(g.workers)
	g.mu.Unlock()

	for _, w := range g.workers {
		w := w
		err := g.pool.Submit(func() {
			g.workerDone(w.Run(ctx, task.Topic, g.channel, task.MaxInterval, task.pollTimeout()))
		})
		if err != nil {
			// A worker we could not launch must not strand the ones we
			// could: cancel, shut down, and join before returning.
			log.Warn("failed to submit worker", "worker", w.ID(), "err", err)
			for _, w2 := range g.workers {
				w2.Cancel()
			}
			g.channel.Shutdown()
			g.pool.Shutdown()
			g.pool.Join()
			g.channel.Drain()
			_ = task.Pipe.Cancel(ErrSubmissionRejected)
			return g.terminal(Result{Status: StatusFailed, Err: ErrSubmissionRejected})
		}
		log.Debug("submitted worker", "worker", w.ID())
	}

	appender := sink.NewAppender(task.Pipe, task.Format, task.RowDelimiter)

	log.Info("start consumer group",
		"max_interval_ms", task.MaxInterval.Milliseconds(),
		"max_batch_bytes", task.MaxBatchSize,
		"workers", len(g.workers))

	watch := time.Now()
	leftTime := task.MaxInterval
	leftBytes := task.MaxBatchSize
	var receivedRows, consumedBytes int64
	offsets := task.Offsets.Clone()
	advanced := make(PartitionOffsetMap, len(offsets))
	var appendErr error
	eos := false

	for {
		if eos || leftTime <= 0 || leftBytes <= 0 {
			break
		}
		rec, ok := g.channel.Pop()
		if !ok {
			// channel is empty and shut down
			eos = true
		} else {
			telemetry.ChannelDepth.Set(float64(g.channel.Len()))
			if err := appender.Append(rec.Payload); err != nil {
				// failed to append this record, stop the whole attempt
				log.Warn("failed to append record to pipe",
					"partition", rec.Partition, "offset", rec.Offset, "err", err)
				appendErr = AppendError(err)
				eos = true
			} else {
				receivedRows++
				consumedBytes += rec.Len()
				leftBytes -= rec.Len()
				offsets[rec.Partition] = rec.Offset
				advanced[rec.Partition] = rec.Offset
			}
		}
		leftTime = task.MaxInterval - time.Since(watch)
	}

	for _, w := range g.workers {
		w.Cancel()
	}
	g.channel.Shutdown()
	g.pool.Shutdown()
	g.pool.Join()
	g.channel.Drain()

	g.mu.Lock()
	groupErr := g.groupErr
	g.mu.Unlock()
	if groupErr == nil {
		groupErr = appendErr
	}

	telemetry.ObserveChannelWait(g.channel.BlockedPushTime(), g.channel.BlockedPopTime())
	telemetry.ChannelDepth.Set(0)

	log.Info("consumer group done",
		"consume_time_ms", (task.MaxInterval - leftTime).Milliseconds(),
		"received_rows", receivedRows,
		"received_bytes", consumedBytes,
		"eos", eos,
		"left_time_ms", leftTime.Milliseconds(),
		"left_bytes", leftBytes,
		"blocking_get_ms", g.channel.BlockedPopTime().Milliseconds(),
		"blocking_put_ms", g.channel.BlockedPushTime().Milliseconds())

	if groupErr != nil {
		_ = task.Pipe.Cancel(groupErr)
		return g.terminal(Result{Status: StatusFailed, Err: groupErr})
	}
	if consumedBytes == 0 {
		// Nothing consumed: the pipe must not be finished without data.
		_ = task.Pipe.Cancel(ErrNoData)
		return g.terminal(Result{Status: StatusCancelled, Err: ErrNoData})
	}
	if err := task.Pipe.Finish(); err != nil {
		return g.terminal(Result{Status: StatusFailed, Err: AppendError(err)})
	}

	// Advisory: the authoritative progress record is the returned map. Only
	// partitions that actually yielded records are committed; an untouched
	// begin offset is a next-to-read marker, not a consumed position.
	for _, w := range g.workers {
		if err := w.commitShare(advanced); err != nil {
			log.Warn("advisory offset commit failed", "worker", w.ID(), "err", err)
		}
	}

	telemetry.RecordsConsumed.Add(float64(receivedRows))
	telemetry.BytesConsumed.Add(float64(consumedBytes))
	return g.terminal(Result{
		Status:        StatusCompleted,
		ConsumedBytes: consumedBytes,
		ReceivedRows:  receivedRows,
		Offsets:       offsets,
	})
}

func (g *Group) terminal(r Result) Result {
	telemetry.Attempts.WithLabelValues(r.Status.String()).Inc()
	return r
}

// RunAttempt is the synchronous entry point for one ingestion attempt: one
// broker client per worker, one terminal Result.
func RunAttempt(ctx context.Context, task *Task, clients []BrokerClient) Result {
	if task == nil || task.Pipe == nil || len(clients) == 0 {
		if task != nil && task.Pipe != nil {
			_ = task.Pipe.Cancel(ErrInvalidConfiguration)
		}
		return Result{Status: StatusFailed, Err: ErrInvalidConfiguration}
	}
	workers := make([]*Worker, len(clients))
	for i, c := range clients {
		workers[i] = NewWorker(i, c)
	}
	g := NewGroup(workers, task.channelCapacity(), len(workers))
	return g.Run(ctx, task)
}
