package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"streamload/sink"
)

type capturePipe struct {
	mu        sync.Mutex
	appended  []byte
	rows      int
	calls     int
	failAt    int // fail the nth Append (1-based), 0 = never
	appendErr error
	finished  bool
	cancelled bool
	reason    error
}

func (c *capturePipe) Configure(any) error { return nil }

func (c *capturePipe) Append(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failAt > 0 && c.calls >= c.failAt {
		return c.appendErr
	}
	c.appended = append(c.appended, p...)
	c.rows++
	return nil
}

func (c *capturePipe) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = true
	return nil
}

func (c *capturePipe) Cancel(reason error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	c.reason = reason
	return nil
}

func testTask(pipe sink.Pipe, offsets PartitionOffsetMap, interval time.Duration, batch int64) *Task {
	return &Task{
		Topic:           "events",
		Offsets:         offsets,
		MaxInterval:     interval,
		MaxBatchSize:    batch,
		Format:          sink.FormatStructured,
		RowDelimiter:    '\n',
		Pipe:            pipe,
		PollTimeout:     5 * time.Millisecond,
		ChannelCapacity: 16,
	}
}

// Four partitions of ten 50-byte records against a 1000-byte budget: the
// batch caps at exactly 20 records and the attempt completes.
func TestRunAttempt_ByteQuotaCapsBatch(t *testing.T) {
	c1 := &fakeClient{perPart: 10, payload: 50}
	c2 := &fakeClient{perPart: 10, payload: 50}
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 0, 1: 0, 2: 0, 3: 0}, 60*time.Second, 1000)

	res := RunAttempt(context.Background(), task, []BrokerClient{c1, c2})
	if res.Status != StatusCompleted {
		t.Fatalf("want completed, got %s (err=%v)", res.Status, res.Err)
	}
	if res.ConsumedBytes != 1000 || res.ReceivedRows != 20 {
		t.Fatalf("want 1000 bytes / 20 rows, got %d / %d", res.ConsumedBytes, res.ReceivedRows)
	}
	if len(pipe.appended) != 1000 {
		t.Fatalf("pipe holds %d bytes, want 1000", len(pipe.appended))
	}
	if !pipe.finished || pipe.cancelled {
		t.Fatalf("pipe finished=%v cancelled=%v, want finished only", pipe.finished, pipe.cancelled)
	}
	if len(res.Offsets) != 4 {
		t.Fatalf("offset map has %d entries, want 4", len(res.Offsets))
	}
	for p, off := range res.Offsets {
		if off < 0 || off > 9 {
			t.Fatalf("partition %d: offset %d outside produced range", p, off)
		}
	}
}

func TestRunAttempt_BrokerErrorFailsAttempt(t *testing.T) {
	boom := errors.New("broker connection lost")
	bad := &fakeClient{perPart: 3, payload: 10, pollErr: boom, pollDelay: 10 * time.Millisecond}
	idle := &fakeClient{}
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 5, 1: 5}, 300*time.Millisecond, 10_000)

	res := RunAttempt(context.Background(), task, []BrokerClient{bad, idle})
	if res.Status != StatusFailed {
		t.Fatalf("want failed, got %s", res.Status)
	}
	if !errors.Is(res.Err, boom) {
		t.Fatalf("result does not wrap the broker error: %v", res.Err)
	}
	if res.Offsets != nil {
		t.Fatalf("failed attempt must not report offsets, got %v", res.Offsets)
	}
	if !pipe.cancelled || pipe.finished {
		t.Fatalf("pipe cancelled=%v finished=%v, want cancelled only", pipe.cancelled, pipe.finished)
	}
}

func TestRunAttempt_FirstErrorWins(t *testing.T) {
	first := errors.New("first failure")
	second := errors.New("second failure")
	c1 := &fakeClient{pollErr: first}
	c2 := &fakeClient{pollErr: second, pollDelay: 150 * time.Millisecond}
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 0, 1: 0}, 10*time.Second, 1000)

	res := RunAttempt(context.Background(), task, []BrokerClient{c1, c2})
	if res.Status != StatusFailed {
		t.Fatalf("want failed, got %s", res.Status)
	}
	if !errors.Is(res.Err, first) {
		t.Fatalf("want the earliest worker error, got %v", res.Err)
	}
}

// A zero byte budget exhausts the quota on the first loop check: nothing is
// popped and the attempt cancels with NoData.
func TestRunAttempt_ZeroByteBudget(t *testing.T) {
	c := &fakeClient{perPart: 10, payload: 50}
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 0}, 10*time.Second, 0)

	res := RunAttempt(context.Background(), task, []BrokerClient{c})
	if res.Status != StatusCancelled || !errors.Is(res.Err, ErrNoData) {
		t.Fatalf("want cancelled with ErrNoData, got %s / %v", res.Status, res.Err)
	}
	if pipe.rows != 0 {
		t.Fatalf("pipe received %d rows, want none", pipe.rows)
	}
	if !pipe.cancelled || pipe.finished {
		t.Fatalf("pipe cancelled=%v finished=%v, want cancelled only", pipe.cancelled, pipe.finished)
	}
}

func TestRunAttempt_NoDataProducedIsCancelled(t *testing.T) {
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 0, 1: 0}, 100*time.Millisecond, 1000)

	res := RunAttempt(context.Background(), task, []BrokerClient{&fakeClient{}, &fakeClient{}})
	if res.Status != StatusCancelled || !errors.Is(res.Err, ErrNoData) {
		t.Fatalf("want cancelled with ErrNoData, got %s / %v", res.Status, res.Err)
	}
	if !pipe.cancelled || pipe.finished {
		t.Fatalf("pipe cancelled=%v finished=%v, want cancelled only", pipe.cancelled, pipe.finished)
	}
}

func TestRunAttempt_AppendFailureFailsFast(t *testing.T) {
	sinkErr := errors.New("pipe rejected payload")
	c := &fakeClient{perPart: 5, payload: 10}
	pipe := &capturePipe{failAt: 2, appendErr: sinkErr}
	task := testTask(pipe, PartitionOffsetMap{0: 0}, 10*time.Second, 10_000)

	res := RunAttempt(context.Background(), task, []BrokerClient{c})
	if res.Status != StatusFailed || !errors.Is(res.Err, sinkErr) {
		t.Fatalf("want failed wrapping the append error, got %s / %v", res.Status, res.Err)
	}
	if pipe.rows != 1 {
		t.Fatalf("pipe accepted %d rows before the failure, want 1", pipe.rows)
	}
	if !pipe.cancelled || pipe.finished {
		t.Fatalf("pipe cancelled=%v finished=%v, want cancelled only", pipe.cancelled, pipe.finished)
	}
}

// A saturated pool must not strand already-submitted workers: the group
// cancels them, joins, and reports the rejection.
func TestGroup_SubmissionRejectedCancelsAndJoins(t *testing.T) {
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 0, 1: 0}, 10*time.Second, 1000)

	workers := []*Worker{
		NewWorker(0, &fakeClient{}),
		NewWorker(1, &fakeClient{}),
	}
	g := NewGroup(workers, 16, 1) // one slot for two workers

	done := make(chan Result, 1)
	go func() { done <- g.Run(context.Background(), task) }()

	select {
	case res := <-done:
		if res.Status != StatusFailed || !errors.Is(res.Err, ErrSubmissionRejected) {
			t.Fatalf("want failed with ErrSubmissionRejected, got %s / %v", res.Status, res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("group did not tear down after a rejected submission")
	}
	if st := workers[0].State(); st != WorkerCancelled && st != WorkerFinished {
		t.Fatalf("submitted worker left in state %s after teardown", st)
	}
	if !pipe.cancelled {
		t.Fatal("pipe not cancelled on submission rejection")
	}
}

func TestRunAttempt_DelimitedFormatAppendsDelimiter(t *testing.T) {
	c := &fakeClient{perPart: 1, payload: 3}
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 0}, 5*time.Second, 100)
	task.Format = sink.FormatDelimited
	task.RowDelimiter = '\n'

	res := RunAttempt(context.Background(), task, []BrokerClient{c})
	if res.Status != StatusCompleted {
		t.Fatalf("want completed, got %s (err=%v)", res.Status, res.Err)
	}
	// consumed bytes count the payload, the pipe gets payload+delimiter
	if res.ConsumedBytes != 3 {
		t.Fatalf("want 3 consumed bytes, got %d", res.ConsumedBytes)
	}
	if len(pipe.appended) != 4 || pipe.appended[3] != '\n' {
		t.Fatalf("pipe content %q lacks the row delimiter", pipe.appended)
	}
}

func TestRunAttempt_CommitsAdvisoryOffsetsOnCompletion(t *testing.T) {
	c := &fakeClient{perPart: 2, payload: 10}
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 0}, 5*time.Second, 1000)

	res := RunAttempt(context.Background(), task, []BrokerClient{c})
	if res.Status != StatusCompleted {
		t.Fatalf("want completed, got %s (err=%v)", res.Status, res.Err)
	}
	c.mu.Lock()
	committed := c.committed
	c.mu.Unlock()
	if committed[0] != res.Offsets[0] {
		t.Fatalf("advisory commit %v does not match result offsets %v", committed, res.Offsets)
	}
}

// A partition that never yields a record keeps its begin offset, which is a
// next-to-read marker: it must appear in the result but never be committed.
func TestRunAttempt_IdlePartitionIsNotCommitted(t *testing.T) {
	producer := &fakeClient{perPart: 2, payload: 10}
	idle := &fakeClient{}
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 100, 1: 500}, 10*time.Second, 20)

	res := RunAttempt(context.Background(), task, []BrokerClient{producer, idle})
	if res.Status != StatusCompleted {
		t.Fatalf("want completed, got %s (err=%v)", res.Status, res.Err)
	}
	if len(res.Offsets) != 2 {
		t.Fatalf("result offsets %v, want both partitions", res.Offsets)
	}

	idle.mu.Lock()
	idleCommitted := idle.committed
	idle.mu.Unlock()
	if idleCommitted != nil {
		t.Fatalf("idle worker committed %v for a partition that never advanced", idleCommitted)
	}

	producer.mu.Lock()
	committed := producer.committed
	producer.mu.Unlock()
	if len(committed) != 1 {
		t.Fatalf("producing worker committed %v, want its single partition", committed)
	}
	for p, off := range committed {
		if want := task.Offsets[p] + 1; off != want {
			t.Fatalf("partition %d: committed %d, want last consumed offset %d", p, off, want)
		}
		if res.Offsets[p] != off {
			t.Fatalf("partition %d: result offset %d disagrees with commit %d", p, res.Offsets[p], off)
		}
	}
}

// More workers than partitions leaves a worker with an empty assignment; the
// attempt must fail and release the pipe like every other failure path.
func TestRunAttempt_AssignmentFailureCancelsPipe(t *testing.T) {
	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{0: 0}, time.Second, 100)

	res := RunAttempt(context.Background(), task, []BrokerClient{&fakeClient{}, &fakeClient{}})
	if res.Status != StatusFailed || !errors.Is(res.Err, ErrInvalidConfiguration) {
		t.Fatalf("want invalid configuration, got %s / %v", res.Status, res.Err)
	}
	if !pipe.cancelled || pipe.finished {
		t.Fatalf("pipe cancelled=%v finished=%v, want cancelled only", pipe.cancelled, pipe.finished)
	}
}

func TestRunAttempt_InvalidInputs(t *testing.T) {
	res := RunAttempt(context.Background(), nil, nil)
	if res.Status != StatusFailed || !errors.Is(res.Err, ErrInvalidConfiguration) {
		t.Fatalf("want invalid configuration, got %s / %v", res.Status, res.Err)
	}

	pipe := &capturePipe{}
	task := testTask(pipe, PartitionOffsetMap{}, time.Second, 100)
	res = RunAttempt(context.Background(), task, []BrokerClient{&fakeClient{}})
	if res.Status != StatusFailed || !errors.Is(res.Err, ErrInvalidConfiguration) {
		t.Fatalf("want invalid configuration for empty partitions, got %s / %v", res.Status, res.Err)
	}
	if !pipe.cancelled {
		t.Fatal("pipe not cancelled on invalid configuration")
	}
}
