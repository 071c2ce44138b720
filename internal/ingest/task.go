package ingest

import (
	"context"
	"time"

	"streamload/sink"
)

// Record is one broker message in flight between a worker and the drain
// loop. Ownership moves with the record: the worker hands it to the channel
// on Push, the drain loop takes it on Pop.
type Record struct {
	Partition int32
	Offset    int64
	Payload   []byte
}

func (r *Record) Len() int64 { return int64(len(r.Payload)) }

// PartitionOffsetMap maps partition id to the last offset whose payload was
// appended to the pipe. Entries only ever move forward.
type PartitionOffsetMap map[int32]int64

// Clone returns an independent copy.
func (m PartitionOffsetMap) Clone() PartitionOffsetMap {
	out := make(PartitionOffsetMap, len(m))
	for p, o := range m {
		out[p] = o
	}
	return out
}

// BrokerClient is the subscription a single worker owns. Poll returns
// (nil, nil) when no record arrived within the timeout; Commit is advisory
// only — the authoritative progress record is the offset map returned in
// the attempt result.
type BrokerClient interface {
	Subscribe(ctx context.Context, topic string, offsets map[int32]int64) error
	Poll(ctx context.Context, timeout time.Duration) (*Record, error)
	Commit(offsets map[int32]int64) error
	Close() error
}

// Task is the immutable configuration for one ingestion attempt. It is
// owned by the caller; the coordinator and workers only read it.
type Task struct {
	Topic        string
	Offsets      PartitionOffsetMap // partition -> begin offset
	MaxInterval  time.Duration      // wall-clock budget for the attempt
	MaxBatchSize int64              // byte budget for the batch
	Format       sink.Format
	RowDelimiter byte // used only for FormatDelimited
	Pipe         sink.Pipe

	// PollTimeout bounds a single broker poll so workers re-check the
	// cancel flag and budget at least this often. Zero means 1s.
	PollTimeout time.Duration

	// ChannelCapacity bounds the shared record channel. Zero means 1024.
	ChannelCapacity int
}

func (t *Task) pollTimeout() time.Duration {
	if t.PollTimeout <= 0 {
		return time.Second
	}
	return t.PollTimeout
}

func (t *Task) channelCapacity() int {
	if t.ChannelCapacity <= 0 {
		return 1024
	}
	return t.ChannelCapacity
}

// Status is the terminal state of one ingestion attempt.
type Status int

const (
	StatusCompleted Status = iota
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the single artifact of an attempt that outlives the coordinator
// call. Offsets is populated only on StatusCompleted; Err only on
// StatusCancelled (the reason) and StatusFailed (the cause).
type Result struct {
	Status        Status
	ConsumedBytes int64
	ReceivedRows  int64
	Offsets       PartitionOffsetMap
	Err           error
}

// WorkerOutcome is a worker's terminal status, reported exactly once
// through the group's completion callback.
type WorkerOutcome struct {
	WorkerID int
	State    WorkerState
	Err      error
}
