package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration rejects an attempt before any worker starts.
	ErrInvalidConfiguration = errors.New("ingest: invalid configuration")

	// ErrSubmissionRejected is returned when the execution pool cannot take
	// another worker.
	ErrSubmissionRejected = errors.New("ingest: worker submission rejected")

	// ErrNoData marks an attempt that finished without consuming a single
	// payload byte.
	ErrNoData = errors.New("ingest: no data consumed")

	// ErrAlreadyAssigned is returned by Worker.Assign outside the Idle state.
	ErrAlreadyAssigned = errors.New("ingest: worker already assigned")

	errPoolClosed = errors.New("ingest: pool is shut down")
)

// BrokerError wraps a broker-side failure observed by a worker. It is
// surfaced as the group error under first-error-wins.
func BrokerError(err error) error {
	return fmt.Errorf("ingest: broker: %w", err)
}

// AppendError wraps a pipe append failure. It is always fatal to the
// current attempt.
func AppendError(err error) error {
	return fmt.Errorf("ingest: append: %w", err)
}
