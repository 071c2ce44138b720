package ingest

import "fmt"

// AssignPartitions splits the begin-offset map round-robin across
// workerCount subsets. Subsets are disjoint, their union covers the input,
// and sizes differ by at most one. Iteration order of the input map decides
// which worker gets which partition; no ordering beyond balance is promised.
func AssignPartitions(offsets PartitionOffsetMap, workerCount int) ([]PartitionOffsetMap, error) {
	if workerCount < 1 {
		return nil, fmt.Errorf("%w: worker count %d", ErrInvalidConfiguration, workerCount)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: no partitions to assign", ErrInvalidConfiguration)
	}

	parts := make([]PartitionOffsetMap, workerCount)
	for i := range parts {
		parts[i] = make(PartitionOffsetMap)
	}
	i := 0
	for p, off := range offsets {
		parts[i%workerCount][p] = off
		i++
	}
	return parts, nil
}
