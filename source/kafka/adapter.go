package kafka

import (
	"streamload/internal/ingest"
)

// Adapter is a broker client owned by exactly one worker: an explicit
// partition/offset subscription plus the poll/commit surface the ingest
// core consumes.
type Adapter interface {
	Configure(Config) error
	ingest.BrokerClient
}
