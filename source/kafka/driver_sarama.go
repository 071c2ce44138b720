package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"streamload/internal/ingest"
	"streamload/internal/logging"
)

// SaramaDriver consumes explicitly assigned partitions from the offsets the
// caller supplies. It deliberately avoids consumer-group rebalancing: the
// ingest coordinator owns partition assignment, the broker does not.
type SaramaDriver struct {
	cfg  Config
	cl   sarama.Client
	cons sarama.Consumer
	om   sarama.OffsetManager

	topic string
	pcs   []sarama.PartitionConsumer

	msgs chan *sarama.ConsumerMessage
	errs chan *sarama.ConsumerError
	wg   sync.WaitGroup
}

func (d *SaramaDriver) Configure(config Config) error {
	d.cfg = config

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Net.DialTimeout = config.DialTimeout
	sc.Consumer.Return.Errors = true
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}

	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	if d.cons, err = sarama.NewConsumerFromClient(d.cl); err != nil {
		_ = d.cl.Close()
		return err
	}
	if config.GroupID != "" {
		if d.om, err = sarama.NewOffsetManagerFromClient(config.GroupID, d.cl); err != nil {
			_ = d.cons.Close()
			_ = d.cl.Close()
			return err
		}
	}
	return nil
}

// Subscribe opens one partition consumer per assigned partition and fans
// their messages into a single buffered channel Poll reads from.
func (d *SaramaDriver) Subscribe(ctx context.Context, topic string, offsets map[int32]int64) error {
	if d.cons == nil {
		return fmt.Errorf("sarama-driver: not configured")
	}
	if d.topic != "" {
		return fmt.Errorf("sarama-driver: already subscribed to %q", d.topic)
	}
	d.topic = topic
	d.msgs = make(chan *sarama.ConsumerMessage, d.cfg.BufferSize)
	d.errs = make(chan *sarama.ConsumerError, len(offsets))

	for p, off := range offsets {
		pc, err := d.cons.ConsumePartition(topic, p, off)
		if err != nil {
			return fmt.Errorf("sarama-driver: consume partition %d from %d: %w", p, off, err)
		}
		d.pcs = append(d.pcs, pc)
		logging.L().Debug("subscribed partition", "topic", topic, "partition", p, "offset", off)

		d.wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer d.wg.Done()
			for {
				select {
				case msg, ok := <-pc.Messages():
					if !ok {
						return
					}
					select {
					case d.msgs <- msg:
					case <-ctx.Done():
						return
					}
				case cerr, ok := <-pc.Errors():
					if !ok {
						return
					}
					select {
					case d.errs <- cerr:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(pc)
	}
	return nil
}

// Poll returns the next record from any assigned partition, or (nil, nil)
// when the timeout elapses with nothing to hand over.
func (d *SaramaDriver) Poll(ctx context.Context, timeout time.Duration) (*ingest.Record, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-d.msgs:
		return &ingest.Record{
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Payload:   msg.Value,
		}, nil
	case cerr := <-d.errs:
		return nil, cerr
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Commit marks the given offsets on the configured group. The marked
// position is offset+1: the next record to read.
func (d *SaramaDriver) Commit(offsets map[int32]int64) error {
	if d.om == nil {
		return nil
	}
	for p, off := range offsets {
		pom, err := d.om.ManagePartition(d.topic, p)
		if err != nil {
			return fmt.Errorf("sarama-driver: manage partition %d: %w", p, err)
		}
		pom.MarkOffset(off+1, "")
	}
	d.om.Commit()
	return nil
}

func (d *SaramaDriver) Close() error {
	for _, pc := range d.pcs {
		pc.AsyncClose()
	}
	// Drain the merged channels so forwarders parked on a full buffer can
	// observe their partition consumer closing.
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	for drained := false; !drained; {
		select {
		case <-d.msgs:
		case <-d.errs:
		case <-done:
			drained = true
		}
	}
	if d.om != nil {
		_ = d.om.Close()
	}
	if d.cons != nil {
		_ = d.cons.Close()
	}
	if d.cl != nil {
		_ = d.cl.Close()
	}
	return nil
}
