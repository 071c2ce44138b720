package kafka

import (
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"streamload/sink"
)

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int16    `yaml:"required_acks"` // 0,1,-1
}

// driver relays a batch to another Kafka topic. Rows are buffered locally
// and produced in one SendMessages call on Finish, so a cancelled attempt
// publishes nothing.
type driver struct {
	cfg Config
	p   sarama.SyncProducer

	mu   sync.Mutex
	rows []*sarama.ProducerMessage
	done bool
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	var err error
	d.p, err = sarama.NewSyncProducer(cfg.Brokers, sc)
	return err
}

func (d *driver) Append(payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return fmt.Errorf("kafka-sink: append after finish/cancel")
	}
	d.rows = append(d.rows, &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Value: sarama.ByteEncoder(payload),
	})
	return nil
}

func (d *driver) Finish() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return fmt.Errorf("kafka-sink: already finished")
	}
	d.done = true
	if len(d.rows) == 0 {
		return nil
	}
	if err := d.p.SendMessages(d.rows); err != nil {
		return fmt.Errorf("kafka-sink: produce batch: %w", err)
	}
	d.rows = nil
	return d.p.Close()
}

func (d *driver) Cancel(reason error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
	d.rows = nil
	if d.p != nil {
		return d.p.Close()
	}
	return nil
}

func init() { sink.Register("kafka", func() sink.Pipe { return &driver{} }) }
