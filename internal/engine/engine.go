package engine

import (
	"context"
	"fmt"
	"time"

	"streamload/internal/config"
	"streamload/internal/ingest"
	"streamload/internal/logging"
	"streamload/internal/spec"
	"streamload/sink"
	blobsink "streamload/sink/blob"
	kafkasink "streamload/sink/kafka"
	stdoutsink "streamload/sink/stdout"
	"streamload/source/kafka"
)

type Config struct {
	JobYml string
}

// RunIngestionAttempt loads the job file, builds the pipe and one broker
// client per worker, and executes a single synchronous attempt.
func RunIngestionAttempt(ctx context.Context, cfg Config) (ingest.Result, error) {
	js, kafkaPath, err := config.LoadJobSpec(cfg.JobYml)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("job spec: %w", err)
	}

	kc, err := config.LoadKafkaConfig(kafkaPath)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("kafka config: %w", err)
	}

	task, err := buildTask(js)
	if err != nil {
		return ingest.Result{}, err
	}

	clients := make([]ingest.BrokerClient, js.Job.Workers)
	for i := range clients {
		ad, err := kafka.NewAdapter(js.Source.Driver)
		if err == nil {
			if cerr := ad.Configure(kc); cerr != nil {
				err = fmt.Errorf("source: %w", cerr)
			}
		}
		if err != nil {
			// The pipe is already configured; release whatever it holds.
			_ = task.Pipe.Cancel(err)
			for _, c := range clients[:i] {
				_ = c.Close()
			}
			return ingest.Result{}, err
		}
		clients[i] = ad
	}
	defer func() {
		for _, c := range clients {
			if c != nil {
				_ = c.Close()
			}
		}
	}()

	res := ingest.RunAttempt(ctx, task, clients)
	logging.L().Info("ingestion attempt finished",
		"status", res.Status.String(),
		"received_rows", res.ReceivedRows,
		"received_bytes", res.ConsumedBytes,
		"err", res.Err)
	return res, nil
}

func buildTask(js spec.File) (*ingest.Task, error) {
	format, err := sink.ParseFormat(js.Job.Format)
	if err != nil {
		return nil, err
	}

	pipe, err := buildPipe(js)
	if err != nil {
		return nil, err
	}

	return &ingest.Task{
		Topic:           js.Job.Topic,
		Offsets:         ingest.PartitionOffsetMap(js.Job.Partitions).Clone(),
		MaxInterval:     time.Duration(js.Job.MaxIntervalS) * time.Second,
		MaxBatchSize:    js.Job.MaxBatchBytes,
		Format:          format,
		RowDelimiter:    js.Job.RowDelimiter[0],
		Pipe:            pipe,
		PollTimeout:     time.Duration(js.Job.PollTimeoutMS) * time.Millisecond,
		ChannelCapacity: js.Job.ChannelCap,
	}, nil
}

func buildPipe(js spec.File) (sink.Pipe, error) {
	name := js.Sink
	if name == "" {
		name = "stdout"
	}
	p, err := sink.NewPipe(name)
	if err != nil {
		return nil, err
	}

	switch name {
	case "stdout":
		err = p.Configure(stdoutsink.Config{
			PrintRows: js.SinkConfigs.Stdout.PrintRows,
			MaxBytes:  js.SinkConfigs.Stdout.MaxBytes,
		})
	case "blob":
		err = p.Configure(blobsink.Config{
			URL:         js.SinkConfigs.Blob.URL,
			Key:         js.SinkConfigs.Blob.Key,
			Compression: js.SinkConfigs.Blob.Compression,
		})
	case "kafka":
		err = p.Configure(kafkasink.Config{
			Brokers: js.SinkConfigs.Kafka.Brokers,
			Topic:   js.SinkConfigs.Kafka.Topic,
			Acks:    js.SinkConfigs.Kafka.Acks,
		})
	default:
		err = fmt.Errorf("no config block for sink %q", name)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
