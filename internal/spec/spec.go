package spec

type StdoutSection struct {
	PrintRows bool `yaml:"print_rows"`
	MaxBytes  int  `yaml:"value_max_bytes"`
}

type BlobSection struct {
	URL         string `yaml:"url"`
	Key         string `yaml:"key"`
	Compression string `yaml:"compression"`
}

type KafkaSection struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int16    `yaml:"required_acks"`
}

type SinkConfigs struct {
	Stdout StdoutSection `yaml:"stdout"`
	Blob   BlobSection   `yaml:"blob"`
	Kafka  KafkaSection  `yaml:"kafka"`
}

// JobSection describes one ingestion attempt.
type JobSection struct {
	Topic         string          `yaml:"topic"`
	Partitions    map[int32]int64 `yaml:"partitions"` // partition -> begin offset
	Workers       int             `yaml:"workers"`
	MaxIntervalS  int             `yaml:"max_interval_s"`
	MaxBatchBytes int64           `yaml:"max_batch_bytes"`
	Format        string          `yaml:"format"`        // delimited | structured
	RowDelimiter  string          `yaml:"row_delimiter"` // single byte, delimited only
	PollTimeoutMS int             `yaml:"poll_timeout_ms"`
	ChannelCap    int             `yaml:"channel_capacity"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Job JobSection `yaml:"job"`

	Source struct {
		Driver string `yaml:"driver"`
		Config string `yaml:"config"`
	} `yaml:"source"`

	Sink        string      `yaml:"sink"`
	SinkConfigs SinkConfigs `yaml:"sink_configs"`
}
