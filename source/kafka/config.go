package kafka

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Brokers  []string `koanf:"brokers"`
	GroupID  string   `koanf:"group_id"` // advisory commits only; "" disables them
	Version  string   `koanf:"version"`
	TLSEn    bool     `koanf:"tls_enabled"`
	SASLUser string   `koanf:"sasl_user"`
	SASLPass string   `koanf:"sasl_pass"`

	// BufferSize bounds the merged message channel a subscription fans
	// its partition consumers into.
	BufferSize int `koanf:"buffer_size"`

	// DialTimeout bounds broker connection establishment.
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// LoadConfig merges YAML (if present) with env-vars
// (prefix `STREAMLOAD_KAFKA__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("kafka schema_version %q not supported (want v1)", sv)
	}

	// STREAMLOAD_KAFKA__GROUP_ID -> group_id; "__" separates nesting so a
	// single underscore inside a field name survives.
	_ = k.Load(env.Provider("STREAMLOAD_KAFKA__", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "STREAMLOAD_KAFKA__")), "__", ".")
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 30 * time.Second
	}
}
