package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"streamload/internal/spec"
)

const SupportedSchema = "v1"

// LoadJobSpec parses a job YAML, validates schema_version and the job
// section, and returns the parsed spec and an absolute path to the source
// config (if set).
func LoadJobSpec(path string) (spec.File, string, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, "", err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, "", fmt.Errorf("job schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	applyJobDefaults(&cfg.Job)
	if err := validateJob(cfg.Job); err != nil {
		return cfg, "", err
	}
	confPath := cfg.Source.Config
	if confPath != "" && !filepath.IsAbs(confPath) {
		confPath = filepath.Join(filepath.Dir(path), confPath)
	}
	return cfg, confPath, nil
}

func applyJobDefaults(j *spec.JobSection) {
	if j.Workers == 0 {
		j.Workers = 1
	}
	if j.MaxIntervalS == 0 {
		j.MaxIntervalS = 60
	}
	if j.RowDelimiter == "" {
		j.RowDelimiter = "\n"
	}
}

func validateJob(j spec.JobSection) error {
	if j.Topic == "" {
		return fmt.Errorf("job: topic is required")
	}
	if len(j.Partitions) == 0 {
		return fmt.Errorf("job: at least one partition is required")
	}
	if j.Workers < 1 {
		return fmt.Errorf("job: workers must be >= 1, got %d", j.Workers)
	}
	if j.Workers > len(j.Partitions) {
		return fmt.Errorf("job: %d workers for %d partitions", j.Workers, len(j.Partitions))
	}
	if len(j.RowDelimiter) != 1 {
		return fmt.Errorf("job: row_delimiter must be a single byte, got %q", j.RowDelimiter)
	}
	return nil
}
