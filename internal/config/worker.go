package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerConfig is the file-based configuration for the background worker
// (offer expiry sweep and event outbox retry). Loaded from CONFIG_PATH,
// defaulting to worker.yaml.
type WorkerConfig struct {
	DBDSN string `yaml:"db_dsn"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	SweepInterval  time.Duration `yaml:"sweep_interval"`
	OutboxInterval time.Duration `yaml:"outbox_interval"`
	OutboxBatch    int           `yaml:"outbox_batch"`
}

// LoadWorker reads and validates the worker configuration file.
func LoadWorker(path string) (*WorkerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read worker config: %w", err)
	}

	cfg := &WorkerConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse worker config: %w", err)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("db_dsn is required")
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.OutboxInterval <= 0 {
		cfg.OutboxInterval = 30 * time.Second
	}
	if cfg.OutboxBatch <= 0 {
		cfg.OutboxBatch = 100
	}

	return cfg, nil
}
