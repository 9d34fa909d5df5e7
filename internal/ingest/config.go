package ingest

import (
	"errors"

	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/env"
)

type Config struct {
	// Concurrency bounds in-flight record operations per stage.
	Concurrency     int    `env:"KNESSET_SYNC_CONCURRENCY" envDefault:"8"`
	MaxRunErrors    int    `env:"KNESSET_MAX_RUN_ERRORS" envDefault:"200"`
	CollectionsFile string `env:"KNESSET_COLLECTIONS_FILE"`
	SnapshotMirror  bool   `env:"KNESSET_SNAPSHOT_MIRROR" envDefault:"false"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > 256 {
		return errors.New("KNESSET_SYNC_CONCURRENCY must be between 1 and 256")
	}
	if c.MaxRunErrors < 1 {
		return errors.New("KNESSET_MAX_RUN_ERRORS must be >= 1")
	}
	return nil
}
