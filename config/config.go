// Package config defines the engine- and per-KG-level tunables loaded
// from a YAML file at process startup: durability policy, checkpoint
// cadence, and the other storage and evaluation knobs an operator
// tunes per deployment.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/inputlayer/inputlayer/storage"
)

// Config is the top-level engine configuration: where KG data lives
// on disk, how durable each commit must be before it is acknowledged,
// how often a KG checkpoints its relation extensions, a worker pool
// size, and HNSW build parameters. The last two are loaded and carried
// here only; the engine does not read them.
type Config struct {
	// DataDir is the root directory under which each KG gets its own
	// subdirectory of WAL, checkpoint segments, and metadata.
	DataDir string `yaml:"data_dir"`

	// Durability selects the WAL fsync policy: "immediate" fsyncs
	// every commit, "group" batches fsyncs within GroupWindow.
	Durability  string        `yaml:"durability"`
	GroupWindow time.Duration `yaml:"group_window"`

	// CheckpointEvery is the number of commits between a KG's
	// automatic checkpoints (0 disables automatic checkpointing).
	CheckpointEvery int64 `yaml:"checkpoint_every"`

	// WorkerPoolSize is a worker pool size setting; no part of the
	// engine reads it.
	WorkerPoolSize int `yaml:"worker_pool_size"`

	HNSW HNSWConfig `yaml:"hnsw"`
}

// HNSWConfig holds HNSW build parameters. Index creation does not read
// it: every index is built with the evaluator's own defaults (M=16,
// efConstruction=200).
type HNSWConfig struct {
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
}

// Default returns the configuration InputLayer starts with when no
// config file is supplied.
func Default() Config {
	return Config{
		DataDir:         "./data",
		Durability:      "immediate",
		GroupWindow:     5 * time.Millisecond,
		CheckpointEvery: 10000,
		WorkerPoolSize:  4,
		HNSW:            HNSWConfig{M: 16, EfConstruction: 200},
	}
}

// Load reads and parses a YAML config file at path, layering it over
// Default so a file that only overrides a few fields still gets
// sensible values for the rest.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: read file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: parse yaml")
	}
	return cfg, nil
}

// DurabilityPolicy translates the config's string durability setting
// into the storage package's enum, defaulting to immediate fsync for
// an unrecognized or empty value.
func (c Config) DurabilityPolicy() storage.DurabilityPolicy {
	if c.Durability == "group" {
		return storage.DurabilityGroup
	}
	return storage.DurabilityImmediate
}
