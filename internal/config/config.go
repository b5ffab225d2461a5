// Package config loads the engine's startup configuration from YAML,
// following the ambient convention of the surrounding stack: plain structs
// with yaml tags and sane zero-value defaults, decoded with
// gopkg.in/yaml.v3 rather than a bespoke parser.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReplacerPolicy selects the buffer pool's eviction strategy.
type ReplacerPolicy string

const (
	ReplacerLRU  ReplacerPolicy = "lru"
	ReplacerLRUK ReplacerPolicy = "lru-k"
)

// DBConfig is the full set of knobs for opening a database file.
type DBConfig struct {
	Path            string         `yaml:"path"`
	PageSize        int            `yaml:"page_size"`
	BufferPoolPages int            `yaml:"buffer_pool_pages"`
	Replacer        ReplacerPolicy `yaml:"replacer"`
	ReplacerK       int            `yaml:"replacer_k"`
	CheckpointCron  string         `yaml:"checkpoint_cron"`
}

// defaults fills zero-valued fields with the engine's stock configuration.
func (c *DBConfig) defaults() {
	if c.PageSize == 0 {
		c.PageSize = 4096
	}
	if c.BufferPoolPages == 0 {
		c.BufferPoolPages = 1024
	}
	if c.Replacer == "" {
		c.Replacer = ReplacerLRU
	}
	if c.ReplacerK == 0 {
		c.ReplacerK = 2
	}
}

// Load reads and decodes a DBConfig from a YAML file, applying defaults to
// any field the file leaves unset.
func Load(path string) (*DBConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg DBConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.defaults()
	if cfg.Replacer != ReplacerLRU && cfg.Replacer != ReplacerLRUK {
		return nil, fmt.Errorf("config: unknown replacer policy %q", cfg.Replacer)
	}
	return &cfg, nil
}

// Default returns the stock configuration for a database at path.
func Default(path string) *DBConfig {
	cfg := &DBConfig{Path: path}
	cfg.defaults()
	return cfg
}
