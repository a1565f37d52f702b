// Package config loads the engine configuration consumed by the quarry
// CLI: corpus location, backend selection, default query budget,
// embedding provider settings, and logging.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quarrylabs/quarry/internal/budget"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Corpus     CorpusConfig     `yaml:"corpus" json:"corpus"`
	Backend    BackendConfig    `yaml:"backend" json:"backend"`
	Budget     BudgetConfig     `yaml:"budget" json:"budget"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// CorpusConfig locates the corpus directory and the artifact root.
type CorpusConfig struct {
	// Root is the directory tree treated as the corpus.
	Root string `yaml:"root" json:"root"`
	// ArtifactDir overrides where snapshot artifacts are written.
	// Empty means <root>/.quarry.
	ArtifactDir string `yaml:"artifact_dir" json:"artifact_dir"`
}

// BackendConfig selects and configures the retrieval backend.
type BackendConfig struct {
	ID            string         `yaml:"id" json:"id"`
	Name          string         `yaml:"name" json:"name"`
	Configuration map[string]any `yaml:"configuration" json:"configuration"`
}

// BudgetConfig is the default query budget applied by the CLI when no
// flags override it.
type BudgetConfig struct {
	MaxTotalItems     int `yaml:"max_total_items" json:"max_total_items"`
	Offset            int `yaml:"offset" json:"offset"`
	MaxTotalChars     int `yaml:"maximum_total_characters" json:"maximum_total_characters"`
	MaxItemsPerSource int `yaml:"max_items_per_source" json:"max_items_per_source"`
}

// EmbeddingsConfig configures the deterministic hash embedder.
type EmbeddingsConfig struct {
	Seed      uint64 `yaml:"seed" json:"seed"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Backend: BackendConfig{
			ID:   "lexical",
			Name: "default",
		},
		Budget: BudgetConfig{
			MaxTotalItems: budget.DefaultMaxTotalItems,
		},
		Embeddings: EmbeddingsConfig{
			Seed:      42,
			CacheSize: 1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qerrors.Newf(qerrors.ErrCodeConfigNotFound, "config file %s not found", path)
		}
		return nil, qerrors.Wrap(qerrors.ErrCodeConfigInvalid, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field invariants the CLI relies on.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return qerrors.ConfigError("unsupported config version %d", c.Version)
	}
	if c.Backend.ID == "" {
		return qerrors.ConfigError("backend.id must not be empty")
	}
	if c.Backend.Name == "" {
		return qerrors.ConfigError("backend.name must not be empty")
	}
	if c.Embeddings.CacheSize < 1 {
		return qerrors.ConfigError("embeddings.cache_size must be >= 1, got %d", c.Embeddings.CacheSize)
	}
	return c.QueryBudget().Validate()
}

// QueryBudget converts the configured defaults into a query budget.
func (c *Config) QueryBudget() budget.Budget {
	return budget.Budget{
		MaxTotalItems:     c.Budget.MaxTotalItems,
		Offset:            c.Budget.Offset,
		MaxTotalChars:     c.Budget.MaxTotalChars,
		MaxItemsPerSource: c.Budget.MaxItemsPerSource,
	}
}

// WriteYAML writes the configuration to a file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeConfigInvalid, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeConfigInvalid, err)
	}
	return nil
}
