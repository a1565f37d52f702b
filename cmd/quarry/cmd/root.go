// Package cmd provides the CLI commands for quarry.
package cmd

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/backend"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/corpus"
	"github.com/quarrylabs/quarry/internal/embed"
	"github.com/quarrylabs/quarry/internal/logging"
	"github.com/quarrylabs/quarry/pkg/version"
)

// defaultConfigFile is looked up in the working directory when --config
// is not given.
const defaultConfigFile = "quarry.yaml"

var (
	configPath     string
	logLevel       string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Pluggable retrieval engine over a document corpus",
		Long: `Quarry materializes retrieval snapshots over a document corpus and
answers queries with ranked, budget-constrained evidence snippets.

Backends range from a naive scan to SQLite full-text search, dense
embedding indexes, and hybrid weighted fusion.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the engine config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newBackendsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(*cobra.Command, []string) error {
	cfg, err := loadConfig()
	if err != nil {
		// Commands that do not need a config (init, version) still run;
		// config errors surface when the engine is actually constructed.
		return nil
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	_, cleanup, err := logging.Setup(logging.Config{
		Level:         level,
		FilePath:      cfg.Logging.File,
		WriteToStderr: cfg.Logging.File == "",
	})
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

// loadConfig resolves the effective config: --config when given, a
// quarry.yaml in the working directory otherwise, built-in defaults as
// the fallback.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	return config.Load(path)
}

// engine bundles the collaborators every data command needs.
type engine struct {
	cfg      *config.Config
	corpus   *corpus.DirCorpus
	registry *backend.Registry
	embedder embed.Embedder
}

func newEngine() (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	root := cfg.Corpus.Root
	if root == "" {
		root = "."
	}
	c, err := corpus.NewDirCorpus(root, cfg.Corpus.ArtifactDir)
	if err != nil {
		return nil, err
	}
	embedder := embed.NewCachedEmbedder(
		embed.NewStaticEmbedder(cfg.Embeddings.Seed), cfg.Embeddings.CacheSize)
	return &engine{
		cfg:      cfg,
		corpus:   c,
		registry: backend.NewRegistry(embedder),
		embedder: embedder,
	}, nil
}

func (e *engine) Close() {
	_ = e.embedder.Close()
}

// stdoutIsTerminal reports whether stdout is an interactive terminal;
// non-interactive output stays plain for piping.
func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
