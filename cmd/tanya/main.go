// Package main is the Tanya CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/cli"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/internal/llm"
	"github.com/hyperjump/tanya/internal/search"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tanya/config.yaml"

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
	serverURL  string
	output     string
}

func main() {
	// A missing .env is fine; the environment may already carry the API keys.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "tanya",
		Short: "Tanya - ask questions about web pages and local documents",
		Long: `Tanya ingests pages (HTML, PDF, XLSX, text) into a vector store and answers
questions about one page at a time using retrieved context.

Example usage:
  tanya ingest https://en.wikipedia.org/wiki/Go_(programming_language)
  tanya ingest "docs/**/*.pdf"
  tanya ask page:1f3a... "Who designed Go?"
  tanya server`,
		SilenceUsage: true,
		Version:      version,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	pf.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	pf.StringVar(&opts.serverURL, "server", "", "send the command to a running tanya server (e.g. http://localhost:8080)")
	pf.StringVarP(&opts.output, "output", "o", string(cli.OutputText), "output format: text or json")

	root.AddCommand(
		newServerCmd(opts),
		newIngestCmd(opts),
		newAskCmd(opts),
		newPagesCmd(opts),
		newDeleteCmd(opts),
		newStatusCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory so commands run from a project dir use the
// project's config. When neither file exists the built-in defaults are used.
// Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and builds the console logger used by one-shot commands.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, cli.OutputFormat, error) {
	format, err := cli.ParseOutputFormat(o.output)
	if err != nil {
		return nil, nil, "", err
	}
	cfg, _, err := loadConfig(o.configPath)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || o.debug)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, format, nil
}

// Components holds the initialized services shared by the server and local commands.
type Components struct {
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Completer llm.Completer
	Fetcher   *extract.Fetcher
	Engine    *search.Engine
	Indexer   *indexer.Indexer
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents builds the shared services. fetchOpts configure the page
// fetcher; only local commands pass extract.AllowFile.
func initializeComponents(cfg *config.Config, logger *zap.Logger, fetchOpts ...extract.FetcherOption) (*Components, error) {
	store, err := storage.New(cfg.Storage, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var completer llm.Completer
	if cfg.Completion.APIKey() != "" {
		completer = llm.NewOpenAICompleter(cfg.Completion, logger)
	} else {
		logger.Warn("no completion API key set; answering is disabled",
			zap.String("api_key_env", cfg.Completion.APIKeyEnv))
	}

	fetcher := extract.NewFetcher(cfg.Fetch, logger, fetchOpts...)
	chunker := indexer.NewChunker(cfg.Chunking.MaxLen, cfg.Chunking.Overlap)
	idx := indexer.NewIndexer(store, embedder, chunker,
		indexer.WithLogger(logger),
		indexer.WithFetcher(fetcher),
	)
	engine := search.NewEngine(store, embedder, completer, cfg).WithLogger(logger)

	logger.Debug("components initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("completion", completer != nil),
	)

	return &Components{
		Storage:   store,
		Embedder:  embedder,
		Completer: completer,
		Fetcher:   fetcher,
		Engine:    engine,
		Indexer:   idx,
	}, nil
}
