package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/cli"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/pageid"
	"github.com/hyperjump/tanya/internal/server"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/watcher"
	"github.com/hyperjump/tanya/pkg/utils"
)

const clientTimeout = 5 * time.Minute

func newServerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedConfigPath, err := loadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			debugMode := cfg.Debug || opts.debug
			logger, err := utils.NewLogger(debugMode)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			logger.Info("config loaded",
				zap.String("config_path", resolvedConfigPath),
				zap.Bool("debug", debugMode),
			)

			components, err := initializeComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			srv := server.NewServer(components.Engine, components.Indexer, components.Storage, cfg, logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sigChan:
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			}

			logger.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		},
	}
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var (
		title string
		watch bool
		prune bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <url|path|glob>...",
		Short: "Fetch, chunk, embed and store pages",
		Long: `Ingest one or more sources. A source is an http(s) or file URL, a local file,
or a glob such as "docs/**/*.html". Re-ingesting a source replaces its segments.

With --watch, local paths and globs stay watched after the first pass and files
are re-ingested when they are created or written. --prune also deletes the
pages of watched files that are removed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, format, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			var patterns []string
			if watch {
				if patterns = watchPatterns(args); len(patterns) == 0 {
					return fmt.Errorf("--watch needs at least one local path or glob")
				}
				if title != "" {
					return fmt.Errorf("--title cannot be combined with --watch")
				}
			} else if prune {
				return fmt.Errorf("--prune requires --watch")
			}

			sources, err := resolveSources(args)
			if watch && errors.Is(err, errNoMatch) {
				sources, err = resolveExisting(args)
			}
			if err != nil {
				return err
			}
			if title != "" && len(sources) > 1 {
				return fmt.Errorf("--title applies to a single source, got %d", len(sources))
			}

			target, err := newIngestTarget(opts, cfg, logger)
			if err != nil {
				return err
			}
			defer target.close()

			var bar *progressbar.ProgressBar
			if len(sources) > 1 {
				bar = newProgressBar(len(sources))
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			var failed int
			for _, src := range sources {
				result, err := target.ingest(ctx, src, title)
				if bar != nil {
					_ = bar.Add(1)
				}
				if err != nil {
					failed++
					logger.Error("ingest failed", zap.String("source", src), zap.Error(err))
					continue
				}
				if err := cli.WriteIngestResult(out, src, result, format); err != nil {
					return err
				}
			}

			if watch {
				if !prune {
					target.remove = nil
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return watchSources(ctx, patterns, target, out, format, logger)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sources failed to ingest", failed, len(sources))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "page title (single source only; defaults to the extracted title)")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep watching local paths and globs and re-ingest files that change")
	cmd.Flags().BoolVar(&prune, "prune", false, "with --watch, delete the pages of removed files")
	return cmd
}

type ingestFn func(ctx context.Context, source, title string) (*models.IngestResult, error)

// ingestTarget is where ingest sends pages: the local indexer or a remote server.
type ingestTarget struct {
	ingest ingestFn
	remove func(ctx context.Context, docID string) error
	close  func()
}

// newIngestTarget returns the ingest operations for the current mode. In server
// mode local files are extracted here and sent as text, since the server cannot read them.
func newIngestTarget(opts *rootOptions, cfg *config.Config, logger *zap.Logger) (*ingestTarget, error) {
	if opts.serverURL != "" {
		client := cli.NewClient(opts.serverURL, clientTimeout)
		fetcher := extract.NewFetcher(cfg.Fetch, logger, extract.AllowFile())
		fn := func(ctx context.Context, source, title string) (*models.IngestResult, error) {
			input := &models.IngestInput{URL: source, Title: title}
			if strings.HasPrefix(source, "file://") {
				page, err := fetcher.Fetch(ctx, source)
				if err != nil {
					return nil, err
				}
				input.Text = page.Text
				if input.Title == "" {
					input.Title = page.Title
				}
			}
			return client.Ingest(ctx, input)
		}
		return &ingestTarget{ingest: fn, remove: client.Delete, close: func() {}}, nil
	}

	components, err := initializeComponents(cfg, logger, extract.AllowFile())
	if err != nil {
		return nil, err
	}
	return &ingestTarget{
		ingest: components.Indexer.IngestURL,
		remove: components.Indexer.DeleteDocument,
		close:  components.Close,
	}, nil
}

// watchPatterns returns the arguments that name local files or globs.
func watchPatterns(args []string) []string {
	var patterns []string
	for _, arg := range args {
		if !isURL(arg) {
			patterns = append(patterns, arg)
		}
	}
	return patterns
}

// watchSources re-ingests files matching patterns as they change until ctx is
// done. A nil target.remove leaves the pages of removed files in place.
func watchSources(ctx context.Context, patterns []string, target *ingestTarget, out io.Writer, format cli.OutputFormat, logger *zap.Logger) error {
	var onRemove func(string)
	if target.remove != nil {
		onRemove = func(path string) {
			id, err := resolveDocID(path)
			if err != nil {
				logger.Error("resolve removed file", zap.String("path", path), zap.Error(err))
				return
			}
			if err := target.remove(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
				logger.Error("delete failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("deleted page of removed file", zap.String("path", path), zap.String("doc_id", id))
		}
	}
	onChange := func(path string) {
		src, err := pageid.FileURL(path)
		if err != nil {
			logger.Error("resolve changed file", zap.String("path", path), zap.Error(err))
			return
		}
		result, err := target.ingest(ctx, src, "")
		if err != nil {
			logger.Error("ingest failed", zap.String("source", src), zap.Error(err))
			return
		}
		if err := cli.WriteIngestResult(out, src, result, format); err != nil {
			logger.Error("write result", zap.Error(err))
		}
	}

	w, err := watcher.New(patterns, onChange, onRemove, watcher.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	logger.Info("watching for changes", zap.Strings("patterns", patterns), zap.Int("dirs", len(w.Dirs())))
	<-ctx.Done()
	logger.Info("stopped watching")
	return nil
}

var errNoMatch = errors.New("no files match")

// resolveSources expands command-line sources into URLs. URLs pass through,
// local files become file:// URLs and globs expand to the files they match.
func resolveSources(args []string) ([]string, error) {
	var sources []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			sources = append(sources, s)
		}
	}
	for _, arg := range args {
		if isURL(arg) {
			add(arg)
			continue
		}
		if info, err := os.Stat(arg); err == nil {
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory (use a glob such as %q)", arg, strings.TrimRight(arg, "/")+"/**/*.html")
			}
			u, err := pageid.FileURL(arg)
			if err != nil {
				return nil, err
			}
			add(u)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		sort.Strings(matches)
		var files int
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			u, err := pageid.FileURL(m)
			if err != nil {
				return nil, err
			}
			add(u)
			files++
		}
		if files == 0 {
			return nil, fmt.Errorf("%w %q", errNoMatch, arg)
		}
	}
	return sources, nil
}

// resolveExisting resolves each argument like resolveSources but skips globs
// that match nothing yet.
func resolveExisting(args []string) ([]string, error) {
	var sources []string
	for _, arg := range args {
		resolved, err := resolveSources([]string{arg})
		if errors.Is(err, errNoMatch) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sources = append(sources, resolved...)
	}
	return sources, nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "file":
		return true
	}
	return false
}

// resolveDocID accepts a document ID, a URL or a local path and returns the document ID.
func resolveDocID(arg string) (string, error) {
	if strings.HasPrefix(arg, "page:") {
		return arg, nil
	}
	raw := arg
	if !isURL(arg) {
		u, err := pageid.FileURL(arg)
		if err != nil {
			return "", err
		}
		raw = u
	}
	canonical, err := pageid.Canonical(raw)
	if err != nil {
		return "", err
	}
	return pageid.DocID(canonical), nil
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var topK int
	var showContext bool
	cmd := &cobra.Command{
		Use:   "ask <doc-id|url|path> <question...>",
		Short: "Answer a question about one ingested page",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, format, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			docID, err := resolveDocID(args[0])
			if err != nil {
				return err
			}
			req := &models.AskRequest{
				DocumentID: docID,
				Question:   strings.Join(args[1:], " "),
				TopK:       topK,
			}
			ctx := cmd.Context()

			var resp *models.AskResponse
			var retrieved *models.RetrieveResponse
			if opts.serverURL != "" {
				client := cli.NewClient(opts.serverURL, clientTimeout)
				if resp, err = client.Ask(ctx, req); err != nil {
					return err
				}
				if showContext {
					if retrieved, err = client.Retrieve(ctx, req); err != nil {
						return err
					}
				}
			} else {
				components, err := initializeComponents(cfg, logger)
				if err != nil {
					return err
				}
				defer components.Close()
				if resp, err = components.Engine.Ask(ctx, req); err != nil {
					return err
				}
				if showContext {
					if retrieved, err = components.Engine.RetrieveText(ctx, req); err != nil {
						return err
					}
				}
			}

			var segments []*models.ScoredSegment
			if retrieved != nil {
				segments = retrieved.Results
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), resp, segments, format)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of segments to retrieve (default from config)")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the text of each source segment")
	return cmd
}

func newPagesCmd(opts *rootOptions) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "List ingested pages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, format, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			var docs []*models.Document
			if opts.serverURL != "" {
				docs, err = cli.NewClient(opts.serverURL, clientTimeout).Pages(ctx, offset, limit)
			} else {
				var store storage.Storage
				store, err = storage.New(cfg.Storage, cfg.Embedding.Dimensions)
				if err != nil {
					return fmt.Errorf("failed to open storage: %w", err)
				}
				defer store.Close()
				docs, err = store.ListDocuments(ctx, offset, limit)
			}
			if err != nil {
				return err
			}
			return cli.WritePages(cmd.OutOrStdout(), docs, format)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "number of pages to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of pages to list")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc-id|url|path>...",
		Short: "Delete pages and their segments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, _, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ids := make([]string, 0, len(args))
			for _, arg := range args {
				id, err := resolveDocID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			ctx := cmd.Context()
			var deleteFn func(context.Context, string) error
			if opts.serverURL != "" {
				deleteFn = cli.NewClient(opts.serverURL, clientTimeout).Delete
			} else {
				store, err := storage.New(cfg.Storage, cfg.Embedding.Dimensions)
				if err != nil {
					return fmt.Errorf("failed to open storage: %w", err)
				}
				defer store.Close()
				deleteFn = store.DeleteDocument
			}

			out := cmd.OutOrStdout()
			for _, id := range ids {
				if err := deleteFn(ctx, id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(out, "Deleted %s\n", id)
			}
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show document and segment counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, format, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			var status *models.StatusResponse
			if opts.serverURL != "" {
				status, err = cli.NewClient(opts.serverURL, clientTimeout).Status(ctx)
			} else {
				status, err = localStatus(ctx, cfg)
			}
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, format)
		},
	}
}

func localStatus(ctx context.Context, cfg *config.Config) (*models.StatusResponse, error) {
	store, err := storage.New(cfg.Storage, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	docs, err := store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	segs, err := store.CountSegments(ctx)
	if err != nil {
		return nil, err
	}
	status := &models.StatusResponse{
		Documents: docs,
		Segments:  segs,
		Config:    server.StatusConfig(cfg),
	}
	if n, err := storage.DiskUsage(cfg.Storage); err == nil {
		status.DiskUsageBytes = n
	}
	return status, nil
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with every default filled in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := writeDefaultConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return config.Save(path, config.Default())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tanya version %s\n", version)
		},
	}
}
