package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/technocreatives/artefacta/internal/config"
	"github.com/technocreatives/artefacta/internal/core"
	"github.com/technocreatives/artefacta/internal/journal"
	"github.com/technocreatives/artefacta/internal/storage"
)

var (
	// Global flags
	localFlag  string
	remoteFlag string
	logLevel   string
	logFormat  string
	quiet      bool

	// Global components, wired in PersistentPreRunE
	globalCfg     *config.Config
	globalIndex   *core.Index
	globalJournal *journal.Journal
	logger        *slog.Logger
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "artefacta",
		Short:   "Distribute build artefacts as compressed tarballs and binary patches",
		Version: "0.1.0",
		Long: `artefacta manages a store of compressed build artefacts and the binary
patches between them, preferring the cheapest chain of patches over a full
download whenever installing or upgrading a build.`,
		Example: `  artefacta install build2
  artefacta add ./build2.tar.zst --upload
  artefacta create-patch build1 build2
  artefacta auto-patch --prefix wtf- 0.1.1
  artefacta sync
  artefacta status`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipComponentInit(cmd.Name()) {
				return nil
			}
			return initializeComponents(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeJournal()
		},
	}

	cmd.PersistentFlags().StringVar(&localFlag, "local", "", "local store directory (env ARTEFACTA_LOCAL_STORE)")
	cmd.PersistentFlags().StringVar(&remoteFlag, "remote", "", "remote store: s3://bucket/prefix or a directory (env ARTEFACTA_REMOTE_STORE)")
	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "v", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	cmd.AddCommand(
		newInstallCmd(),
		newAddCmd(),
		newAddPackageCmd(),
		newCreatePatchCmd(),
		newAutoPatchCmd(),
		newSyncCmd(),
		newDebugCmd(),
		newStatusCmd(),
	)

	return cmd
}

func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// isInteractive gates the "run with -v for details" footer on command
// failure (see commandFailed) so pipes never receive it.
func isInteractive() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

func shouldSkipComponentInit(cmdName string) bool {
	skip := map[string]bool{"help": true, "version": true}
	return skip[cmdName]
}

// initializeComponents loads configuration, constructs the local/remote
// Storage pair, and builds the shared Index + Journal.
func initializeComponents(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfgPath, err := config.FindConfigFile()
	cfg := config.DefaultConfig()
	if err == nil {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else if !quiet {
		logger.Debug("no config file found, using defaults", "error", err)
	}

	if v := os.Getenv("ARTEFACTA_LOCAL_STORE"); v != "" {
		cfg.Local = v
	}
	if v := os.Getenv("ARTEFACTA_REMOTE_STORE"); v != "" {
		cfg.Remote = v
	}
	if v := os.Getenv("ARTEFACTA_COMPRESSION_LEVEL"); v != "" {
		if lvl, perr := strconv.Atoi(v); perr == nil {
			cfg.Compression = lvl
		} else {
			logger.Warn("invalid ARTEFACTA_COMPRESSION_LEVEL, keeping configured value", "value", v)
		}
	}
	if localFlag != "" {
		cfg.Local = localFlag
	}
	if remoteFlag != "" {
		cfg.Remote = remoteFlag
	}
	globalCfg = cfg

	if err := os.MkdirAll(cfg.Local, 0o755); err != nil {
		return fmt.Errorf("create local store directory: %w", err)
	}

	local, err := storage.NewFilesystem(cfg.Local, logger)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}

	remote, err := newRemoteStorage(ctx, cfg.Remote)
	if err != nil {
		return fmt.Errorf("open remote store: %w", err)
	}

	dbPath := filepath.Join(cfg.Local, ".artefacta-journal.db")
	j, err := journal.New(dbPath, logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	globalJournal = j

	idx, err := core.New(ctx, local, remote, core.WithLogger(logger), core.WithJournal(j))
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	globalIndex = idx

	return nil
}

// newRemoteStorage builds the remote Storage from a `s3://bucket/prefix` URL
// or a plain directory path. An empty raw value yields a `remote`
// subdirectory inside the local store, so that fresh installs still have a
// remote to sync against.
func newRemoteStorage(ctx context.Context, raw string) (core.Storage, error) {
	if raw == "" {
		raw = filepath.Join(globalCfgLocalFallback(), "remote")
	}
	if strings.HasPrefix(raw, "s3://") {
		bucket, err := storage.ParseBucketURL(raw)
		if err != nil {
			return nil, err
		}
		return storage.NewS3(ctx, bucket, logger)
	}
	if err := os.MkdirAll(raw, 0o755); err != nil {
		return nil, fmt.Errorf("create remote store directory: %w", err)
	}
	return storage.NewFilesystem(raw, logger)
}

func globalCfgLocalFallback() string {
	if globalCfg != nil && globalCfg.Local != "" {
		return globalCfg.Local
	}
	return "."
}

func closeJournal() {
	if globalJournal != nil {
		if err := globalJournal.Close(); err != nil {
			logger.Error("failed to close journal", "error", err)
		}
	}
}

// commandFailed returns err for cobra to print, with a footer pointing at
// -v for more detail appended on an interactive terminal only.
func commandFailed(err error) error {
	if isInteractive() && logLevel != "debug" {
		return fmt.Errorf("%w (run with -v debug for details)", err)
	}
	return err
}
