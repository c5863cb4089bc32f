package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/duelsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath string
	Database   string
	IndexerURL string
	TableID    string
	PageSize   int
	Limit      int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the duelsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "duelsync",
		Short: "duelsync - indexer mirror for Pistols at Dawn",
		Long: `Mirror duels, duelists and players from a Torii-style indexer into a
local normalized cache, and query it.

Commands read the indexer at --indexer-url, or the local SQLite indexer at
--db when no URL is set. Settings resolve from defaults, then --config, then
DUELSYNC_* environment variables, then flags.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(opts, cmd.ErrOrStderr())
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.Database, "db", "", "path to the local SQLite indexer")
	flags.StringVar(&opts.IndexerURL, "indexer-url", "", "base URL of a remote indexer")
	flags.StringVar(&opts.TableID, "table", "", "season table to hydrate")
	flags.IntVar(&opts.PageSize, "page-size", 0, "rows per indexer page")
	flags.IntVar(&opts.Limit, "limit", 0, "row cap per fetch (-1 for none)")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHydrateCommand(opts))
	cmd.AddCommand(NewDuelsCommand(opts))
	cmd.AddCommand(NewDuelistsCommand(opts))
	cmd.AddCommand(NewPlayersCommand(opts))
	cmd.AddCommand(NewSeasonsCommand(opts))
	cmd.AddCommand(NewTokensCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewRebuildCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setupLogging installs the process logger on w: text by default, JSON
// lines under --format json, debug level under --verbose.
func setupLogging(opts *RootOptions, w io.Writer) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// resolveConfig loads the config file and environment, then applies the
// flags the user set explicitly.
func resolveConfig(opts *RootOptions, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("indexer-url") {
		cfg.IndexerURL = opts.IndexerURL
	}
	if flags.Changed("table") {
		cfg.TableID = opts.TableID
	}
	if flags.Changed("page-size") {
		cfg.PageSize = opts.PageSize
	}
	if flags.Changed("limit") {
		cfg.Limit = opts.Limit
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
