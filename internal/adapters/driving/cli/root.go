package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	configfile "github.com/custodia-labs/chattail-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/chattail-cli/internal/adapters/driven/emitter/terminal"
	"github.com/custodia-labs/chattail-cli/internal/adapters/driven/watch"
	"github.com/custodia-labs/chattail-cli/internal/connectors/sessiondb"
	"github.com/custodia-labs/chattail-cli/internal/connectors/sessionlog"
	"github.com/custodia-labs/chattail-cli/internal/core/ports/driven"
	"github.com/custodia-labs/chattail-cli/internal/core/services"
	"github.com/custodia-labs/chattail-cli/internal/logger"
	sessiondbnorm "github.com/custodia-labs/chattail-cli/internal/normalisers/sessiondb"
	sessionlognorm "github.com/custodia-labs/chattail-cli/internal/normalisers/sessionlog"
)

var (
	flagConfig     string
	flagLogRoot    string
	flagDBPath     string
	flagFilter     string
	flagCompact    bool
	flagWatch      bool
	flagVerbose    bool
	flagLogEveryMs int
	flagDBEveryMs  int
)

var rootCmd = &cobra.Command{
	Use:   "chattail [filter]",
	Short: "Tail agent conversation transcripts in real time",
	Long: `chattail watches session transcript sources and prints each new
message as it appears. Two sources are supported: a directory tree of
newline-delimited JSON session logs, and an embedded SQLite conversation
database. Pre-existing history is never replayed; tailing starts at the
current end of every stream.

An optional positional filter restricts output to units whose label
contains it (case-insensitive).`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runTail,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.chattail/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose diagnostics on stderr")
	rootCmd.Flags().StringVar(&flagLogRoot, "logs", "", "session log root directory")
	rootCmd.Flags().StringVar(&flagDBPath, "db", "", "conversation database path")
	rootCmd.Flags().StringVar(&flagFilter, "filter", "", "only tail units whose label contains this substring")
	rootCmd.Flags().BoolVarP(&flagCompact, "compact", "c", false, "compact output without unit headers")
	rootCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "wake on filesystem events between polls")
	rootCmd.Flags().IntVar(&flagLogEveryMs, "log-interval", 0, "log source poll interval in milliseconds")
	rootCmd.Flags().IntVar(&flagDBEveryMs, "db-interval", 0, "database source poll interval in milliseconds")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig merges the config file with flag overrides and the positional
// filter argument. Flags win over the file; the positional argument wins
// over the --filter flag.
func loadConfig(cmd *cobra.Command, args []string) (configfile.Config, error) {
	cfg, err := configfile.Load(flagConfig)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("logs") {
		cfg.LogRoot = flagLogRoot
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = flagDBPath
	}
	if cmd.Flags().Changed("filter") {
		cfg.Filter = flagFilter
	}
	if cmd.Flags().Changed("compact") {
		cfg.Compact = flagCompact
	}
	if cmd.Flags().Changed("watch") {
		cfg.Watch = flagWatch
	}
	if cmd.Flags().Changed("log-interval") {
		cfg.PollIntervalLogMs = flagLogEveryMs
	}
	if cmd.Flags().Changed("db-interval") {
		cfg.PollIntervalDBMs = flagDBEveryMs
	}
	if len(args) == 1 {
		cfg.Filter = args[0]
	}

	return cfg, nil
}

func runTail(cmd *cobra.Command, args []string) error {
	logger.SetVerbose(flagVerbose)

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	var sources []driven.Source
	if cfg.LogRoot != "" {
		sources = append(sources, sessionlog.New(uuid.New().String(), cfg.LogRoot, cfg.LogInterval()))
	}
	if cfg.DBPath != "" {
		sources = append(sources, sessiondb.New(uuid.New().String(), cfg.DBPath, cfg.DBInterval()))
	}
	if len(sources) == 0 {
		return errors.New("nothing to tail: no log root or database configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Startup validation is fatal: a missing root means nothing to tail.
	for _, src := range sources {
		if err := src.Validate(ctx); err != nil {
			return err
		}
		defer src.Close()
	}

	var wake <-chan struct{}
	if cfg.Watch && cfg.LogRoot != "" {
		w, err := watch.New(cfg.LogRoot)
		if err != nil {
			logger.Warn("filesystem watch unavailable, polling only: %v", err)
		} else {
			defer w.Close()
			wake = w.Wake()
		}
	}

	normalisers := map[string]driven.Normaliser{
		sessionlog.Type: sessionlognorm.New(),
		sessiondb.Type:  sessiondbnorm.New(),
	}

	tailer := services.NewTailer(services.TailerConfig{
		Sources:     sources,
		Normalisers: normalisers,
		Emitter:     terminal.New(os.Stdout, terminal.WithCompact(cfg.Compact)),
		Filter:      cfg.Filter,
		Wake:        wake,
	})

	logger.Info("tailing %d source(s), filter=%q", len(sources), cfg.Filter)

	if err := tailer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tailer stopped: %w", err)
	}
	return nil
}
