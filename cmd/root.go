// Package cmd defines and implements the CLI commands for the leadwatch executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/config"
	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/schedule"
	"github.com/JakeFAU/leadwatch/internal/seed"
	"github.com/JakeFAU/leadwatch/internal/server"
)

// App defines the application surface the commands use. It lets tests
// inject a fake in place of *server.App.
type App interface {
	Run(ctx context.Context) error
	ScanOnce(ctx context.Context, opts schedule.Options) (lead.ScanRun, error)
	Seed(ctx context.Context, doc seed.Document) (seed.Result, error)
	Due(ctx context.Context, at time.Time, opts schedule.Options) ([]lead.ScanTask, error)
	Close(ctx context.Context) error
}

type appFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (App, error)

// factories holds everything the commands construct. Tests replace them.
type factories struct {
	loadConfig func(path string) (config.Config, error)
	newLogger  func(cfg *config.Config) (*zap.Logger, error)
	// full builds the monitor stack; stores builds repositories only.
	full   appFactory
	stores appFactory
}

func defaultFactories() factories {
	return factories{
		loadConfig: config.Load,
		newLogger:  server.NewLogger,
		full: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (App, error) {
			app, err := server.Build(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return app, nil
		},
		stores: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (App, error) {
			app, err := server.BuildStores(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return app, nil
		},
	}
}

type runtimeKey struct{}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	f      factories
}

// newRootCmd creates and configures the root command.
func newRootCmd(f factories) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "leadwatch",
		Short: "Trigger-event monitoring and deal scoring for B2B outreach.",
		Long: `leadwatch watches target companies for buying signals such as funding
rounds, leadership hires and expansions. It classifies each signal with an
LLM, scores it against the client's strategy and turns the strongest ones
into leads with contacts and a drafted email.`,
		SilenceUsage: true,

		// Loads configuration and the logger before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := f.newLogger(&cfg)
			if err != nil {
				return err
			}
			ctx := context.WithValue(cmd.Context(), runtimeKey{}, &runtime{cfg: &cfg, logger: logger, f: f})
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newDueCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd(defaultFactories()).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "leadwatch: %v\n", err)
		os.Exit(1)
	}
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application runtime not initialized")
	}
	return rt, nil
}

// closeApp releases an App built for a one-shot command.
func closeApp(app App, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		logger.Warn("failed to close application", zap.Error(err))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
