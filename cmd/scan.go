package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/schedule"
)

// errRunFailed is returned when a synchronous scan finishes in a failed state.
var errRunFailed = errors.New("scan run failed")

// newScanCmd creates the 'scan' subcommand. It runs one cycle to completion
// and prints the finished run as JSON.
func newScanCmd() *cobra.Command {
	var opts schedule.Options
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan cycle and wait for it to finish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScanCommand(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "only scan companies of this client")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "ignore scan frequency (quotas still apply)")
	cmd.Flags().IntVar(&opts.MaxTasks, "max-tasks", 0, "cap on companies scanned (0 uses monitor.max_tasks)")
	cmd.Flags().StringSliceVar(&opts.CompanyIDs, "company", nil, "only scan these company IDs")
	return cmd
}

func runScanCommand(cmd *cobra.Command, opts schedule.Options) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	if opts.MaxTasks < 0 {
		return errors.New("--max-tasks must be >= 0")
	}
	if opts.MaxTasks == 0 {
		opts.MaxTasks = rt.cfg.Monitor.MaxTasks
	}
	app, err := rt.f.full(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer closeApp(app, rt.logger)

	run, err := app.ScanOnce(cmd.Context(), opts)
	if err != nil {
		return err
	}
	rt.logger.Info("scan finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("leads", run.Counters.LeadsCreated),
	)
	if err := printJSON(cmd.OutOrStdout(), run); err != nil {
		return err
	}
	if run.Status == lead.RunStatusFailed {
		return fmt.Errorf("%w: %s", errRunFailed, run.ErrorText)
	}
	return nil
}
