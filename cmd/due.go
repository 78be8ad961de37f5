package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadwatch/internal/schedule"
)

type dueRow struct {
	ClientID      string     `json:"client_id"`
	CompanyID     string     `json:"company_id"`
	CompanyName   string     `json:"company_name"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}

// newDueCmd creates the 'due' subcommand. It prints the scan queue a cycle
// would build at the given instant without scanning anything.
func newDueCmd() *cobra.Command {
	var (
		opts schedule.Options
		at   string
	)
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Show which companies are due for a scan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDueCommand(cmd, at, opts)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluation time in RFC3339 (default now)")
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "only show companies of this client")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "ignore scan frequency (quotas still apply)")
	cmd.Flags().IntVar(&opts.MaxTasks, "max-tasks", 0, "cap on companies listed (0 means no cap)")
	return cmd
}

func runDueCommand(cmd *cobra.Command, at string, opts schedule.Options) error {
	if opts.MaxTasks < 0 {
		return errors.New("--max-tasks must be >= 0")
	}
	when := time.Now().UTC()
	if at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		when = parsed
	}
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	app, err := rt.f.stores(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}
	defer closeApp(app, rt.logger)

	tasks, err := app.Due(cmd.Context(), when, opts)
	if err != nil {
		return err
	}
	rows := make([]dueRow, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, dueRow{
			ClientID:      t.ClientID,
			CompanyID:     t.Company.ID,
			CompanyName:   t.Company.Name,
			LastScannedAt: t.Company.LastScannedAt,
		})
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"at":    when,
		"tasks": rows,
	})
}
