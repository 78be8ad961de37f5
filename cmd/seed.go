package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadwatch/internal/seed"
)

// newSeedCmd creates the 'seed' subcommand, which loads client strategies and
// target companies from a YAML document.
func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load client strategies and companies from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedCommand(cmd, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed document path")
	return cmd
}

func runSeedCommand(cmd *cobra.Command, file string) error {
	if file == "" {
		return errors.New("--file is required")
	}
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	doc, err := seed.LoadFile(file)
	if err != nil {
		return err
	}
	app, err := rt.f.stores(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}
	defer closeApp(app, rt.logger)

	res, err := app.Seed(cmd.Context(), doc)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]int{
		"strategies": res.Strategies,
		"companies":  res.Companies,
	})
}
