package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newTodayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Build and print today's puzzle as JSON",
		Long: `Runs the daily pipeline once (selection, review fetching, archive and
notification side effects) and writes the resulting payload to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck // nothing left to report

			payload, err := app.Daily().Today(cmd.Context())
			if err != nil {
				return fmt.Errorf("build today's puzzle: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(payload); err != nil {
				return fmt.Errorf("encode payload: %w", err)
			}
			return nil
		},
	}
}
