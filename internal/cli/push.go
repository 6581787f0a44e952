package cli

import (
	"github.com/spf13/cobra"

	"node-rewards-ingester/internal/app"
)

var (
	pushDay    string
	pushDryRun bool
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Ingest a single day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PushDay(cmd.Context(), app.PushOptions{
			Day:    pushDay,
			DryRun: pushDryRun,
		})
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushDay, "day", "", "Day to ingest as YYYY-MM-DD (defaults to yesterday, UTC)")
	pushCmd.Flags().BoolVar(&pushDryRun, "dry-run", false, "Print exposition lines instead of pushing")
}
