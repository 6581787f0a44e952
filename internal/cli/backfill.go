package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"node-rewards-ingester/internal/app"
)

var backfillDays int

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest the trailing days once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillDays < 0 {
			return fmt.Errorf("--days cannot be negative")
		}

		return getApp().Backfill(cmd.Context(), app.BackfillOptions{Days: backfillDays})
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillDays, "days", 0, "Number of days before today to ingest (defaults to config)")
}
