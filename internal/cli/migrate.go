package cli

import (
	"github.com/spf13/cobra"

	"node-rewards-ingester/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Manage the run ledger schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{app.MigrateUp, app.MigrateDown, app.MigrateStatus},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := app.MigrateUp
		if len(args) == 1 {
			direction = args[0]
		}
		return getApp().Migrate(cmd.Context(), direction)
	},
}
