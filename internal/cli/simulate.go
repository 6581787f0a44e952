package cli

import (
	"github.com/spf13/cobra"

	"node-rewards-ingester/internal/service"
)

var simulateOutcome string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run a canned failing day through the alert channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateOutcome)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOutcome, "outcome", string(service.OutcomeTransportError), "Failure to simulate: transport_error, decode_error or error")
}
