package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"transfer-alerts/internal/app"
)

var (
	backfillChain  string
	backfillFrom   uint64
	backfillTo     uint64
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-scan a historical range for tracked transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillChain == "" {
			return fmt.Errorf("--chain must be provided")
		}
		if backfillTo <= backfillFrom {
			return fmt.Errorf("--from must be less than --to")
		}

		opts := app.BackfillOptions{
			Chain:  backfillChain,
			From:   backfillFrom,
			To:     backfillTo,
			DryRun: backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillChain, "chain", "", "Chain to scan (tron or ethereum)")
	backfillCmd.Flags().Uint64Var(&backfillFrom, "from", 0, "Start position (exclusive, adapter units)")
	backfillCmd.Flags().Uint64Var(&backfillTo, "to", 0, "End position (inclusive, adapter units)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Evaluate without writing decisions or sending alerts")
}
