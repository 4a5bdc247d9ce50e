package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"transfer-alerts/internal/app"
)

var (
	simulateChain    string
	simulateContract string
	simulateFrom     string
	simulateTo       string
	simulateAmount   string
	simulateTxID     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a synthetic transfer through the pipeline to verify alert delivery",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateChain == "" || simulateContract == "" || simulateTo == "" || simulateAmount == "" {
			return errors.New("--chain, --contract, --to and --amount must be provided")
		}

		opts := app.SimulateOptions{
			Chain:     simulateChain,
			Contract:  simulateContract,
			From:      simulateFrom,
			To:        simulateTo,
			RawAmount: simulateAmount,
			TxID:      simulateTxID,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateChain, "chain", "", "Chain identifier (tron or ethereum)")
	simulateCmd.Flags().StringVar(&simulateContract, "contract", "", "Token contract address")
	simulateCmd.Flags().StringVar(&simulateFrom, "from", "", "Source address")
	simulateCmd.Flags().StringVar(&simulateTo, "to", "", "Destination address")
	simulateCmd.Flags().StringVar(&simulateAmount, "amount", "", "Raw token amount in minimal units")
	simulateCmd.Flags().StringVar(&simulateTxID, "tx-id", "", "Transaction id (random if omitted)")
}
