package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tChain\tToken\tAccount\tDirection\tUSD\tThreshold\tTx")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.Chain,
			alert.TokenSymbol,
			alert.AccountID,
			alert.Direction,
			alert.USDValue.StringFixed(2),
			alert.ThresholdUSD.StringFixed(2),
			shortenTx(alert.TxID),
		)
	}

	writer.Flush()
	return nil
}

func shortenTx(txID string) string {
	cleaned := strings.TrimSpace(txID)
	if len(cleaned) <= 16 {
		return cleaned
	}
	return cleaned[:8] + ".." + cleaned[len(cleaned)-6:]
}
