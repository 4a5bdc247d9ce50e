package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"transfer-alerts/internal/chain"
)

// Runs the full match -> price -> evaluate path for a USDT deposit (6
// decimals, price 1.00, account threshold 100 USD).
func TestDepositPipeline(t *testing.T) {
	snap := testSnapshot()
	decisions := newMemDecisions()
	alerts := &memAlerts{}
	notifier := &recordingNotifier{}
	evaluator := NewEvaluator(decisions, thresholdAccounts("100"), alerts, notifier, zerolog.Nop())
	pricer := Pricer{}
	now := time.Now().UTC()

	run := func(txID string, raw int64) {
		t.Helper()
		transfer := rawTransfer(otherWallet, trackedWallet)
		transfer.TxID = txID
		transfer.RawAmount = big.NewInt(raw)

		matched, ok := Match(snap, transfer)
		if !ok {
			t.Fatalf("deposit %s must match", txID)
		}
		pricer.Price(&matched, now)
		if err := evaluator.Evaluate(context.Background(), matched); err != nil {
			t.Fatalf("evaluate %s: %v", txID, err)
		}
	}

	// 150 USDT crosses the 100 USD threshold: exactly one alert.
	run("0xdeposit-150", 150000000)
	if alerts.count() != 1 || notifier.count() != 1 {
		t.Fatalf("expected one alert and one notification, got %d/%d", alerts.count(), notifier.count())
	}

	// Re-scanning the same transfer emits nothing new.
	run("0xdeposit-150", 150000000)
	if alerts.count() != 1 || notifier.count() != 1 {
		t.Fatalf("repeat scan must emit nothing, got %d/%d", alerts.count(), notifier.count())
	}

	// 50 USDT stays below the threshold: recorded, never alerted.
	run("0xdeposit-50", 50000000)
	rec, ok := decisions.record(chain.Ethereum, "0xdeposit-50", 7)
	if !ok {
		t.Fatal("below-threshold deposit must still be recorded")
	}
	if rec.Fired {
		t.Fatal("below-threshold deposit must not fire")
	}
	if !rec.USDValue.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("usd value = %s, want 50", rec.USDValue)
	}
	if alerts.count() != 1 || notifier.count() != 1 {
		t.Fatalf("below-threshold deposit must not alert, got %d/%d", alerts.count(), notifier.count())
	}
}
