package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"transfer-alerts/internal/registry"
)

func pricedTransfer(raw int64, decimals int32, price decimal.Decimal, updatedAt time.Time) EvaluatedTransfer {
	transfer := EvaluatedTransfer{
		Token: registry.Token{
			Symbol:         "USDT",
			Decimals:       decimals,
			PriceUSD:       price,
			PriceUpdatedAt: updatedAt,
		},
	}
	transfer.RawAmount = big.NewInt(raw)
	return transfer
}

func TestPriceNormalizesExactly(t *testing.T) {
	now := time.Now().UTC()
	transfer := pricedTransfer(150000000, 6, decimal.NewFromInt(1), now)

	Pricer{}.Price(&transfer, now)

	if !transfer.Quantity.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("quantity = %s, want 150", transfer.Quantity)
	}
	if !transfer.USDValue.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("usd value = %s, want 150", transfer.USDValue)
	}
	if transfer.Unpriced {
		t.Fatal("fresh non-zero price must not mark the transfer unpriced")
	}

	// Scaling back up recovers the raw amount with no precision loss.
	if !transfer.Quantity.Shift(6).Equal(decimal.NewFromBigInt(transfer.RawAmount, 0)) {
		t.Fatalf("quantity * 10^6 = %s, want %s", transfer.Quantity.Shift(6), transfer.RawAmount)
	}
}

func TestPriceKeepsEighteenDecimalsExact(t *testing.T) {
	now := time.Now().UTC()
	raw, _ := new(big.Int).SetString("123456789012345678901", 10)

	transfer := pricedTransfer(0, 18, decimal.NewFromInt(2), now)
	transfer.RawAmount = raw

	Pricer{}.Price(&transfer, now)

	if !transfer.Quantity.Shift(18).Equal(decimal.NewFromBigInt(raw, 0)) {
		t.Fatalf("18-decimal amount lost precision: %s", transfer.Quantity)
	}
	want := decimal.NewFromBigInt(raw, -18).Mul(decimal.NewFromInt(2))
	if !transfer.USDValue.Equal(want) {
		t.Fatalf("usd value = %s, want %s", transfer.USDValue, want)
	}
}

func TestPriceMarksZeroPriceUnpriced(t *testing.T) {
	now := time.Now().UTC()
	transfer := pricedTransfer(150000000, 6, decimal.Zero, now)

	Pricer{}.Price(&transfer, now)

	if !transfer.Unpriced {
		t.Fatal("zero price must mark the transfer unpriced")
	}
	if !transfer.USDValue.IsZero() {
		t.Fatalf("unpriced transfer must carry zero usd value, got %s", transfer.USDValue)
	}
	if !transfer.Quantity.Equal(decimal.NewFromInt(150)) {
		t.Fatal("quantity is still normalized for unpriced transfers")
	}
}

func TestPriceMarksStalePriceUnpriced(t *testing.T) {
	now := time.Now().UTC()
	pricer := Pricer{MaxPriceAge: time.Hour}

	stale := pricedTransfer(150000000, 6, decimal.NewFromInt(1), now.Add(-2*time.Hour))
	pricer.Price(&stale, now)
	if !stale.Unpriced {
		t.Fatal("price older than the max age must be treated as unpriced")
	}

	fresh := pricedTransfer(150000000, 6, decimal.NewFromInt(1), now.Add(-30*time.Minute))
	pricer.Price(&fresh, now)
	if fresh.Unpriced {
		t.Fatal("price within the max age must be used")
	}
}
