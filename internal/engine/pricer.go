package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pricer converts raw smallest-unit amounts into token quantities and USD
// values. All arithmetic is exact decimal scaling; no division and no
// binary floating point, so quantity * 10^decimals always recovers the raw
// amount.
type Pricer struct {
	// MaxPriceAge bounds how stale a registry price may be before the
	// transfer is treated as unpriced. Zero disables the staleness check.
	MaxPriceAge time.Duration
}

// Price fills in Quantity, USDValue, and the Unpriced flag. A transfer with
// a zero, absent, or stale price is marked unpriced; it is still evaluated
// (so the decision record is written) but never alerted.
func (p Pricer) Price(transfer *EvaluatedTransfer, now time.Time) {
	transfer.Quantity = decimal.NewFromBigInt(transfer.RawAmount, -transfer.Token.Decimals)

	price := transfer.Token.PriceUSD
	if price.IsZero() || p.stale(transfer.Token.PriceUpdatedAt, now) {
		transfer.Unpriced = true
		transfer.USDValue = decimal.Zero
		return
	}

	transfer.USDValue = transfer.Quantity.Mul(price)
}

func (p Pricer) stale(updatedAt, now time.Time) bool {
	if p.MaxPriceAge <= 0 {
		return false
	}
	if updatedAt.IsZero() {
		return true
	}
	return now.Sub(updatedAt) > p.MaxPriceAge
}
