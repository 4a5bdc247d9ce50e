package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"transfer-alerts/internal/chain"
)

// DecisionRecord is the durable, write-once marker that a transfer has been
// evaluated for an account. Keyed by (chain, tx_id, account_id); once a
// record exists, re-observing the same transfer is a no-op.
type DecisionRecord struct {
	Chain       chain.ID
	TxID        string
	AccountID   int64
	TokenSymbol string
	USDValue    decimal.Decimal
	Fired       bool
	Unpriced    bool
	DecidedAt   time.Time
}

// AlertRecord is the audit row written for every fired alert.
type AlertRecord struct {
	ID           int64
	Chain        chain.ID
	TxID         string
	AccountID    int64
	TokenSymbol  string
	USDValue     decimal.Decimal
	ThresholdUSD decimal.Decimal
	Direction    string
	CreatedAt    time.Time
}

// Account is the alerting configuration of one tracked company.
type Account struct {
	ID           int64
	Name         string
	ThresholdUSD decimal.Decimal
	SlackChannel string
}
