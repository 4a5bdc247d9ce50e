package engine

import (
	"github.com/shopspring/decimal"

	"transfer-alerts/internal/chain"
	"transfer-alerts/internal/registry"
)

// Direction classifies a transfer relative to the tracked account.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// EvaluatedTransfer is a RawTransfer enriched with registry metadata and,
// after pricing, its normalized quantity and USD value. It exists only
// transiently in the pipeline.
type EvaluatedTransfer struct {
	chain.RawTransfer

	Token     registry.Token
	AccountID int64
	Direction Direction

	Quantity decimal.Decimal
	USDValue decimal.Decimal
	Unpriced bool
}

// Match decides relevance: the contract must be tracked on this chain and
// at least one side of the transfer must be a tracked wallet. Address
// comparison is case-folded inside the snapshot lookups. A transfer tracked
// on both ends resolves to Incoming — alerting is deposit-oriented, so the
// to-side takes priority.
func Match(snap *registry.Snapshot, transfer chain.RawTransfer) (EvaluatedTransfer, bool) {
	token, ok := snap.TokenByContract(transfer.Chain, transfer.Contract)
	if !ok {
		return EvaluatedTransfer{}, false
	}

	if accountID, ok := snap.AccountForAddress(transfer.Chain, transfer.To); ok {
		return EvaluatedTransfer{
			RawTransfer: transfer,
			Token:       token,
			AccountID:   accountID,
			Direction:   Incoming,
		}, true
	}

	if accountID, ok := snap.AccountForAddress(transfer.Chain, transfer.From); ok {
		return EvaluatedTransfer{
			RawTransfer: transfer,
			Token:       token,
			AccountID:   accountID,
			Direction:   Outgoing,
		}, true
	}

	return EvaluatedTransfer{}, false
}
