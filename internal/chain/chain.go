package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// ID identifies a registered blockchain network.
type ID string

const (
	// Tron is the polling, account-model network scanned block by block
	// or through a per-contract transfer feed.
	Tron ID = "tron"
	// Ethereum is the EVM network scanned through event logs.
	Ethereum ID = "ethereum"
)

// Range is a half-open scan window (From, To] expressed in the adapter's
// own watermark units: block height for block-scanning adapters, block
// timestamp in milliseconds for the Tron token-indexed feed.
type Range struct {
	From uint64
	To   uint64
}

// IsEmpty reports whether the range selects nothing.
func (r Range) IsEmpty() bool {
	return r.To <= r.From
}

func (r Range) String() string {
	return fmt.Sprintf("(%d, %d]", r.From, r.To)
}

// TrackedContract pairs a token contract address with the registry token id
// it belongs to. Adapters only need the address; the id travels along so
// fetch failures can be reported per token.
type TrackedContract struct {
	TokenID int64
	Address string
}

// RawTransfer is the chain-agnostic decoding of one on-chain token transfer.
// Amounts stay as arbitrary-precision integers in the token's smallest unit
// until the pricing stage. Values are never mutated downstream.
type RawTransfer struct {
	Chain     ID
	TxID      string
	Height    uint64
	BlockTime time.Time
	Contract  string
	From      string
	To        string
	RawAmount *big.Int
}

// ContractFailure reports that one contract's page fetch failed for this
// cycle. It is a result value consumed by the orchestrator's retry policy,
// not an error that aborts the batch.
type ContractFailure struct {
	Contract TrackedContract
	Err      error
}

// Batch is the outcome of one fetch cycle: everything that decoded plus the
// contracts whose pages could not be retrieved.
type Batch struct {
	Transfers []RawTransfer
	Failures  []ContractFailure
}

// Merge folds another batch into this one.
func (b *Batch) Merge(other Batch) {
	b.Transfers = append(b.Transfers, other.Transfers...)
	b.Failures = append(b.Failures, other.Failures...)
}

// Adapter is the per-chain retrieval capability. Implementations must keep
// the upstream call count a function of tracked-contract count (or block
// count), never of wallet count. A failure scoped to a single contract is
// reported in Batch.Failures; an error return means the whole cycle failed.
type Adapter interface {
	ChainID() ID
	// Head returns the current scan frontier in the adapter's watermark units.
	Head(ctx context.Context) (uint64, error)
	FetchTransfers(ctx context.Context, contracts []TrackedContract, rng Range) (Batch, error)
}
