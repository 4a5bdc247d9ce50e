package tron

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"transfer-alerts/internal/chain"
)

// BlockAdapter scans full blocks by height and decodes tracked TRC-20
// transfer calls from their raw transactions. One upstream call per block,
// regardless of how many wallets or tokens are tracked.
type BlockAdapter struct {
	client *Client
	logger zerolog.Logger
}

// NewBlockAdapter constructs the block-scanning strategy.
func NewBlockAdapter(client *Client, logger zerolog.Logger) *BlockAdapter {
	return &BlockAdapter{
		client: client,
		logger: logger.With().Str("component", "tron_block_adapter").Logger(),
	}
}

// ChainID implements chain.Adapter.
func (a *BlockAdapter) ChainID() chain.ID { return chain.Tron }

// Head returns the current block height.
func (a *BlockAdapter) Head(ctx context.Context) (uint64, error) {
	height, _, err := a.client.NowBlock(ctx)
	return height, err
}

// FetchTransfers walks the height range block by block. A block that cannot
// be fetched fails the whole cycle; skipping it silently would leave a gap
// the watermark can never revisit.
func (a *BlockAdapter) FetchTransfers(ctx context.Context, contracts []chain.TrackedContract, rng chain.Range) (chain.Batch, error) {
	tracked := contractSet(contracts)

	var batch chain.Batch
	for height := rng.From + 1; height <= rng.To; height++ {
		if err := ctx.Err(); err != nil {
			return chain.Batch{}, err
		}

		block, err := a.client.BlockByNum(ctx, height)
		if err != nil {
			return chain.Batch{}, fmt.Errorf("fetch block %d: %w", height, err)
		}

		decoded := DecodeBlock(block, tracked)
		if len(decoded) > 0 {
			a.logger.Debug().Uint64("height", height).Int("transfers", len(decoded)).Msg("decoded block transfers")
		}
		batch.Transfers = append(batch.Transfers, decoded...)
	}
	return batch, nil
}

// TokenAdapter drives the per-contract Transfer feed instead of scanning
// whole blocks. Pages for different contracts are fetched concurrently with
// a bounded fan-out; a failing contract contributes a ContractFailure to the
// batch rather than aborting it.
type TokenAdapter struct {
	client   *Client
	pageSize int
	fanOut   int
	logger   zerolog.Logger
}

// TokenAdapterOptions tune the token-indexed strategy.
type TokenAdapterOptions struct {
	PageSize int
	FanOut   int
}

// NewTokenAdapter constructs the token-indexed strategy.
func NewTokenAdapter(client *Client, opts TokenAdapterOptions, logger zerolog.Logger) *TokenAdapter {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	fanOut := opts.FanOut
	if fanOut <= 0 {
		fanOut = 4
	}

	return &TokenAdapter{
		client:   client,
		pageSize: pageSize,
		fanOut:   fanOut,
		logger:   logger.With().Str("component", "tron_token_adapter").Logger(),
	}
}

// ChainID implements chain.Adapter.
func (a *TokenAdapter) ChainID() chain.ID { return chain.Tron }

// Head returns the head block timestamp in milliseconds, the watermark unit
// of the event feed.
func (a *TokenAdapter) Head(ctx context.Context) (uint64, error) {
	_, millis, err := a.client.NowBlock(ctx)
	if err != nil {
		return 0, err
	}
	return uint64(millis), nil
}

// FetchTransfers gathers every contract's feed pages for the window. The
// batch is fully joined before it is returned; ordering across contracts
// does not matter downstream.
func (a *TokenAdapter) FetchTransfers(ctx context.Context, contracts []chain.TrackedContract, rng chain.Range) (chain.Batch, error) {
	var (
		mu    sync.Mutex
		batch chain.Batch
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.fanOut)

	for _, contract := range contracts {
		group.Go(func() error {
			transfers, err := a.fetchContract(groupCtx, contract.Address, rng)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn().Err(err).Str("contract", contract.Address).Msg("contract feed failed this cycle")
				batch.Failures = append(batch.Failures, chain.ContractFailure{Contract: contract, Err: err})
				return nil
			}
			batch.Transfers = append(batch.Transfers, transfers...)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return chain.Batch{}, err
	}
	if err := ctx.Err(); err != nil {
		return chain.Batch{}, err
	}
	return batch, nil
}

func (a *TokenAdapter) fetchContract(ctx context.Context, contract string, rng chain.Range) ([]chain.RawTransfer, error) {
	var (
		transfers   []chain.RawTransfer
		fingerprint string
	)

	for {
		page, err := a.client.TransferEvents(ctx, contract, rng.From+1, rng.To, a.pageSize, fingerprint)
		if err != nil {
			return nil, err
		}

		for _, event := range page.Data {
			transfer, ok := a.decodeEvent(contract, event)
			if !ok {
				continue
			}
			transfers = append(transfers, transfer)
		}

		fingerprint = page.Meta.Fingerprint
		if fingerprint == "" || len(page.Data) == 0 {
			return transfers, nil
		}
	}
}

// decodeEvent maps one structured feed item onto RawTransfer. No selector
// parsing is needed here; only the amount and address encodings are
// normalized.
func (a *TokenAdapter) decodeEvent(contract string, event TransferEvent) (chain.RawTransfer, bool) {
	amount, ok := new(big.Int).SetString(event.Result.Value, 10)
	if !ok {
		a.logger.Warn().Str("tx", event.TransactionID).Str("value", event.Result.Value).Msg("dropping event with unparseable amount")
		return chain.RawTransfer{}, false
	}

	return chain.RawTransfer{
		Chain:     chain.Tron,
		TxID:      event.TransactionID,
		Height:    event.BlockNumber,
		BlockTime: time.UnixMilli(event.BlockTimestamp).UTC(),
		Contract:  Canonical(contract),
		From:      Canonical(event.Result.From),
		To:        Canonical(event.Result.To),
		RawAmount: amount,
	}, true
}

func contractSet(contracts []chain.TrackedContract) map[string]struct{} {
	set := make(map[string]struct{}, len(contracts))
	for _, contract := range contracts {
		set[strings.ToLower(Canonical(contract.Address))] = struct{}{}
	}
	return set
}

var (
	_ chain.Adapter = (*BlockAdapter)(nil)
	_ chain.Adapter = (*TokenAdapter)(nil)
)
