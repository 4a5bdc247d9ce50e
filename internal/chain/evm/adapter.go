package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"transfer-alerts/internal/chain"
)

// transferTopic is keccak256("Transfer(address,address,uint256)"), the
// topic0 of the standard ERC-20 Transfer event.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Options parameterise the EVM log adapter.
type Options struct {
	RPCURL  string
	Timeout time.Duration
}

// Adapter scans an EVM chain through its event-log facility. A single
// filtered log query covers every tracked contract at once, so the upstream
// call count is constant in both wallet and token count.
type Adapter struct {
	opts      Options
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// New constructs the EVM adapter.
func New(opts Options, logger zerolog.Logger) *Adapter {
	return &Adapter{
		opts:   opts,
		logger: logger.With().Str("component", "evm_adapter").Logger(),
	}
}

// ChainID implements chain.Adapter.
func (a *Adapter) ChainID() chain.ID { return chain.Ethereum }

// Head returns the latest block number.
func (a *Adapter) Head(ctx context.Context) (uint64, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	client, err := a.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

// FetchTransfers queries Transfer logs for all tracked contracts in one
// range-bounded call and decodes them. Reorged (removed) logs are skipped.
func (a *Adapter) FetchTransfers(ctx context.Context, contracts []chain.TrackedContract, rng chain.Range) (chain.Batch, error) {
	if len(contracts) == 0 {
		return chain.Batch{}, nil
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	client, err := a.getClient(ctx)
	if err != nil {
		return chain.Batch{}, err
	}

	addresses := make([]common.Address, 0, len(contracts))
	for _, contract := range contracts {
		addresses = append(addresses, common.HexToAddress(contract.Address))
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(rng.From + 1),
		ToBlock:   new(big.Int).SetUint64(rng.To),
		Addresses: addresses,
		Topics:    [][]common.Hash{{transferTopic}},
	}

	logs, err := client.FilterLogs(ctx, query)
	if err != nil {
		return chain.Batch{}, fmt.Errorf("filter transfer logs %s: %w", rng, err)
	}

	blockTimes := make(map[uint64]time.Time)
	var batch chain.Batch
	for _, entry := range logs {
		transfer, ok := decodeTransferLog(entry)
		if !ok {
			continue
		}

		blockTime, err := a.blockTime(ctx, client, blockTimes, entry.BlockNumber)
		if err != nil {
			return chain.Batch{}, err
		}
		transfer.BlockTime = blockTime

		batch.Transfers = append(batch.Transfers, transfer)
	}
	return batch, nil
}

// decodeTransferLog maps an ERC-20 Transfer log onto RawTransfer. Logs with
// a non-standard shape decode to "not a transfer".
func decodeTransferLog(entry types.Log) (chain.RawTransfer, bool) {
	if entry.Removed || len(entry.Topics) != 3 || len(entry.Data) != 32 {
		return chain.RawTransfer{}, false
	}

	return chain.RawTransfer{
		Chain:     chain.Ethereum,
		TxID:      entry.TxHash.Hex(),
		Height:    entry.BlockNumber,
		Contract:  entry.Address.Hex(),
		From:      common.BytesToAddress(entry.Topics[1].Bytes()[12:]).Hex(),
		To:        common.BytesToAddress(entry.Topics[2].Bytes()[12:]).Hex(),
		RawAmount: new(big.Int).SetBytes(entry.Data),
	}, true
}

func (a *Adapter) blockTime(ctx context.Context, client *ethclient.Client, cache map[uint64]time.Time, height uint64) (time.Time, error) {
	if cached, ok := cache[height]; ok {
		return cached, nil
	}

	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch header %d: %w", height, err)
	}

	blockTime := time.Unix(int64(header.Time), 0).UTC()
	cache[height] = blockTime
	return blockTime, nil
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := a.opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (a *Adapter) getClient(ctx context.Context) (*ethclient.Client, error) {
	a.clientMux.Lock()
	defer a.clientMux.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	if a.opts.RPCURL == "" {
		return nil, fmt.Errorf("ethereum rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, a.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

var _ chain.Adapter = (*Adapter)(nil)
