package registry

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"transfer-alerts/internal/chain"
)

// Token is one tracked token with its current price. Decimals and price are
// immutable within a snapshot; refreshes produce new values.
type Token struct {
	ID             int64
	Symbol         string
	Decimals       int32
	PriceUSD       decimal.Decimal
	PriceUpdatedAt time.Time
}

// TrackedToken is the refresh-source shape: a token plus its per-chain
// contract addresses (at most one per chain).
type TrackedToken struct {
	Token
	ContractsByChain map[chain.ID]string
}

// TrackedAddress is one watched wallet and the account that owns it.
type TrackedAddress struct {
	Chain     chain.ID
	Address   string
	AccountID int64
}

// Source supplies registry contents from the persistence layer.
type Source interface {
	ListTrackedTokens(ctx context.Context) ([]TrackedToken, error)
	ListTrackedAddresses(ctx context.Context) ([]TrackedAddress, error)
}

// Snapshot is an immutable view of the tracked tokens and wallets. Scan
// loops hold one snapshot per cycle; lookups are read-only and safe to share
// across goroutines.
type Snapshot struct {
	tokens    map[chain.ID]map[string]Token
	contracts map[chain.ID][]chain.TrackedContract
	accounts  map[chain.ID]map[string]int64
	builtAt   time.Time
}

// BuildSnapshot folds source rows into lookup maps. All addresses are
// case-folded once here so every later comparison is a plain map hit.
func BuildSnapshot(tokens []TrackedToken, addresses []TrackedAddress) *Snapshot {
	snap := &Snapshot{
		tokens:    make(map[chain.ID]map[string]Token),
		contracts: make(map[chain.ID][]chain.TrackedContract),
		accounts:  make(map[chain.ID]map[string]int64),
		builtAt:   time.Now().UTC(),
	}

	for _, token := range tokens {
		for chainID, contract := range token.ContractsByChain {
			if contract == "" {
				continue
			}
			byContract, ok := snap.tokens[chainID]
			if !ok {
				byContract = make(map[string]Token)
				snap.tokens[chainID] = byContract
			}
			byContract[strings.ToLower(contract)] = token.Token
			snap.contracts[chainID] = append(snap.contracts[chainID], chain.TrackedContract{
				TokenID: token.ID,
				Address: contract,
			})
		}
	}

	for _, address := range addresses {
		byAddress, ok := snap.accounts[address.Chain]
		if !ok {
			byAddress = make(map[string]int64)
			snap.accounts[address.Chain] = byAddress
		}
		byAddress[strings.ToLower(address.Address)] = address.AccountID
	}

	return snap
}

// TokenByContract resolves a contract address to its token metadata.
func (s *Snapshot) TokenByContract(chainID chain.ID, contract string) (Token, bool) {
	token, ok := s.tokens[chainID][strings.ToLower(contract)]
	return token, ok
}

// AccountForAddress reports whether a wallet is tracked and which account
// owns it.
func (s *Snapshot) AccountForAddress(chainID chain.ID, address string) (int64, bool) {
	accountID, ok := s.accounts[chainID][strings.ToLower(address)]
	return accountID, ok
}

// ContractsFor lists the tracked contracts for one chain, the unit the
// adapters scale with.
func (s *Snapshot) ContractsFor(chainID chain.ID) []chain.TrackedContract {
	return s.contracts[chainID]
}

// AddressCount returns the tracked wallet count for a chain.
func (s *Snapshot) AddressCount(chainID chain.ID) int {
	return len(s.accounts[chainID])
}

// Registry periodically rebuilds the snapshot from the source and swaps it
// in atomically; concurrent readers never observe a partial update.
type Registry struct {
	source   Source
	logger   zerolog.Logger
	snapshot atomic.Pointer[Snapshot]
}

// New constructs a Registry with an empty initial snapshot.
func New(source Source, logger zerolog.Logger) *Registry {
	r := &Registry{
		source: source,
		logger: logger.With().Str("component", "registry").Logger(),
	}
	r.snapshot.Store(BuildSnapshot(nil, nil))
	return r
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Refresh rebuilds the snapshot from the source.
func (r *Registry) Refresh(ctx context.Context) error {
	tokens, err := r.source.ListTrackedTokens(ctx)
	if err != nil {
		return fmt.Errorf("list tracked tokens: %w", err)
	}

	addresses, err := r.source.ListTrackedAddresses(ctx)
	if err != nil {
		return fmt.Errorf("list tracked addresses: %w", err)
	}

	snap := BuildSnapshot(tokens, addresses)
	r.snapshot.Store(snap)
	r.logger.Debug().Int("tokens", len(tokens)).Int("addresses", len(addresses)).Msg("registry snapshot refreshed")
	return nil
}

// Run refreshes on the given interval until the context is cancelled. A
// failed refresh keeps the previous snapshot in place.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Error().Err(err).Msg("registry refresh failed; keeping previous snapshot")
			}
		}
	}
}
