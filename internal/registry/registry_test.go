package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"transfer-alerts/internal/chain"
)

type staticSource struct {
	tokens    []TrackedToken
	addresses []TrackedAddress
	err       error
}

func (s *staticSource) ListTrackedTokens(context.Context) ([]TrackedToken, error) {
	return s.tokens, s.err
}

func (s *staticSource) ListTrackedAddresses(context.Context) ([]TrackedAddress, error) {
	return s.addresses, s.err
}

func fixtureSource() *staticSource {
	return &staticSource{
		tokens: []TrackedToken{{
			Token: Token{ID: 1, Symbol: "USDT", Decimals: 6, PriceUSD: decimal.NewFromInt(1)},
			ContractsByChain: map[chain.ID]string{
				chain.Ethereum: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
				chain.Tron:     "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
			},
		}},
		addresses: []TrackedAddress{
			{Chain: chain.Ethereum, Address: "0xAbCd000000000000000000000000000000000001", AccountID: 7},
			{Chain: chain.Tron, Address: "TWd4WrZ9wn84f5x1hZhL4DHvk738ns5jwb", AccountID: 7},
		},
	}
}

func TestSnapshotLookupsAreCaseInsensitive(t *testing.T) {
	src := fixtureSource()
	snap := BuildSnapshot(src.tokens, src.addresses)

	token, ok := snap.TokenByContract(chain.Ethereum, "0xDAC17F958D2EE523A2206206994597C13D831EC7")
	if !ok {
		t.Fatal("upper-cased contract should resolve")
	}
	if token.Symbol != "USDT" || token.Decimals != 6 {
		t.Fatalf("unexpected token %+v", token)
	}

	accountID, ok := snap.AccountForAddress(chain.Ethereum, "0xabcd000000000000000000000000000000000001")
	if !ok || accountID != 7 {
		t.Fatalf("lower-cased wallet should resolve to account 7, got %d/%v", accountID, ok)
	}

	if _, ok := snap.TokenByContract(chain.Tron, "0xdAC17F958D2ee523a2206206994597C13D831ec7"); ok {
		t.Fatal("contract must not resolve on the wrong chain")
	}
}

func TestSnapshotContractsPerChain(t *testing.T) {
	src := fixtureSource()
	snap := BuildSnapshot(src.tokens, src.addresses)

	if got := len(snap.ContractsFor(chain.Tron)); got != 1 {
		t.Fatalf("expected 1 tron contract, got %d", got)
	}
	if snap.AddressCount(chain.Ethereum) != 1 {
		t.Fatalf("expected 1 tracked ethereum wallet, got %d", snap.AddressCount(chain.Ethereum))
	}
}

func TestRefreshSwapsSnapshot(t *testing.T) {
	src := fixtureSource()
	reg := New(src, zerolog.Nop())

	if reg.Snapshot().AddressCount(chain.Tron) != 0 {
		t.Fatal("initial snapshot should be empty")
	}

	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if reg.Snapshot().AddressCount(chain.Tron) != 1 {
		t.Fatal("refreshed snapshot should contain the tracked wallet")
	}
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	src := fixtureSource()
	reg := New(src, zerolog.Nop())

	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	before := reg.Snapshot()

	src.err = errors.New("database unavailable")
	if err := reg.Refresh(context.Background()); err == nil {
		t.Fatal("refresh should surface the source error")
	}
	if reg.Snapshot() != before {
		t.Fatal("failed refresh must keep the previous snapshot")
	}
}
