package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"transfer-alerts/internal/chain"
	"transfer-alerts/internal/registry"
)

const (
	usdtContract  = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	trackedWallet = "0xAbCd000000000000000000000000000000000001"
	otherWallet   = "0x9999000000000000000000000000000000000009"
)

func testSnapshot() *registry.Snapshot {
	tokens := []registry.TrackedToken{{
		Token: registry.Token{
			ID:             1,
			Symbol:         "USDT",
			Decimals:       6,
			PriceUSD:       decimal.NewFromInt(1),
			PriceUpdatedAt: time.Now().UTC(),
		},
		ContractsByChain: map[chain.ID]string{chain.Ethereum: usdtContract},
	}}
	addresses := []registry.TrackedAddress{
		{Chain: chain.Ethereum, Address: trackedWallet, AccountID: 7},
	}
	return registry.BuildSnapshot(tokens, addresses)
}

func rawTransfer(from, to string) chain.RawTransfer {
	return chain.RawTransfer{
		Chain:     chain.Ethereum,
		TxID:      "0xfeed01",
		Height:    19000001,
		BlockTime: time.Now().UTC(),
		Contract:  usdtContract,
		From:      from,
		To:        to,
		RawAmount: big.NewInt(150000000),
	}
}

func TestMatchIncoming(t *testing.T) {
	matched, ok := Match(testSnapshot(), rawTransfer(otherWallet, trackedWallet))
	if !ok {
		t.Fatal("deposit to a tracked wallet must match")
	}
	if matched.Direction != Incoming {
		t.Fatalf("direction = %s, want incoming", matched.Direction)
	}
	if matched.AccountID != 7 {
		t.Fatalf("account = %d, want 7", matched.AccountID)
	}
	if matched.Token.Symbol != "USDT" {
		t.Fatalf("token = %s, want USDT", matched.Token.Symbol)
	}
}

func TestMatchOutgoing(t *testing.T) {
	matched, ok := Match(testSnapshot(), rawTransfer(trackedWallet, otherWallet))
	if !ok {
		t.Fatal("withdrawal from a tracked wallet must match")
	}
	if matched.Direction != Outgoing {
		t.Fatalf("direction = %s, want outgoing", matched.Direction)
	}
}

func TestMatchBothSidesResolvesIncoming(t *testing.T) {
	matched, ok := Match(testSnapshot(), rawTransfer(trackedWallet, trackedWallet))
	if !ok {
		t.Fatal("internal transfer must match")
	}
	if matched.Direction != Incoming {
		t.Fatalf("to-side must win when both sides are tracked, got %s", matched.Direction)
	}
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	transfer := rawTransfer(otherWallet, "0xABCD000000000000000000000000000000000001")
	transfer.Contract = "0xDAC17F958D2EE523A2206206994597C13D831EC7"
	if _, ok := Match(testSnapshot(), transfer); !ok {
		t.Fatal("address comparison must be case-insensitive")
	}
}

func TestMatchDropsUntracked(t *testing.T) {
	if _, ok := Match(testSnapshot(), rawTransfer(otherWallet, otherWallet)); ok {
		t.Fatal("transfer between untracked wallets must not match")
	}

	transfer := rawTransfer(otherWallet, trackedWallet)
	transfer.Contract = "0x0000000000000000000000000000000000000bad"
	if _, ok := Match(testSnapshot(), transfer); ok {
		t.Fatal("untracked contract must not match")
	}
}
