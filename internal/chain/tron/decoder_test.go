package tron

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"
)

const (
	ownerRawHex = "411234567890abcdef1234567890abcdef12345678"
	destHex     = "b5ee7f55ef9b2b3a73a5a62ee2d0c2b0c2f8a7e1"
)

func transferCalldata(dest string, amount int64) string {
	return "a9059cbb" + strings.Repeat("0", 24) + dest + fmt.Sprintf("%064x", amount)
}

func blockFixture(t *testing.T, contractRet, contractAddr, calldata string) *Block {
	t.Helper()

	raw := fmt.Sprintf(`{
		"blockID": "0000000000bc614e",
		"block_header": {"raw_data": {"number": 12345678, "timestamp": 1714000000000}},
		"transactions": [{
			"txID": "deadbeef01",
			"ret": [{"contractRet": %q}],
			"raw_data": {"contract": [{
				"type": "TriggerSmartContract",
				"parameter": {"value": {
					"data": %q,
					"owner_address": %q,
					"contract_address": %q
				}}
			}]}
		}]
	}`, contractRet, calldata, ownerRawHex, contractAddr)

	var block Block
	if err := json.Unmarshal([]byte(raw), &block); err != nil {
		t.Fatalf("unmarshal block fixture: %v", err)
	}
	return &block
}

func trackedUSDT() map[string]struct{} {
	return map[string]struct{}{strings.ToLower(usdtBase58): {}}
}

func TestDecodeBlockTransfer(t *testing.T) {
	block := blockFixture(t, "SUCCESS", usdtRawHex, transferCalldata(destHex, 150000000))

	transfers := DecodeBlock(block, trackedUSDT())
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(transfers))
	}

	got := transfers[0]
	if got.TxID != "deadbeef01" {
		t.Fatalf("unexpected tx id %s", got.TxID)
	}
	if got.Height != 12345678 {
		t.Fatalf("unexpected height %d", got.Height)
	}
	if !got.BlockTime.Equal(time.UnixMilli(1714000000000).UTC()) {
		t.Fatalf("unexpected block time %s", got.BlockTime)
	}
	if got.Contract != usdtBase58 {
		t.Fatalf("contract not canonicalized: %s", got.Contract)
	}

	wantFrom, err := FromRawHex(ownerRawHex)
	if err != nil {
		t.Fatalf("convert owner address: %v", err)
	}
	if got.From != wantFrom {
		t.Fatalf("from = %s, want %s", got.From, wantFrom)
	}

	wantTo, err := FromEVMHex(destHex)
	if err != nil {
		t.Fatalf("convert destination address: %v", err)
	}
	if got.To != wantTo {
		t.Fatalf("to = %s, want %s", got.To, wantTo)
	}

	if got.RawAmount.Cmp(big.NewInt(150000000)) != 0 {
		t.Fatalf("amount = %s, want 150000000", got.RawAmount)
	}
}

func TestDecodeBlockSkipsFailedTx(t *testing.T) {
	block := blockFixture(t, "REVERT", usdtRawHex, transferCalldata(destHex, 150000000))
	if transfers := DecodeBlock(block, trackedUSDT()); len(transfers) != 0 {
		t.Fatalf("failed transaction must be skipped, got %d transfers", len(transfers))
	}
}

func TestDecodeBlockSkipsUntrackedContract(t *testing.T) {
	block := blockFixture(t, "SUCCESS", ownerRawHex, transferCalldata(destHex, 150000000))
	if transfers := DecodeBlock(block, trackedUSDT()); len(transfers) != 0 {
		t.Fatalf("untracked contract must be skipped, got %d transfers", len(transfers))
	}
}

func TestDecodeBlockSkipsNonTransferCalldata(t *testing.T) {
	// approve(address,uint256) selector instead of transfer.
	calldata := "095ea7b3" + strings.Repeat("0", 24) + destHex + fmt.Sprintf("%064x", int64(1))
	block := blockFixture(t, "SUCCESS", usdtRawHex, calldata)
	if transfers := DecodeBlock(block, trackedUSDT()); len(transfers) != 0 {
		t.Fatalf("non-transfer calldata must be skipped, got %d transfers", len(transfers))
	}
}

func TestDecodeTransferCallRejectsMalformedData(t *testing.T) {
	cases := []string{
		"",
		"a9059cbb",
		"a9059cbb" + strings.Repeat("0", 24) + destHex, // missing amount slot
		"zz059cbb" + strings.Repeat("0", 120),          // not hex
	}
	for _, data := range cases {
		if _, _, ok := decodeTransferCall(data); ok {
			t.Fatalf("calldata %q should not decode as a transfer", data)
		}
	}
}

func TestDecodeTransferCallAcceptsTrailingBytes(t *testing.T) {
	// Some wallets append extra calldata; the first two slots still decode.
	data := transferCalldata(destHex, 42) + "ff"
	_, amount, ok := decodeTransferCall(data)
	if !ok {
		t.Fatal("calldata with trailing bytes should still decode")
	}
	if amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("amount = %s, want 42", amount)
	}
}
