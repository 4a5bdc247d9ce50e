package tron

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"transfer-alerts/internal/chain"
)

func TestBlockAdapterFetchTransfers(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallet/getblockbynum" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		calls++

		var req struct {
			Num uint64 `json:"num"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Num == 101 {
			fmt.Fprintf(w, `{
				"blockID": "b101",
				"block_header": {"raw_data": {"number": 101, "timestamp": 1714000000000}},
				"transactions": [{
					"txID": "tx-101",
					"ret": [{"contractRet": "SUCCESS"}],
					"raw_data": {"contract": [{
						"type": "TriggerSmartContract",
						"parameter": {"value": {"data": %q, "owner_address": %q, "contract_address": %q}}
					}]}
				}]
			}`, transferCalldata(destHex, 5000000), ownerRawHex, usdtRawHex)
			return
		}
		fmt.Fprintf(w, `{"blockID":"b%d","block_header":{"raw_data":{"number":%d,"timestamp":1714000003000}},"transactions":[]}`, req.Num, req.Num)
	}))
	defer srv.Close()

	adapter := NewBlockAdapter(testClient(srv.URL), zerolog.Nop())
	contracts := []chain.TrackedContract{{TokenID: 1, Address: usdtBase58}}

	batch, err := adapter.FetchTransfers(context.Background(), contracts, chain.Range{From: 100, To: 102})
	if err != nil {
		t.Fatalf("FetchTransfers failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one request per block in range, got %d", calls)
	}
	if len(batch.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(batch.Transfers))
	}
	if batch.Transfers[0].TxID != "tx-101" || batch.Transfers[0].Height != 101 {
		t.Fatalf("unexpected transfer %+v", batch.Transfers[0])
	}
	if batch.Transfers[0].RawAmount.Cmp(big.NewInt(5000000)) != 0 {
		t.Fatalf("unexpected amount %s", batch.Transfers[0].RawAmount)
	}
}

func TestBlockAdapterFailsCycleOnMissingBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	adapter := NewBlockAdapter(testClient(srv.URL), zerolog.Nop())
	_, err := adapter.FetchTransfers(context.Background(), nil, chain.Range{From: 10, To: 11})
	if err == nil {
		t.Fatal("a block that cannot be fetched must fail the cycle")
	}
}

func TestTokenAdapterIsolatesContractFailures(t *testing.T) {
	goodContract := usdtBase58
	badContract := "TBadContractAddressXXXXXXXXXXXXXXX"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, badContract) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{{
				"transaction_id":  "tx-evt-1",
				"block_number":    77000123,
				"block_timestamp": 1714000000500,
				"result":          map[string]string{"from": ownerRawHex, "to": usdtRawHex, "value": "250000000"},
			}},
			"meta": map[string]any{"fingerprint": ""},
		})
	}))
	defer srv.Close()

	adapter := NewTokenAdapter(testClient(srv.URL), TokenAdapterOptions{PageSize: 50, FanOut: 2}, zerolog.Nop())
	contracts := []chain.TrackedContract{
		{TokenID: 1, Address: goodContract},
		{TokenID: 2, Address: badContract},
	}

	batch, err := adapter.FetchTransfers(context.Background(), contracts, chain.Range{From: 1714000000000, To: 1714000060000})
	if err != nil {
		t.Fatalf("a failing contract must not fail the batch: %v", err)
	}
	if len(batch.Failures) != 1 || batch.Failures[0].Contract.Address != badContract {
		t.Fatalf("expected one failure for %s, got %+v", badContract, batch.Failures)
	}
	if len(batch.Transfers) != 1 {
		t.Fatalf("expected 1 transfer from the healthy contract, got %d", len(batch.Transfers))
	}
	if batch.Transfers[0].From != Canonical(ownerRawHex) {
		t.Fatalf("event addresses must be canonicalized, got %s", batch.Transfers[0].From)
	}
	if batch.Transfers[0].RawAmount.Cmp(big.NewInt(250000000)) != 0 {
		t.Fatalf("unexpected amount %s", batch.Transfers[0].RawAmount)
	}
}

func TestTokenAdapterFollowsFingerprint(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fingerprint := r.URL.Query().Get("fingerprint")

		event := map[string]any{
			"transaction_id":  fmt.Sprintf("tx-page-%d", requests),
			"block_number":    77000123,
			"block_timestamp": 1714000000500,
			"result":          map[string]string{"from": ownerRawHex, "to": usdtRawHex, "value": "1"},
		}

		next := ""
		if fingerprint == "" {
			next = "page-2"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    []map[string]any{event},
			"meta":    map[string]any{"fingerprint": next},
		})
	}))
	defer srv.Close()

	adapter := NewTokenAdapter(testClient(srv.URL), TokenAdapterOptions{PageSize: 1, FanOut: 1}, zerolog.Nop())
	contracts := []chain.TrackedContract{{TokenID: 1, Address: usdtBase58}}

	batch, err := adapter.FetchTransfers(context.Background(), contracts, chain.Range{From: 0, To: 1714000060000})
	if err != nil {
		t.Fatalf("FetchTransfers failed: %v", err)
	}
	if requests != 2 {
		t.Fatalf("expected 2 page requests, got %d", requests)
	}
	if len(batch.Transfers) != 2 {
		t.Fatalf("expected 2 transfers across pages, got %d", len(batch.Transfers))
	}
}

func TestTokenAdapterHeadIsBlockTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"blockID":"abc","block_header":{"raw_data":{"number":77000001,"timestamp":1714000123000}}}`)
	}))
	defer srv.Close()

	adapter := NewTokenAdapter(testClient(srv.URL), TokenAdapterOptions{}, zerolog.Nop())
	head, err := adapter.Head(context.Background())
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if head != 1714000123000 {
		t.Fatalf("head must be the block timestamp in millis, got %d", head)
	}
}
