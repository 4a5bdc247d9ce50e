package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const apiKeyHeader = "TRON-PRO-API-KEY"

// ClientOptions parameterise fullnode and event-indexer access.
type ClientOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to a Tron fullnode HTTP API and its companion event indexer.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a Tron HTTP client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "tron_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Block mirrors the fullnode getblockbynum response, trimmed to the fields
// the transfer decoder consumes.
type Block struct {
	BlockID string `json:"blockID"`
	Header  struct {
		RawData struct {
			Number    uint64 `json:"number"`
			Timestamp int64  `json:"timestamp"`
		} `json:"raw_data"`
	} `json:"block_header"`
	Transactions []BlockTx `json:"transactions"`
}

// BlockTx is a single transaction within a fetched block.
type BlockTx struct {
	TxID string `json:"txID"`
	Ret  []struct {
		ContractRet string `json:"contractRet"`
	} `json:"ret"`
	RawData struct {
		Contract []struct {
			Type      string `json:"type"`
			Parameter struct {
				Value struct {
					Data            string `json:"data"`
					OwnerAddress    string `json:"owner_address"`
					ContractAddress string `json:"contract_address"`
				} `json:"value"`
			} `json:"parameter"`
		} `json:"contract"`
	} `json:"raw_data"`
}

// TransferEvent is one item of the per-contract Transfer feed.
type TransferEvent struct {
	TransactionID   string `json:"transaction_id"`
	BlockNumber     uint64 `json:"block_number"`
	BlockTimestamp  int64  `json:"block_timestamp"`
	ContractAddress string `json:"contract_address"`
	Result          struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Value string `json:"value"`
	} `json:"result"`
}

// EventPage is one page of the Transfer feed plus its continuation cursor.
type EventPage struct {
	Data    []TransferEvent `json:"data"`
	Success bool            `json:"success"`
	Meta    struct {
		Fingerprint string `json:"fingerprint"`
		PageSize    int    `json:"page_size"`
	} `json:"meta"`
}

// NowBlock returns the current head block number and its timestamp in
// milliseconds.
func (c *Client) NowBlock(ctx context.Context) (uint64, int64, error) {
	var block Block
	if err := c.post(ctx, "/wallet/getnowblock", map[string]any{}, &block); err != nil {
		return 0, 0, err
	}
	if block.Header.RawData.Number == 0 {
		return 0, 0, fmt.Errorf("getnowblock returned empty header")
	}
	return block.Header.RawData.Number, block.Header.RawData.Timestamp, nil
}

// BlockByNum fetches one full block by height.
func (c *Client) BlockByNum(ctx context.Context, height uint64) (*Block, error) {
	var block Block
	if err := c.post(ctx, "/wallet/getblockbynum", map[string]any{"num": height}, &block); err != nil {
		return nil, err
	}
	if block.BlockID == "" {
		return nil, fmt.Errorf("block %d not found", height)
	}
	return &block, nil
}

// TransferEvents fetches one page of Transfer events for a contract within a
// block-timestamp window. An empty fingerprint starts the feed; the returned
// page carries the cursor for the next call, empty when exhausted.
func (c *Client) TransferEvents(ctx context.Context, contract string, fromMillis, toMillis uint64, limit int, fingerprint string) (*EventPage, error) {
	query := url.Values{}
	query.Set("event_name", "Transfer")
	query.Set("only_confirmed", "true")
	query.Set("min_block_timestamp", strconv.FormatUint(fromMillis, 10))
	query.Set("max_block_timestamp", strconv.FormatUint(toMillis, 10))
	query.Set("limit", strconv.Itoa(limit))
	if fingerprint != "" {
		query.Set("fingerprint", fingerprint)
	}

	endpoint := fmt.Sprintf("%s/v1/contracts/%s/events?%s", c.baseURL, url.PathEscape(contract), query.Encode())

	var page EventPage
	if err := c.get(ctx, endpoint, &page); err != nil {
		return nil, err
	}
	if !page.Success {
		return nil, fmt.Errorf("event feed for %s returned success=false", contract)
	}
	return &page, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.opts.APIKey)
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tron request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read tron response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tron api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode tron response: %w", err)
	}
	return nil
}
