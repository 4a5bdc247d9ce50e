package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification carries one fired alert to the delivery sink.
type Notification struct {
	Chain        string
	TxID         string
	AccountID    int64
	AccountName  string
	Channel      string // per-account channel override, may be empty
	TokenSymbol  string
	Quantity     decimal.Decimal
	USDValue     decimal.Decimal
	ThresholdUSD decimal.Decimal
	Direction    string
	From         string
	To           string
	BlockTime    time.Time
}

// Notifier delivers alert notifications. The engine does not retry failed
// sends; delivery retry, if any, belongs to the sink.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// SlackNotifier posts alerts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL     string
	defaultChannel string
	client         *http.Client
	logger         zerolog.Logger
}

// NewSlackNotifier constructs a Slack webhook notifier.
func NewSlackNotifier(webhookURL, defaultChannel string, timeout time.Duration, logger zerolog.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SlackNotifier{
		webhookURL:     webhookURL,
		defaultChannel: defaultChannel,
		client:         &http.Client{Timeout: timeout},
		logger:         logger.With().Str("component", "alert_slack").Logger(),
	}
}

// Notify posts the rendered message to the webhook.
func (n *SlackNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"text": renderMessage(note),
	}
	if channel := n.resolveChannel(note); channel != "" {
		payload["channel"] = channel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reply, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(reply)))
	}

	n.logger.Info().
		Str("chain", note.Chain).
		Str("tx_id", note.TxID).
		Int64("account_id", note.AccountID).
		Str("usd_value", note.USDValue.StringFixed(2)).
		Msg("alert delivered")
	return nil
}

func (n *SlackNotifier) resolveChannel(note Notification) string {
	if note.Channel != "" {
		return note.Channel
	}
	return n.defaultChannel
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Transfer Alert] %s %s\n", note.TokenSymbol, strings.ToUpper(note.Direction)))
	if note.AccountName != "" {
		builder.WriteString(fmt.Sprintf("Account: %s\n", note.AccountName))
	}
	builder.WriteString(fmt.Sprintf("Amount: %s %s (USD %s, threshold %s)\n",
		note.Quantity.String(), note.TokenSymbol, note.USDValue.StringFixed(2), note.ThresholdUSD.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Chain: %s\n", note.Chain))
	builder.WriteString(fmt.Sprintf("From: %s\n", note.From))
	builder.WriteString(fmt.Sprintf("To: %s\n", note.To))
	builder.WriteString(fmt.Sprintf("Tx: %s\n", note.TxID))
	if !note.BlockTime.IsZero() {
		builder.WriteString(fmt.Sprintf("Block time: %s UTC\n", note.BlockTime.UTC().Format(time.RFC3339)))
	}
	return builder.String()
}

var _ Notifier = (*SlackNotifier)(nil)
