package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"transfer-alerts/internal/chain"
	"transfer-alerts/internal/registry"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrAccountNotFound indicates an evaluation referenced an unknown account.
	ErrAccountNotFound = errors.New("storage: account not found")
)

const (
	insertDecisionSQL = `INSERT INTO transfer_decisions (
        chain,
        tx_id,
        account_id,
        token_symbol,
        usd_value,
        fired,
        unpriced,
        decided_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (chain, tx_id, account_id) DO NOTHING;`

	getWatermarkSQL = `SELECT position FROM scan_watermarks WHERE chain = $1;`

	setWatermarkSQL = `INSERT INTO scan_watermarks (chain, position, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (chain) DO UPDATE
    SET position = EXCLUDED.position, updated_at = now();`

	insertAlertSQL = `INSERT INTO alerts (
        chain,
        tx_id,
        account_id,
        token_symbol,
        usd_value,
        threshold_usd,
        direction
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        chain,
        tx_id,
        account_id,
        token_symbol,
        usd_value,
        threshold_usd,
        direction,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT
        id,
        chain,
        tx_id,
        account_id,
        token_symbol,
        usd_value,
        threshold_usd,
        direction,
        created_at
    FROM alerts
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at;`

	getAccountSQL = `SELECT id, name, threshold_usd, COALESCE(slack_channel, '')
    FROM accounts
    WHERE id = $1;`

	listTrackedTokensSQL = `SELECT
        t.id,
        t.symbol,
        t.decimals,
        t.usd_price,
        t.price_updated_at,
        c.chain,
        c.contract_address
    FROM tracked_tokens t
    JOIN token_contracts c ON c.token_id = t.id;`

	listTrackedAddressesSQL = `SELECT account_id, chain, address FROM tracked_addresses;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DecisionStore persists write-once alert decisions.
type DecisionStore interface {
	// InsertDecision performs the atomic conditional insert that guards the
	// engine's exactly-once evaluation. It reports whether this call created
	// the record; false means the key was already evaluated.
	InsertDecision(ctx context.Context, rec DecisionRecord) (bool, error)
}

// WatermarkStore persists per-chain scan resume points.
type WatermarkStore interface {
	Watermark(ctx context.Context, chainID chain.ID) (uint64, bool, error)
	SetWatermark(ctx context.Context, chainID chain.ID, position uint64) error
}

// AlertStore records fired alerts for auditing and reporting.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
}

// AccountSource resolves account alerting configuration. Thresholds are read
// here at evaluation time, never cached across a batch.
type AccountSource interface {
	Account(ctx context.Context, accountID int64) (Account, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates repository access for the engine.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertDecision writes the decision record unless the key already exists.
func (s *Store) InsertDecision(ctx context.Context, rec DecisionRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	decidedAt := rec.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}

	cmdTag, execErr := pool.Exec(ctx, insertDecisionSQL,
		string(rec.Chain),
		rec.TxID,
		rec.AccountID,
		rec.TokenSymbol,
		rec.USDValue.String(),
		rec.Fired,
		rec.Unpriced,
		decidedAt,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert decision: %w", execErr)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// Watermark reads the last fully processed position for a chain.
func (s *Store) Watermark(ctx context.Context, chainID chain.ID) (uint64, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, false, err
	}

	var position int64
	scanErr := pool.QueryRow(ctx, getWatermarkSQL, string(chainID)).Scan(&position)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get watermark: %w", scanErr)
	}
	return uint64(position), true, nil
}

// SetWatermark durably advances the resume point. This is the single commit
// point of a scan cycle.
func (s *Store) SetWatermark(ctx context.Context, chainID chain.ID, position uint64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, setWatermarkSQL, string(chainID), int64(position)); execErr != nil {
		return fmt.Errorf("set watermark: %w", execErr)
	}
	return nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		string(alert.Chain),
		alert.TxID,
		alert.AccountID,
		alert.TokenSymbol,
		alert.USDValue.String(),
		alert.ThresholdUSD.String(),
		alert.Direction,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists the most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, limit)
}

// ListAlertsBetween lists alerts within a time window.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, 0)
}

func collectAlerts(rows pgx.Rows, sizeHint int) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0, sizeHint)
	for rows.Next() {
		var (
			rec          AlertRecord
			chainStr     string
			usdValueStr  string
			thresholdStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&chainStr,
			&rec.TxID,
			&rec.AccountID,
			&rec.TokenSymbol,
			&usdValueStr,
			&thresholdStr,
			&rec.Direction,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		rec.Chain = chain.ID(chainStr)

		var convErr error
		rec.USDValue, convErr = decimal.NewFromString(usdValueStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse usd value: %w", convErr)
		}
		rec.ThresholdUSD, convErr = decimal.NewFromString(thresholdStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse threshold: %w", convErr)
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// Account loads one account's alerting configuration.
func (s *Store) Account(ctx context.Context, accountID int64) (Account, error) {
	pool, err := s.getPool()
	if err != nil {
		return Account{}, err
	}

	var (
		account      Account
		thresholdStr string
	)
	scanErr := pool.QueryRow(ctx, getAccountSQL, accountID).Scan(
		&account.ID,
		&account.Name,
		&thresholdStr,
		&account.SlackChannel,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("get account: %w", scanErr)
	}

	account.ThresholdUSD, err = decimal.NewFromString(thresholdStr)
	if err != nil {
		return Account{}, fmt.Errorf("parse account threshold: %w", err)
	}
	return account, nil
}

// ListTrackedTokens loads all tokens with their per-chain contracts for the
// registry refresh.
func (s *Store) ListTrackedTokens(ctx context.Context) ([]registry.TrackedToken, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTrackedTokensSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list tracked tokens: %w", queryErr)
	}
	defer rows.Close()

	byID := make(map[int64]*registry.TrackedToken)
	var order []int64
	for rows.Next() {
		var (
			id             int64
			symbol         string
			decimals       int32
			priceStr       string
			priceUpdatedAt time.Time
			chainStr       string
			contract       string
		)
		if err := rows.Scan(&id, &symbol, &decimals, &priceStr, &priceUpdatedAt, &chainStr, &contract); err != nil {
			return nil, err
		}

		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse token price: %w", convErr)
		}

		token, ok := byID[id]
		if !ok {
			token = &registry.TrackedToken{
				Token: registry.Token{
					ID:             id,
					Symbol:         symbol,
					Decimals:       decimals,
					PriceUSD:       price,
					PriceUpdatedAt: priceUpdatedAt,
				},
				ContractsByChain: make(map[chain.ID]string),
			}
			byID[id] = token
			order = append(order, id)
		}
		token.ContractsByChain[chain.ID(chainStr)] = contract
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	tokens := make([]registry.TrackedToken, 0, len(order))
	for _, id := range order {
		tokens = append(tokens, *byID[id])
	}
	return tokens, nil
}

// ListTrackedAddresses loads the watched wallets for the registry refresh.
func (s *Store) ListTrackedAddresses(ctx context.Context) ([]registry.TrackedAddress, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTrackedAddressesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list tracked addresses: %w", queryErr)
	}
	defer rows.Close()

	addresses := make([]registry.TrackedAddress, 0)
	for rows.Next() {
		var (
			accountID int64
			chainStr  string
			address   string
		)
		if err := rows.Scan(&accountID, &chainStr, &address); err != nil {
			return nil, err
		}
		addresses = append(addresses, registry.TrackedAddress{
			Chain:     chain.ID(chainStr),
			Address:   address,
			AccountID: accountID,
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return addresses, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func. Scan loops use it so two engine instances never double-scan
// the same chain.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ DecisionStore   = (*Store)(nil)
	_ WatermarkStore  = (*Store)(nil)
	_ AlertStore      = (*Store)(nil)
	_ AccountSource   = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
	_ registry.Source = (*Store)(nil)
)
