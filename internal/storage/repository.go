package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
)

const (
	vaultColumns = `id::text, user_id, wallet_address, balance::text, strategy_profile,
        guardian_mode_active, version, created_at, updated_at`

	getVaultByOwnerSQL = `SELECT ` + vaultColumns + `
    FROM user_vaults
    WHERE user_id = $1;`

	insertVaultSQL = `INSERT INTO user_vaults (
        id,
        user_id,
        wallet_address,
        balance,
        strategy_profile,
        guardian_mode_active
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (user_id) DO NOTHING
    RETURNING ` + vaultColumns + `;`

	updateVaultPreferencesSQL = `UPDATE user_vaults
    SET strategy_profile     = $2,
        guardian_mode_active = $3,
        version              = version + 1,
        updated_at           = now()
    WHERE id = $1
    RETURNING ` + vaultColumns + `;`

	updateVaultBalanceSQL = `UPDATE user_vaults
    SET balance    = $2,
        version    = version + 1,
        updated_at = now()
    WHERE id = $1
      AND version = $3
    RETURNING ` + vaultColumns + `;`

	vaultExistsSQL = `SELECT EXISTS (SELECT 1 FROM user_vaults WHERE id = $1);`

	txColumns = `id::text, user_id, wallet_address, COALESCE(vault_id::text, ''), type, amount::text,
        COALESCE(from_pool, ''), COALESCE(to_pool, ''), status, COALESCE(signature, ''), created_at`

	insertTransactionSQL = `INSERT INTO transactions (
        id,
        user_id,
        wallet_address,
        vault_id,
        type,
        amount,
        from_pool,
        to_pool,
        status,
        signature
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    RETURNING created_at;`

	listTransactionsByWalletSQL = `SELECT ` + txColumns + `
    FROM transactions
    WHERE wallet_address = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	listTransactionsByVaultSQL = `SELECT ` + txColumns + `
    FROM transactions
    WHERE vault_id = $1
    ORDER BY created_at;`

	insertPositionSQL = `INSERT INTO active_positions (
        id,
        user_id,
        wallet_address,
        vault_id,
        pool_id,
        pool_name,
        amount,
        entry_price,
        current_apy
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING created_at, updated_at;`

	listPositionsByVaultSQL = `SELECT
        id::text, user_id, wallet_address, COALESCE(vault_id::text, ''), pool_id, pool_name,
        amount::text, entry_price::text, current_apy::text, created_at, updated_at
    FROM active_positions
    WHERE vault_id = $1
    ORDER BY created_at DESC;`

	insertRiskEventSQL = `INSERT INTO risk_events (
        id,
        event_type,
        severity,
        description,
        triggered_guardian
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING created_at;`

	listRecentRiskEventsSQL = `SELECT
        id::text, event_type, severity, description, triggered_guardian, created_at
    FROM risk_events
    ORDER BY created_at DESC
    LIMIT $1;`

	insertPredictionSQL = `INSERT INTO ai_predictions (
        id,
        pool_id,
        predicted_volume_spike,
        confidence_score,
        prediction_time,
        actual_result
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING created_at;`

	listRecentPredictionsSQL = `SELECT
        id::text, pool_id, predicted_volume_spike, confidence_score::text,
        prediction_time, actual_result, created_at
    FROM ai_predictions
    ORDER BY prediction_time DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store is the Postgres-backed Repository.
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

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
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
		// 连接归还前尽力释放锁，失败时会话结束也会释放
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetVaultByOwner returns domain.ErrNotFound when the owner has no vault.
func (s *Store) GetVaultByOwner(ctx context.Context, userID string) (domain.Vault, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Vault{}, err
	}
	v, err := scanVault(pool.QueryRow(ctx, getVaultByOwnerSQL, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Vault{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Vault{}, fmt.Errorf("get vault by owner: %w", err)
	}
	return v, nil
}

// CreateVault inserts a new vault; ErrDuplicate if the owner already has one.
func (s *Store) CreateVault(ctx context.Context, vault domain.Vault) (domain.Vault, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Vault{}, err
	}
	id, err := newOrParseID(vault.ID)
	if err != nil {
		return domain.Vault{}, err
	}

	v, err := scanVault(pool.QueryRow(ctx, insertVaultSQL,
		id,
		vault.UserID,
		vault.WalletAddress,
		vault.Balance.String(),
		string(vault.StrategyProfile),
		vault.GuardianEnabled,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Vault{}, ErrDuplicate
	}
	if err != nil {
		return domain.Vault{}, fmt.Errorf("insert vault: %w", err)
	}
	return v, nil
}

// UpdateVaultPreferences sets profile and guardian flag, leaving the balance untouched.
func (s *Store) UpdateVaultPreferences(ctx context.Context, vaultID string, profile domain.StrategyProfile, guardian bool) (domain.Vault, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Vault{}, err
	}
	id, err := parseID(vaultID)
	if err != nil {
		return domain.Vault{}, err
	}
	v, err := scanVault(pool.QueryRow(ctx, updateVaultPreferencesSQL, id, string(profile), guardian))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Vault{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Vault{}, fmt.Errorf("update vault preferences: %w", err)
	}
	return v, nil
}

// UpdateVaultBalance writes the balance only if the row is still at expectedVersion.
func (s *Store) UpdateVaultBalance(ctx context.Context, vaultID string, balance decimal.Decimal, expectedVersion int64) (domain.Vault, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Vault{}, err
	}
	if balance.IsNegative() {
		return domain.Vault{}, fmt.Errorf("update vault balance: negative balance %s", balance)
	}
	id, err := parseID(vaultID)
	if err != nil {
		return domain.Vault{}, err
	}

	v, err := scanVault(pool.QueryRow(ctx, updateVaultBalanceSQL, id, balance.String(), expectedVersion))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if existsErr := pool.QueryRow(ctx, vaultExistsSQL, id).Scan(&exists); existsErr != nil {
			return domain.Vault{}, fmt.Errorf("check vault exists: %w", existsErr)
		}
		if !exists {
			return domain.Vault{}, domain.ErrNotFound
		}
		return domain.Vault{}, domain.ErrVersionConflict
	}
	if err != nil {
		return domain.Vault{}, fmt.Errorf("update vault balance: %w", err)
	}
	return v, nil
}

// InsertTransaction appends an audit record.
func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Transaction{}, err
	}
	id, err := newOrParseID(tx.ID)
	if err != nil {
		return domain.Transaction{}, err
	}
	vaultID, err := nullableID(tx.VaultID)
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := pool.QueryRow(ctx, insertTransactionSQL,
		id,
		tx.UserID,
		tx.WalletAddress,
		vaultID,
		string(tx.Kind),
		nullableDecimal(tx.Amount),
		nullableText(tx.FromPool),
		nullableText(tx.ToPool),
		string(tx.Status),
		nullableText(tx.Signature),
	).Scan(&tx.CreatedAt); err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	tx.ID = id.String()
	return tx, nil
}

// ListTransactionsByWallet returns the newest transactions first.
func (s *Store) ListTransactionsByWallet(ctx context.Context, wallet string, limit int) ([]domain.Transaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listTransactionsByWalletSQL, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions by wallet: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListTransactionsByVault returns a vault's transactions in chronological order.
func (s *Store) ListTransactionsByVault(ctx context.Context, vaultID string) ([]domain.Transaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	id, err := parseID(vaultID)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listTransactionsByVaultSQL, id)
	if err != nil {
		return nil, fmt.Errorf("list transactions by vault: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// InsertPosition records a strategy allocation.
func (s *Store) InsertPosition(ctx context.Context, pos domain.Position) (domain.Position, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Position{}, err
	}
	id, err := newOrParseID(pos.ID)
	if err != nil {
		return domain.Position{}, err
	}
	vaultID, err := nullableID(pos.VaultID)
	if err != nil {
		return domain.Position{}, err
	}

	if err := pool.QueryRow(ctx, insertPositionSQL,
		id,
		pos.UserID,
		pos.WalletAddress,
		vaultID,
		pos.PoolID,
		pos.PoolName,
		pos.Amount.String(),
		nullableDecimal(pos.EntryPrice),
		nullableDecimal(pos.CurrentAPY),
	).Scan(&pos.CreatedAt, &pos.UpdatedAt); err != nil {
		return domain.Position{}, fmt.Errorf("insert position: %w", err)
	}
	pos.ID = id.String()
	return pos, nil
}

// ListPositionsByVault lists a vault's positions, newest first.
func (s *Store) ListPositionsByVault(ctx context.Context, vaultID string) ([]domain.Position, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	id, err := parseID(vaultID)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listPositionsByVaultSQL, id)
	if err != nil {
		return nil, fmt.Errorf("list positions by vault: %w", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		var (
			p                    domain.Position
			amountStr            string
			entryStr, currentStr *string
		)
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.WalletAddress,
			&p.VaultID,
			&p.PoolID,
			&p.PoolName,
			&amountStr,
			&entryStr,
			&currentStr,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if p.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("parse position amount: %w", err)
		}
		if p.EntryPrice, err = parseNullableDecimal(entryStr); err != nil {
			return nil, fmt.Errorf("parse entry price: %w", err)
		}
		if p.CurrentAPY, err = parseNullableDecimal(currentStr); err != nil {
			return nil, fmt.Errorf("parse current apy: %w", err)
		}
		positions = append(positions, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return positions, nil
}

// InsertRiskEvent persists a guardian finding.
func (s *Store) InsertRiskEvent(ctx context.Context, ev domain.RiskEvent) (domain.RiskEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.RiskEvent{}, err
	}
	id, err := newOrParseID(ev.ID)
	if err != nil {
		return domain.RiskEvent{}, err
	}
	if err := pool.QueryRow(ctx, insertRiskEventSQL,
		id,
		ev.EventType,
		string(ev.Severity),
		ev.Description,
		ev.TriggeredGuardian,
	).Scan(&ev.CreatedAt); err != nil {
		return domain.RiskEvent{}, fmt.Errorf("insert risk event: %w", err)
	}
	ev.ID = id.String()
	return ev, nil
}

// ListRecentRiskEvents returns newest events first with severities normalised.
func (s *Store) ListRecentRiskEvents(ctx context.Context, limit int) ([]domain.RiskEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listRecentRiskEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent risk events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.RiskEvent, 0, limit)
	for rows.Next() {
		var (
			ev       domain.RiskEvent
			severity string
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &severity, &ev.Description, &ev.TriggeredGuardian, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Severity = domain.ParseSeverity(severity)
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// InsertPrediction stores a forecast.
func (s *Store) InsertPrediction(ctx context.Context, p domain.Prediction) (domain.Prediction, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Prediction{}, err
	}
	id, err := newOrParseID(p.ID)
	if err != nil {
		return domain.Prediction{}, err
	}
	var actual interface{}
	if p.ActualResult != nil {
		actual = *p.ActualResult
	}
	if err := pool.QueryRow(ctx, insertPredictionSQL,
		id,
		p.PoolID,
		p.PredictedVolumeSpike,
		nullableDecimal(p.ConfidenceScore),
		p.PredictionTime,
		actual,
	).Scan(&p.CreatedAt); err != nil {
		return domain.Prediction{}, fmt.Errorf("insert prediction: %w", err)
	}
	p.ID = id.String()
	return p, nil
}

// ListRecentPredictions returns forecasts ordered by prediction time, newest first.
func (s *Store) ListRecentPredictions(ctx context.Context, limit int) ([]domain.Prediction, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listRecentPredictionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent predictions: %w", err)
	}
	defer rows.Close()

	predictions := make([]domain.Prediction, 0, limit)
	for rows.Next() {
		var (
			p          domain.Prediction
			confidence *string
		)
		if err := rows.Scan(&p.ID, &p.PoolID, &p.PredictedVolumeSpike, &confidence, &p.PredictionTime, &p.ActualResult, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.ConfidenceScore, err = parseNullableDecimal(confidence); err != nil {
			return nil, fmt.Errorf("parse confidence: %w", err)
		}
		predictions = append(predictions, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return predictions, nil
}

func scanVault(row pgx.Row) (domain.Vault, error) {
	var (
		v          domain.Vault
		balanceStr string
		profile    string
	)
	if err := row.Scan(
		&v.ID,
		&v.UserID,
		&v.WalletAddress,
		&balanceStr,
		&profile,
		&v.GuardianEnabled,
		&v.Version,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		return domain.Vault{}, err
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return domain.Vault{}, fmt.Errorf("parse balance: %w", err)
	}
	v.Balance = balance

	// 历史数据里可能存在未知取值，按默认策略处理
	p, err := domain.ParseProfile(profile)
	if err != nil {
		p = domain.DefaultProfile
	}
	v.StrategyProfile = p
	return v, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			tx        domain.Transaction
			kind      string
			status    string
			amountStr *string
		)
		if err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.WalletAddress,
			&tx.VaultID,
			&kind,
			&amountStr,
			&tx.FromPool,
			&tx.ToPool,
			&status,
			&tx.Signature,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		k, err := domain.ParseTxKind(kind)
		if err != nil {
			return nil, err
		}
		tx.Kind = k
		tx.Status = domain.ParseTxStatus(status)
		if tx.Amount, err = parseNullableDecimal(amountStr); err != nil {
			return nil, fmt.Errorf("parse transaction amount: %w", err)
		}
		txs = append(txs, tx)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return txs, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", domain.ErrNotFound, raw)
	}
	return id, nil
}

func newOrParseID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	return parseID(raw)
}

func nullableID(raw string) (interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return id, nil
}

func nullableText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullableDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
