package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionColumns = `id::text, strategy, success, failure_kind, failure_reason, gas_used::text, duration_ns,
	base_asset, profit::text, all_non_negative, settled, settled_profit::text, started_at`

// Create inserts an execution and its balance rows in one transaction.
func (s *ExecutionStore) Create(ctx context.Context, r domain.ExecutionResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, strategy, success, failure_kind, failure_reason, gas_used, duration_ns,
			base_asset, profit, all_non_negative, settled, settled_profit, started_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9::numeric, $10, $11, $12::numeric, $13)`,
		r.ID, r.Strategy, r.Success, string(r.FailureKind), r.FailureReason,
		strconv.FormatUint(r.GasUsed, 10), r.Duration.Nanoseconds(),
		r.BaseAsset.Hex(), numText(r.Profit), r.AllBalancesNonNegative,
		r.Settled, numTextPtr(r.SettledProfit), r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", r.ID, err)
	}

	batch := &pgx.Batch{}
	for i, b := range r.Balances {
		batch.Queue(`
			INSERT INTO execution_balances (execution_id, position, asset, balance_before, balance_after, delta)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric)`,
			r.ID, i, b.Asset.Hex(), numText(b.Before), numText(b.After), numText(b.Delta),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert execution_balances %s: %w", r.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns an execution with its balances.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionResult, error) {
	r, err := scanExecution(s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionResult{}, domain.ErrNotFound
		}
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT asset, balance_before::text, balance_after::text, delta::text
		FROM execution_balances WHERE execution_id = $1 ORDER BY position`, id)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution_balances %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var asset, before, after, delta string
		if err := rows.Scan(&asset, &before, &after, &delta); err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("postgres: scan execution_balance: %w", err)
		}
		b := domain.TokenBalance{Asset: common.HexToAddress(asset)}
		if b.Before, err = parseNum(before); err != nil {
			return domain.ExecutionResult{}, err
		}
		if b.After, err = parseNum(after); err != nil {
			return domain.ExecutionResult{}, err
		}
		if b.Delta, err = parseNum(delta); err != nil {
			return domain.ExecutionResult{}, err
		}
		r.Balances = append(r.Balances, b)
	}
	if err := rows.Err(); err != nil {
		return domain.ExecutionResult{}, err
	}
	return r, nil
}

// ListRecent returns the most recent executions without their balances.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+executionColumns+` FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutionResult
	for rows.Next() {
		r, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// Stats aggregates executions started at or after since.
func (s *ExecutionStore) Stats(ctx context.Context, since time.Time) (domain.ExecutionStats, error) {
	var st domain.ExecutionStats
	var profit string
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success), COALESCE(SUM(profit) FILTER (WHERE success), 0)::text
		FROM executions WHERE started_at >= $1`, since,
	).Scan(&st.Total, &st.Succeeded, &profit)
	if err != nil {
		return domain.ExecutionStats{}, fmt.Errorf("postgres: execution stats: %w", err)
	}
	if st.Profit, err = parseNum(profit); err != nil {
		return domain.ExecutionStats{}, err
	}
	return st, nil
}

func scanExecution(row pgx.Row) (domain.ExecutionResult, error) {
	var (
		r                    domain.ExecutionResult
		kind, gas, base, pnl string
		durNs                int64
		settled              *string
	)
	if err := row.Scan(&r.ID, &r.Strategy, &r.Success, &kind, &r.FailureReason, &gas, &durNs,
		&base, &pnl, &r.AllBalancesNonNegative, &r.Settled, &settled, &r.StartedAt); err != nil {
		return domain.ExecutionResult{}, err
	}
	var err error
	r.FailureKind = domain.FailureKind(kind)
	if r.GasUsed, err = strconv.ParseUint(gas, 10, 64); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("postgres: bad gas_used %q", gas)
	}
	r.Duration = time.Duration(durNs)
	r.BaseAsset = common.HexToAddress(base)
	if r.Profit, err = parseNum(pnl); err != nil {
		return domain.ExecutionResult{}, err
	}
	if r.SettledProfit, err = parseNumPtr(settled); err != nil {
		return domain.ExecutionResult{}, err
	}
	return r, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
