package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-ico/internal/domain"
	"solana-ico/internal/storage"
)

// ActionStore implements storage.ActionStore using PostgreSQL.
type ActionStore struct {
	pool *Pool
}

// NewActionStore creates a new ActionStore.
func NewActionStore(pool *Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ActionStore = (*ActionStore)(nil)

const actionColumns = `action_id, kind, wallet, amount, lamports, signature, status, error, created_at`

// Insert adds a new action. Returns ErrDuplicateKey if action_id exists.
func (s *ActionStore) Insert(ctx context.Context, a *domain.Action) (err error) {
	if err := storage.ValidateAction(a); err != nil {
		return err
	}
	defer func(start time.Time) { observe("insert_action", start, err) }(time.Now())

	query := `
		INSERT INTO actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.pool.Exec(ctx, query,
		a.ActionID,
		string(a.Kind),
		a.Wallet,
		int64(a.Amount),
		int64(a.Lamports),
		a.Signature,
		string(a.Status),
		a.Error,
		a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// GetByID retrieves an action by its ID. Returns ErrNotFound if not exists.
func (s *ActionStore) GetByID(ctx context.Context, actionID string) (*domain.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE action_id = $1`

	a, err := scanAction(s.pool.QueryRow(ctx, query, actionID))
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get action by id: %w", err)
	}
	return a, nil
}

// ListByWallet retrieves actions signed by wallet, ordered by created_at ASC.
func (s *ActionStore) ListByWallet(ctx context.Context, wallet string, limit int) (actions []*domain.Action, err error) {
	defer func(start time.Time) { observe("list_actions_by_wallet", start, err) }(time.Now())

	var rows pgx.Rows
	if limit > 0 {
		// Newest limit rows, returned oldest first.
		rows, err = s.pool.Query(ctx, `
			SELECT * FROM (
				SELECT `+actionColumns+` FROM actions
				WHERE wallet = $1
				ORDER BY created_at DESC, action_id DESC
				LIMIT $2
			) recent
			ORDER BY created_at ASC, action_id ASC
		`, wallet, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+actionColumns+` FROM actions
			WHERE wallet = $1
			ORDER BY created_at ASC, action_id ASC
		`, wallet)
	}
	if err != nil {
		return nil, fmt.Errorf("list actions by wallet: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// ListByTimeRange retrieves actions created within [start, end] (inclusive).
func (s *ActionStore) ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.Action, error) {
	query := `
		SELECT ` + actionColumns + ` FROM actions
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC, action_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("list actions by time range: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// scanAction scans a single row into an Action.
func scanAction(row pgx.Row) (*domain.Action, error) {
	var a domain.Action
	var kind, status string
	var amount, lamports int64

	err := row.Scan(
		&a.ActionID,
		&kind,
		&a.Wallet,
		&amount,
		&lamports,
		&a.Signature,
		&status,
		&a.Error,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = domain.ActionKind(kind)
	a.Status = domain.ActionStatus(status)
	a.Amount = uint64(amount)
	a.Lamports = uint64(lamports)
	return &a, nil
}

// scanActions scans multiple rows into a slice of Action.
func scanActions(rows pgx.Rows) ([]*domain.Action, error) {
	var actions []*domain.Action

	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}

	return actions, nil
}
