package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"solana-ico/internal/domain"
	"solana-ico/internal/storage"
)

// ActionStore implements storage.ActionStore on SQLite.
type ActionStore struct {
	db *DB
}

// NewActionStore creates a new ActionStore.
func NewActionStore(db *DB) *ActionStore {
	return &ActionStore{db: db}
}

var _ storage.ActionStore = (*ActionStore)(nil)

const actionColumns = `action_id, kind, wallet, amount, lamports, signature, status, error, created_at`

// Insert adds a new action. Returns ErrDuplicateKey if action_id exists.
func (s *ActionStore) Insert(ctx context.Context, a *domain.Action) (err error) {
	if err := storage.ValidateAction(a); err != nil {
		return err
	}
	defer func(start time.Time) { observe("insert_action", start, err) }(time.Now())

	_, err = s.db.sqlDB.ExecContext(ctx, `
		INSERT INTO actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// GetByID retrieves an action by its ID. Returns ErrNotFound if not exists.
func (s *ActionStore) GetByID(ctx context.Context, actionID string) (a *domain.Action, err error) {
	defer func(start time.Time) { observe("get_action", start, err) }(time.Now())

	row := s.db.sqlDB.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE action_id = ?`, actionID)
	a, err = scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get action by id: %w", err)
	}
	return a, nil
}

// ListByWallet retrieves actions signed by wallet, ordered by created_at ASC.
func (s *ActionStore) ListByWallet(ctx context.Context, wallet string, limit int) (actions []*domain.Action, err error) {
	defer func(start time.Time) { observe("list_actions_by_wallet", start, err) }(time.Now())

	var rows *sql.Rows
	if limit > 0 {
		rows, err = s.db.sqlDB.QueryContext(ctx, `
			SELECT * FROM (
				SELECT `+actionColumns+` FROM actions
				WHERE wallet = ?
				ORDER BY created_at DESC, action_id DESC
				LIMIT ?
			)
			ORDER BY created_at ASC, action_id ASC
		`, wallet, limit)
	} else {
		rows, err = s.db.sqlDB.QueryContext(ctx, `
			SELECT `+actionColumns+` FROM actions
			WHERE wallet = ?
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
func (s *ActionStore) ListByTimeRange(ctx context.Context, start, end int64) (actions []*domain.Action, err error) {
	defer func(begin time.Time) { observe("list_actions_by_time", begin, err) }(time.Now())

	rows, err := s.db.sqlDB.QueryContext(ctx, `
		SELECT `+actionColumns+` FROM actions
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC, action_id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list actions by time range: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*domain.Action, error) {
	var a domain.Action
	var kind, status string
	var amount, lamports int64

	if err := row.Scan(
		&a.ActionID,
		&kind,
		&a.Wallet,
		&amount,
		&lamports,
		&a.Signature,
		&status,
		&a.Error,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}

	a.Kind = domain.ActionKind(kind)
	a.Status = domain.ActionStatus(status)
	a.Amount = uint64(amount)
	a.Lamports = uint64(lamports)
	return &a, nil
}

func scanActions(rows *sql.Rows) ([]*domain.Action, error) {
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
