package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"tradinglab/internal/domain/account"
	"tradinglab/internal/metrics"
	pkgerrors "tradinglab/pkg/errors"
)

// Compile-time check
var _ account.Repository = (*AccountRepository)(nil)

// AccountRepository implements account.Repository using sqlx
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// observe records query metrics for one repository operation
func observe(operation string, start time.Time, err error) {
	metrics.RecordDBQuery("postgres", operation, time.Since(start), err)
}

// scanAccount scans a single account from a database row
func scanAccount(row interface {
	Scan(dest ...interface{}) error
}) (*account.Account, error) {
	acc := &account.Account{}

	err := row.Scan(
		&acc.ID, &acc.UserID, &acc.Broker, &acc.Environment,
		&acc.Nickname, &acc.Balance, &acc.Connected, &acc.Role,
		&acc.ConnectedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return acc, nil
}

// Upsert inserts or updates an account
func (r *AccountRepository) Upsert(ctx context.Context, acc *account.Account) (err error) {
	defer func(start time.Time) { observe("upsert_account", start, err) }(time.Now())

	query := `
		INSERT INTO accounts (
			id, user_id, broker, environment, nickname,
			balance, connected, role, connected_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			nickname = EXCLUDED.nickname,
			balance = EXCLUDED.balance,
			connected = EXCLUDED.connected,
			role = EXCLUDED.role,
			updated_at = NOW()`

	_, err = r.db.ExecContext(ctx, query,
		acc.ID, acc.UserID, acc.Broker, acc.Environment, acc.Nickname,
		acc.Balance, acc.Connected, acc.Role, acc.ConnectedAt,
	)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to upsert account")
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (acc *account.Account, err error) {
	defer func(start time.Time) { observe("get_account", start, err) }(time.Now())

	query := `
		SELECT
			id, user_id, broker, environment, nickname,
			balance, connected, role, connected_at, updated_at
		FROM accounts
		WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	acc, err = scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "account not found: %s", id)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get account")
	}

	return acc, nil
}

// GetByUser retrieves all accounts for a user, core first then satellites
// in connection order
func (r *AccountRepository) GetByUser(ctx context.Context, userID string) (accounts []*account.Account, err error) {
	defer func(start time.Time) { observe("get_user_accounts", start, err) }(time.Now())

	query := `
		SELECT
			id, user_id, broker, environment, nickname,
			balance, connected, role, connected_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY CASE role WHEN 'core' THEN 0 ELSE 1 END, connected_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to query accounts")
	}
	defer rows.Close()

	for rows.Next() {
		acc, scanErr := scanAccount(rows)
		if scanErr != nil {
			return nil, pkgerrors.Wrap(scanErr, "failed to scan account")
		}
		accounts = append(accounts, acc)
	}

	if err = rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to iterate accounts")
	}

	return accounts, nil
}

// SetConnected updates the connection flag for an account
func (r *AccountRepository) SetConnected(ctx context.Context, id string, connected bool) (err error) {
	defer func(start time.Time) { observe("set_connected", start, err) }(time.Now())

	query := `UPDATE accounts SET connected = $2, updated_at = NOW() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, connected)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to update account connection")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "account not found: %s", id)
	}

	return nil
}

// Delete removes an account
func (r *AccountRepository) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("delete_account", start, err) }(time.Now())

	query := `DELETE FROM accounts WHERE id = $1`
	_, err = r.db.ExecContext(ctx, query, id)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to delete account")
	}
	return nil
}

// DeleteByUser removes all accounts for a user. Used on network reset.
func (r *AccountRepository) DeleteByUser(ctx context.Context, userID string) (err error) {
	defer func(start time.Time) { observe("delete_user_accounts", start, err) }(time.Now())

	query := `DELETE FROM accounts WHERE user_id = $1`
	_, err = r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to delete user accounts")
	}
	return nil
}
