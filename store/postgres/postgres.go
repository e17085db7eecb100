// Package postgres is a PostgreSQL credential store built on database/sql with
// the pgx driver. Schema migrations are embedded and applied with goose.
//
// Update runs the mutation inside a transaction that holds a row lock
// (SELECT ... FOR UPDATE), so concurrent failed logins against one account are
// counted exactly.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	authcore "github.com/MrEthical07/authcore"
)

const uniqueViolation = "23505"

const accountColumns = `id, username, email, password_hash, role, is_superuser, is_active, is_verified,
       failed_login_attempts, locked_until, last_login_at, password_changed_at, created_at, updated_at`

var (
	_ authcore.CredentialStore = (*Store)(nil)
	_ authcore.AtomicUpdater   = (*Store)(nil)
	_ authcore.AccountCreator  = (*Store)(nil)
	_ authcore.AccountLister   = (*Store)(nil)
	_ authcore.AccountSearcher = (*Store)(nil)
)

type Store struct {
	db *sql.DB
}

// Open connects through the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*authcore.Account, error) {
	var (
		a           authcore.Account
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role,
		&a.IsSuperuser, &a.IsActive, &a.IsVerified,
		&a.FailedLoginAttempts, &lockedUntil, &lastLogin,
		&a.PasswordChangedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		a.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*authcore.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccount(s.db.QueryRowContext(ctx, query, username))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) Create(ctx context.Context, a *authcore.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Username, a.Email, a.PasswordHash, a.Role,
		a.IsSuperuser, a.IsActive, a.IsVerified,
		a.FailedLoginAttempts, nullTime(a.LockedUntil), nullTime(a.LastLoginAt),
		a.PasswordChangedAt, a.CreatedAt, a.UpdatedAt,
	)
	return mapWriteError(err)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) Save(ctx context.Context, a *authcore.Account) error {
	return save(ctx, s.db, a)
}

func save(ctx context.Context, db execer, a *authcore.Account) error {
	query := `UPDATE accounts SET
            username = $2, email = $3, password_hash = $4, role = $5,
            is_superuser = $6, is_active = $7, is_verified = $8,
            failed_login_attempts = $9, locked_until = $10, last_login_at = $11,
            password_changed_at = $12, updated_at = $13
         WHERE id = $1`

	res, err := db.ExecContext(ctx, query,
		a.ID, a.Username, a.Email, a.PasswordHash, a.Role,
		a.IsSuperuser, a.IsActive, a.IsVerified,
		a.FailedLoginAttempts, nullTime(a.LockedUntil), nullTime(a.LastLoginAt),
		a.PasswordChangedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

// Update locks the account row, applies fn and writes the result in the same
// transaction. The transaction is rolled back when fn fails.
func (s *Store) Update(ctx context.Context, id string, fn func(*authcore.Account) error) (*authcore.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("db begin error: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	account, err := scanAccount(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := fn(account); err != nil {
		return nil, err
	}
	account.ID = id

	if err := save(ctx, tx, account); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("db commit error: %w", err)
	}
	return account, nil
}

// List pages through accounts ordered by creation time.
func (s *Store) List(ctx context.Context, offset, limit int) ([]*authcore.Account, error) {
	offset, limit = pageBounds(offset, limit)
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id LIMIT $1 OFFSET $2`
	return s.queryAccounts(ctx, limit, query, limit, offset)
}

// Search pages through accounts whose username or email matches query with
// ILIKE. LIKE wildcards in query match literally.
func (s *Store) Search(ctx context.Context, query string, offset, limit int) ([]*authcore.Account, error) {
	offset, limit = pageBounds(offset, limit)
	stmt := `SELECT ` + accountColumns + ` FROM accounts
         WHERE username ILIKE $1 OR email ILIKE $1
         ORDER BY created_at, id LIMIT $2 OFFSET $3`
	return s.queryAccounts(ctx, limit, stmt, "%"+likeEscaper.Replace(query)+"%", limit, offset)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func pageBounds(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}
	return offset, limit
}

func (s *Store) queryAccounts(ctx context.Context, capacity int, query string, args ...any) ([]*authcore.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*authcore.Account, 0, capacity)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return authcore.ErrAccountExists
	}
	return fmt.Errorf("db error: %w", err)
}
