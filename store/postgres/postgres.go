// Package postgres implements account.Store on PostgreSQL through the pgx
// database/sql driver. Email and external id uniqueness are enforced by
// unique indexes; a violation surfaces as account.ErrDuplicate.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/orbitadevhub/backDashboard/account"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

const selectColumns = `id, email, password_hash, external_id, roles, totp_secret, totp_enabled, first_name, last_name, created_at, updated_at`

// Store is a PostgreSQL-backed account.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (account.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return account.Account{}, account.ErrNotFound
	}
	return s.findOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE id = $1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	return s.findOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE email = $1`, email)
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (account.Account, error) {
	if externalID == "" {
		return account.Account{}, account.ErrNotFound
	}
	return s.findOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE external_id = $1`, externalID)
}

func (s *Store) Create(ctx context.Context, draft account.Draft) (account.Account, error) {
	if err := draft.Validate(); err != nil {
		return account.Account{}, err
	}

	a := draft.Account(uuid.NewString(), s.now())
	query :=
		`INSERT INTO accounts (id, email, password_hash, external_id, roles, totp_secret, totp_enabled, first_name, last_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Email, nullable(a.PasswordHash), nullable(a.ExternalID), joinRoles(a.Roles),
		nullable(a.TOTPSecret), a.TOTPEnabled, a.FirstName, a.LastName, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return account.Account{}, account.ErrDuplicate
		}
		return account.Account{}, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

// Update applies patch inside a transaction holding a row lock, so
// invariants are checked against the latest committed row.
func (s *Store) Update(ctx context.Context, id string, patch account.Patch) (account.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return account.Account{}, account.ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return account.Account{}, fmt.Errorf("db error: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return account.Account{}, err
	}
	if patch.Empty() {
		return current, nil
	}

	next, err := patch.Apply(current, s.now())
	if err != nil {
		return account.Account{}, err
	}

	query :=
		`UPDATE accounts
		 SET password_hash = $2, external_id = $3, roles = $4, totp_secret = $5, totp_enabled = $6, updated_at = $7
		 WHERE id = $1`
	_, err = tx.ExecContext(ctx, query,
		id, nullable(next.PasswordHash), nullable(next.ExternalID), joinRoles(next.Roles),
		nullable(next.TOTPSecret), next.TOTPEnabled, next.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return account.Account{}, account.ErrDuplicate
		}
		return account.Account{}, fmt.Errorf("db error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return account.Account{}, fmt.Errorf("db error: %w", err)
	}
	return next, nil
}

func (s *Store) findOne(ctx context.Context, query string, arg any) (account.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, query, arg))
}

func scanAccount(row *sql.Row) (account.Account, error) {
	var (
		a            account.Account
		passwordHash sql.NullString
		externalID   sql.NullString
		roles        string
		totpSecret   sql.NullString
	)
	err := row.Scan(&a.ID, &a.Email, &passwordHash, &externalID, &roles, &totpSecret,
		&a.TOTPEnabled, &a.FirstName, &a.LastName, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, fmt.Errorf("db error: %w", err)
	}

	a.PasswordHash = passwordHash.String
	a.ExternalID = externalID.String
	a.TOTPSecret = totpSecret.String
	a.Roles = splitRoles(roles)
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func joinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
