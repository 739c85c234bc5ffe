package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clubgate/internal/auth/models"
	"clubgate/internal/platform/postgres"
	id "clubgate/pkg/domain"
	"clubgate/pkg/platform/sentinel"
	txcontext "clubgate/pkg/platform/tx"
)

// PostgresStore persists users in the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, username, email, password_hash, display_name, role, is_active, is_deleted,
	last_login_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, display_name, role, is_active, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $7)
		RETURNING id
	`
	now := user.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	var userID int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.DisplayName, string(user.Role), user.Active, now,
	).Scan(&userID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", user.Username, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = id.UserID(userID)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanOne(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, int64(userID)))
}

// FindByLogin matches username or email case-insensitively. A live account
// wins over deleted ones sharing the same login.
func (s *PostgresStore) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE lower(username) = lower($1) OR lower(email) = lower($1)
		ORDER BY is_deleted ASC, id DESC
		LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, login))
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE lower(username) = lower($1)
		ORDER BY is_deleted ASC, id DESC
		LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, username))
}

func (s *PostgresStore) Taken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE NOT is_deleted AND lower(username) = lower($1)),
			EXISTS (SELECT 1 FROM users WHERE NOT is_deleted AND lower(email) = lower($2))
	`
	if err := s.db.QueryRowContext(ctx, query, username, email).Scan(&usernameTaken, &emailTaken); err != nil {
		return false, false, fmt.Errorf("check user uniqueness: %w", err)
	}
	return usernameTaken, emailTaken, nil
}

func (s *PostgresStore) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $2, password_hash = $3, display_name = $4, role = $5,
			is_active = $6, is_deleted = $7, updated_at = $8
		WHERE id = $1
	`
	user.UpdatedAt = time.Now().UTC()
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		int64(user.ID), user.Email, user.PasswordHash, user.DisplayName, string(user.Role),
		user.Active, user.Deleted, user.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("user %d: %w", user.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) TouchLastLogin(ctx context.Context, userID id.UserID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, int64(userID), at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE NOT is_deleted ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return user, err
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user      models.User
		userID    int64
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&userID, &user.Username, &user.Email, &user.PasswordHash, &user.DisplayName, &role,
		&user.Active, &user.Deleted, &lastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.ID = id.UserID(userID)
	user.Role = id.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
