package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clubgate/internal/member"
	"clubgate/internal/platform/postgres"
	id "clubgate/pkg/domain"
	"clubgate/pkg/platform/sentinel"
	txcontext "clubgate/pkg/platform/tx"
)

// PostgresStore reads and seeds rows of the members table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const memberColumns = `id, member_number, document_type, document_number, full_name, category,
	photo_url, state, balance, last_paid_period, next_due_date,
	credential_payload, credential_hash, credential_issued_at, is_deleted, created_at`

func (s *PostgresStore) Create(ctx context.Context, m *member.Member) error {
	query := `
		INSERT INTO members (
			member_number, document_type, document_number, full_name, category, photo_url,
			state, balance, last_paid_period, next_due_date, is_deleted, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11)
		RETURNING id
	`
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var memberID int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query,
		m.Number, m.DocumentType, m.DocumentNumber, m.FullName, m.Category, nullString(m.PhotoURL),
		string(m.State), m.Balance, m.LastPaidPeriod, m.NextDueDate, m.CreatedAt,
	).Scan(&memberID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("member document %s: %w", m.DocumentNumber, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert member: %w", err)
	}
	m.ID = id.MemberID(memberID)
	return nil
}

func (s *PostgresStore) FindLive(ctx context.Context, memberID id.MemberID) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1 AND NOT is_deleted`
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, int64(memberID))

	var (
		m        member.Member
		rawID    int64
		photo    sql.NullString
		state    string
		payload  sql.NullString
		hash     sql.NullString
		lastPaid sql.NullTime
		nextDue  sql.NullTime
		issuedAt sql.NullTime
	)
	err := row.Scan(&rawID, &m.Number, &m.DocumentType, &m.DocumentNumber, &m.FullName, &m.Category,
		&photo, &state, &m.Balance, &lastPaid, &nextDue,
		&payload, &hash, &issuedAt, &m.Deleted, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find member: %w", err)
	}
	m.ID = id.MemberID(rawID)
	m.PhotoURL = photo.String
	m.State = member.State(state)
	m.CredentialPayload = payload.String
	m.CredentialHash = hash.String
	m.LastPaidPeriod = timePtr(lastPaid)
	m.NextDueDate = timePtr(nextDue)
	m.CredentialIssuedAt = timePtr(issuedAt)
	return &m, nil
}

// IssueCredential only writes when no credential exists, so the issued-at
// timestamp never changes once set.
func (s *PostgresStore) IssueCredential(ctx context.Context, memberID id.MemberID, payload, hash string, issuedAt time.Time) error {
	query := `
		UPDATE members
		SET credential_payload = $2, credential_hash = $3, credential_issued_at = $4
		WHERE id = $1 AND NOT is_deleted AND credential_issued_at IS NULL
	`
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query, int64(memberID), payload, hash, issuedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("credential payload: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("issue credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("issue credential: %w", err)
	}
	if n == 0 {
		if _, err := s.FindLive(ctx, memberID); err != nil {
			return err
		}
		return fmt.Errorf("member %d credential: %w", memberID, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) SetNumber(ctx context.Context, memberID id.MemberID, number string) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE members SET member_number = $2 WHERE id = $1`, int64(memberID), number)
	if err != nil {
		return fmt.Errorf("set member number: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
