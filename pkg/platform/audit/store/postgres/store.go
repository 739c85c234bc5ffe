package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	id "clubgate/pkg/domain"
	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/sentinel"
	txcontext "clubgate/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `
	SELECT id, kind, severity, description, actor_user_id, subject_kind, subject_id,
		   details, ip_address, user_agent, request_id, created_at
	FROM audit_events`

// Append inserts an event and sets its id.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	var subjectKind *string
	var subjectID *int64
	if event.SubjectKind != "" {
		sk := string(event.SubjectKind)
		subjectKind = &sk
		if event.SubjectID != 0 {
			subjectID = &event.SubjectID
		}
	}

	query := `
		INSERT INTO audit_events (
			kind, severity, description, actor_user_id, subject_kind, subject_id,
			details, ip_address, user_agent, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var eventID int64
	err = txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query,
		string(event.Kind),
		string(event.Severity),
		event.Description,
		event.ActorID.Int64Ptr(),
		subjectKind,
		subjectID,
		details,
		event.IP,
		event.UserAgent,
		event.RequestID,
		event.Timestamp,
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	event.ID = id.EventID(eventID)
	return nil
}

// Get returns one event by id.
func (s *Store) Get(ctx context.Context, eventID id.EventID) (*audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE id = $1`, int64(eventID))
	if err != nil {
		return nil, fmt.Errorf("query audit event: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("audit event %d: %w", eventID, sentinel.ErrNotFound)
	}
	return &events[0], nil
}

// List returns a page of events matching filter, newest first, plus the
// total number of matches.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Event, int, error) {
	where, args := buildWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	query := selectColumns + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListBefore returns up to limit events created before cutoff with id
// greater than afterID, in id order. Retention pages through it by id.
func (s *Store) ListBefore(ctx context.Context, cutoff time.Time, afterID id.EventID, limit int) ([]audit.Event, error) {
	query := selectColumns + `
		WHERE created_at < $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`
	rows, err := s.db.QueryContext(ctx, query, cutoff, int64(afterID), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit retention batch: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// DeleteByIDs removes the given events and returns how many rows went away.
func (s *Store) DeleteByIDs(ctx context.Context, ids []id.EventID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]int64, len(ids))
	for i, eventID := range ids {
		raw[i] = int64(eventID)
	}
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM audit_events WHERE id = ANY($1::bigint[])`, pq.Array(raw))
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete audit events rows affected: %w", err)
	}
	return n, nil
}

func buildWhere(f audit.Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if !f.ActorID.IsNil() {
		add("actor_user_id = $%d", int64(f.ActorID))
	}
	if f.SubjectKind != "" {
		add("subject_kind = $%d", string(f.SubjectKind))
	}
	if f.SubjectID != 0 {
		add("subject_id = $%d", f.SubjectID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	if f.Search != "" {
		add("description ILIKE $%d", "%"+escapeLike(f.Search)+"%")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event       audit.Event
			eventID     int64
			kind        string
			severity    string
			actorID     sql.NullInt64
			subjectKind sql.NullString
			subjectID   sql.NullInt64
			details     []byte
		)

		err := rows.Scan(
			&eventID,
			&kind,
			&severity,
			&event.Description,
			&actorID,
			&subjectKind,
			&subjectID,
			&details,
			&event.IP,
			&event.UserAgent,
			&event.RequestID,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.ID = id.EventID(eventID)
		event.Kind = audit.Kind(kind)
		event.Severity = audit.Severity(severity)
		event.ActorID = id.UserID(actorID.Int64)
		event.SubjectKind = audit.SubjectKind(subjectKind.String)
		event.SubjectID = subjectID.Int64
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

