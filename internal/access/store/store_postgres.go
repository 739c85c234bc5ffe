package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"clubgate/internal/access"
	"clubgate/internal/member"
	id "clubgate/pkg/domain"
	txcontext "clubgate/pkg/platform/tx"
)

// PostgresStore persists access records in the access_records table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
	SELECT id, member_id, occurred_at, channel, outcome, level, location, device_id,
		   scanned_payload, payload_verified, message, operator_id, member_state,
		   member_balance, latitude, longitude, observations
	FROM access_records`

func (s *PostgresStore) Create(ctx context.Context, record *access.Record) error {
	query := `
		INSERT INTO access_records (
			member_id, occurred_at, channel, outcome, level, location, device_id,
			scanned_payload, payload_verified, message, operator_id, member_state,
			member_balance, latitude, longitude, observations
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	var recordID int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query,
		int64(record.MemberID), record.OccurredAt, string(record.Channel), string(record.Outcome),
		string(record.Level), record.Location, record.DeviceID, record.ScannedPayload,
		record.PayloadVerified, record.Message, record.OperatorID.Int64Ptr(), string(record.MemberState),
		record.MemberBalance, record.Latitude, record.Longitude, record.Observations,
	).Scan(&recordID)
	if err != nil {
		return fmt.Errorf("insert access record: %w", err)
	}
	record.ID = id.AccessID(recordID)
	return nil
}

// List returns a page of records newest first plus the total match count.
func (s *PostgresStore) List(ctx context.Context, filter access.HistoryFilter) ([]access.Record, int, error) {
	where, args := buildWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access records: %w", err)
	}

	query := recordColumns + where + ` ORDER BY occurred_at DESC, id DESC`
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
		return nil, 0, fmt.Errorf("query access records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *PostgresStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_records WHERE occurred_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count access records: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]access.Record, error) {
	rows, err := s.db.QueryContext(ctx, recordColumns+` ORDER BY occurred_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent access records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) OutcomeCounts(ctx context.Context, from, to time.Time) (map[access.Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM access_records
		WHERE occurred_at >= $1 AND occurred_at < $2
		GROUP BY outcome`, from, to)
	if err != nil {
		return nil, fmt.Errorf("count access outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[access.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan access outcome count: %w", err)
		}
		counts[access.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

// HourlyCounts buckets records by UTC hour of day.
func (s *PostgresStore) HourlyCounts(ctx context.Context, from, to time.Time) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(HOUR FROM occurred_at AT TIME ZONE 'UTC')::int AS hour, COUNT(*)
		FROM access_records
		WHERE occurred_at >= $1 AND occurred_at < $2
		GROUP BY hour`, from, to)
	if err != nil {
		return nil, fmt.Errorf("count access records by hour: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var hour, n int
		if err := rows.Scan(&hour, &n); err != nil {
			return nil, fmt.Errorf("scan hourly access count: %w", err)
		}
		counts[hour] = n
	}
	return counts, rows.Err()
}

func buildWhere(f access.HistoryFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !f.MemberID.IsNil() {
		add("member_id = $%d", int64(f.MemberID))
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRecords(rows *sql.Rows) ([]access.Record, error) {
	records := []access.Record{}
	for rows.Next() {
		var (
			r          access.Record
			recordID   int64
			memberID   int64
			channel    string
			outcome    string
			level      string
			operatorID sql.NullInt64
			state      string
			latitude   sql.NullFloat64
			longitude  sql.NullFloat64
		)
		if err := rows.Scan(&recordID, &memberID, &r.OccurredAt, &channel, &outcome, &level,
			&r.Location, &r.DeviceID, &r.ScannedPayload, &r.PayloadVerified, &r.Message,
			&operatorID, &state, &r.MemberBalance, &latitude, &longitude, &r.Observations,
		); err != nil {
			return nil, fmt.Errorf("scan access record: %w", err)
		}
		r.ID = id.AccessID(recordID)
		r.MemberID = id.MemberID(memberID)
		r.OccurredAt = r.OccurredAt.UTC()
		r.Channel = access.Channel(channel)
		r.Outcome = access.Outcome(outcome)
		r.Level = access.Level(level)
		r.OperatorID = id.UserID(operatorID.Int64)
		r.MemberState = member.State(state)
		if latitude.Valid {
			r.Latitude = &latitude.Float64
		}
		if longitude.Valid {
			r.Longitude = &longitude.Float64
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access records: %w", err)
	}
	return records, nil
}
