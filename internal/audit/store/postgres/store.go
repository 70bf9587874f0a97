// Package postgres stores encrypted audit records in the audit_events table.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"haven/internal/audit/models"
	id "haven/pkg/domain"
	"haven/pkg/platform/sentinel"
	txcontext "haven/pkg/platform/tx"
)

// codeRetentionActive is the SQLSTATE audit_events_guard raises for an early delete.
const codeRetentionActive pq.ErrorCode = "HV001"

// Store implements ports.Store on PostgreSQL. Inserts are idempotent by event ID
// and a table trigger rejects updates and early deletes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const insertRecord = `
	INSERT INTO audit_events (
		event_id, timestamp, category, risk_level, outcome, checksum,
		iv, ciphertext, auth_tag, retain_until
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (event_id) DO NOTHING
`

// CreateMany inserts the batch in one transaction. Rows that already exist are
// skipped, so a re-queued batch that partially landed is safe to retry.
func (s *Store) CreateMany(ctx context.Context, records []models.EncryptedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	inserted := 0
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := s.execer(ctx)
		for _, r := range records {
			res, err := exec.ExecContext(ctx, insertRecord,
				uuid.UUID(r.EventID),
				r.Timestamp.UTC(),
				string(r.Category),
				string(r.RiskLevel),
				string(r.Outcome),
				r.Checksum,
				r.IV,
				r.Ciphertext,
				r.AuthTag,
				r.RetainUntil.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert audit record %s: %w", r.EventID, classify(err))
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, classify(err)
	}
	return inserted, nil
}

func (s *Store) Count(ctx context.Context, q models.RecordQuery) (int, error) {
	where, args := whereClause(q)
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit records: %w", classify(err))
	}
	return n, nil
}

func (s *Store) FindMany(ctx context.Context, q models.RecordQuery) ([]models.EncryptedRecord, error) {
	where, args := whereClause(q)
	query := `
		SELECT event_id, timestamp, category, risk_level, outcome, checksum,
			   iv, ciphertext, auth_tag, retain_until
		FROM audit_events` + where + orderClause(q.SortBy, q.SortOrder)
	if q.Take > 0 {
		args = append(args, q.Take)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Skip > 0 {
		args = append(args, q.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", classify(err))
	}
	defer rows.Close()

	records := make([]models.EncryptedRecord, 0)
	for rows.Next() {
		var (
			r        models.EncryptedRecord
			eventID  uuid.UUID
			category string
			risk     string
			outcome  string
		)
		if err := rows.Scan(&eventID, &r.Timestamp, &category, &risk, &outcome, &r.Checksum,
			&r.IV, &r.Ciphertext, &r.AuthTag, &r.RetainUntil); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.EventID = id.EventID(eventID)
		r.Timestamp = r.Timestamp.UTC()
		r.RetainUntil = r.RetainUntil.UTC()
		r.Category = models.Category(category)
		r.RiskLevel = models.RiskLevel(risk)
		r.Outcome = models.Outcome(outcome)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", classify(err))
	}
	return records, nil
}

// DeleteExpired removes records past retention. The trigger independently
// refuses any row whose retention has not elapsed by database time.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM audit_events WHERE retain_until < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired audit records: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired audit records: %w", err)
	}
	return int(n), nil
}

func whereClause(q models.RecordQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !q.Start.IsZero() {
		add("timestamp >= $%d", q.Start.UTC())
	}
	if !q.End.IsZero() {
		add("timestamp <= $%d", q.End.UTC())
	}
	if len(q.Categories) > 0 {
		add("category = ANY($%d)", pq.Array(toStrings(q.Categories)))
	}
	if len(q.Outcomes) > 0 {
		add("outcome = ANY($%d)", pq.Array(toStrings(q.Outcomes)))
	}
	if len(q.RiskLevels) > 0 {
		add("risk_level = ANY($%d)", pq.Array(toStrings(q.RiskLevels)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const riskRank = `CASE risk_level WHEN 'LOW' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'HIGH' THEN 3 WHEN 'CRITICAL' THEN 4 ELSE 0 END`

func orderClause(field models.SortField, order models.SortOrder) string {
	dir := "DESC"
	if order == models.SortAsc {
		dir = "ASC"
	}
	switch field {
	case models.SortByCategory:
		return fmt.Sprintf(" ORDER BY category %s, timestamp %s", dir, dir)
	case models.SortByOutcome:
		return fmt.Sprintf(" ORDER BY outcome %s, timestamp %s", dir, dir)
	case models.SortByRiskLevel:
		return fmt.Sprintf(" ORDER BY %s %s, timestamp %s", riskRank, dir, dir)
	default:
		return fmt.Sprintf(" ORDER BY timestamp %s", dir)
	}
}

func toStrings[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

// classify tags driver errors with the sentinel the service translates.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	switch {
	case errors.Is(err, sentinel.ErrTimeout), errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, sentinel.ErrRetentionActive):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", sentinel.ErrTimeout, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	case errors.As(err, &pqErr):
		switch {
		case pqErr.Code == codeRetentionActive:
			return fmt.Errorf("%w: %w", sentinel.ErrRetentionActive, err)
		case pqErr.Code == "57014":
			// query_canceled, raised when statement_timeout fires
			return fmt.Errorf("%w: %w", sentinel.ErrTimeout, err)
		case pqErr.Code.Class() == "08":
			return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
		}
	}
	return err
}
