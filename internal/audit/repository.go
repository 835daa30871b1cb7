// Package audit records every device request sent through the gateway in
// the request_log table.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pagination bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one audited request.
type Entry struct {
	ID          string    `json:"id"`
	DTUSN       string    `json:"dtu_sn"`
	DeviceType  string    `json:"device_type"`
	PhysicalID  string    `json:"physical_id,omitempty"`
	Action      string    `json:"action"`
	StateCode   int       `json:"state_code"`
	Description string    `json:"description"`
	DurationMS  int64     `json:"duration_ms"`
	RequestHex  string    `json:"request_hex,omitempty"`
	ResponseHex string    `json:"response_hex,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	DTUSN      string // optional
	DeviceType string // optional
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores audit entries.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository is a Repository over the request_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db. The schema must already
// be migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "req-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO request_log (id, dtu_sn, device_type, physical_id, action, state_code,
		  description, duration_ms, request_hex, response_hex, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DTUSN, e.DeviceType, nullableString(e.PhysicalID), e.Action, e.StateCode,
		e.Description, e.DurationMS, nullableString(e.RequestHex), nullableString(e.ResponseHex),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting request log: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conds []string
		args  []any
	)
	if filter.DTUSN != "" {
		conds = append(conds, "dtu_sn = ?")
		args = append(args, filter.DTUSN)
	}
	if filter.DeviceType != "" {
		conds = append(conds, "device_type = ?")
		args = append(args, filter.DeviceType)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM request_log " + where //nolint:gosec // placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting request log: %w", err)
	}

	query := `SELECT id, dtu_sn, device_type, physical_id, action, state_code, description,
	  duration_ms, request_hex, response_hex, created_at
	  FROM request_log ` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // placeholders only
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying request log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                       Entry
			physicalID, reqH, respH sql.NullString
			createdAt               string
		)
		if err := rows.Scan(&e.ID, &e.DTUSN, &e.DeviceType, &physicalID, &e.Action, &e.StateCode,
			&e.Description, &e.DurationMS, &reqH, &respH, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning request log: %w", err)
		}
		e.PhysicalID = physicalID.String
		e.RequestHex = reqH.String
		e.ResponseHex = respH.String
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing request log timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating request log: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Prune deletes entries created before the cutoff and returns how many
// were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM request_log WHERE created_at < ?",
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning request log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning request log: %w", err)
	}
	return n, nil
}
