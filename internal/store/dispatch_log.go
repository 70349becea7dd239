// ABOUTME: Dispatch audit record entity and append/query methods.
// ABOUTME: Records who called which tool, the outcome, and how long it took.

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DispatchRecord is one audited tool call.
type DispatchRecord struct {
	ID        string        // UUID v4, assigned on append
	RequestID string        // dispatch correlation ID
	Tool      string        // namespaced tool name
	Realm     string        // caller realm, empty for anonymous
	TenantID  string        // caller tenant, empty if none
	UserID    string        // caller user, empty if none
	Success   bool          // call outcome
	Error     string        // envelope error text, empty on success
	Duration  time.Duration // handler wall time
	StartedAt time.Time     // when the call began
}

// DispatchFilter specifies filtering options for listing dispatch records.
type DispatchFilter struct {
	Tool       string     // exact tool name, empty for all
	Realm      string     // exact realm, empty for all
	FailedOnly bool       // only unsuccessful calls
	Since      *time.Time // records starting after this time
	Limit      int        // max records (default 100)
}

// AppendDispatch records one dispatch outcome. The record's ID is assigned
// here; the caller's copy is not mutated.
func (s *SQLiteStore) AppendDispatch(ctx context.Context, rec DispatchRecord) error {
	id := uuid.New().String()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_log (id, request_id, tool, realm, tenant_id, user_id, success, error, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.RequestID, rec.Tool, rec.Realm, rec.TenantID, rec.UserID,
		boolToInt(rec.Success), rec.Error, rec.Duration.Milliseconds(), rec.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending dispatch record: %w", err)
	}
	return nil
}

// ListDispatches returns audit records matching the filter, newest first.
func (s *SQLiteStore) ListDispatches(ctx context.Context, filter DispatchFilter) ([]DispatchRecord, error) {
	var conds []string
	var args []any

	if filter.Tool != "" {
		conds = append(conds, "tool = ?")
		args = append(args, filter.Tool)
	}
	if filter.Realm != "" {
		conds = append(conds, "realm = ?")
		args = append(args, filter.Realm)
	}
	if filter.FailedOnly {
		conds = append(conds, "success = 0")
	}
	if filter.Since != nil {
		conds = append(conds, "started_at > ?")
		args = append(args, filter.Since.UTC())
	}

	query := "SELECT id, request_id, tool, realm, tenant_id, user_id, success, error, duration_ms, started_at FROM dispatch_log"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC LIMIT ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dispatch log: %w", err)
	}
	defer rows.Close()

	var records []DispatchRecord
	for rows.Next() {
		var rec DispatchRecord
		var success int
		var durationMs int64
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Tool, &rec.Realm, &rec.TenantID,
			&rec.UserID, &success, &rec.Error, &durationMs, &rec.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning dispatch record: %w", err)
		}
		rec.Success = success != 0
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountDispatches returns total and failed call counts for one tool.
func (s *SQLiteStore) CountDispatches(ctx context.Context, tool string) (total, failed int64, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		FROM dispatch_log WHERE tool = ?`, tool)
	if err := row.Scan(&total, &failed); err != nil {
		return 0, 0, fmt.Errorf("counting dispatch records: %w", err)
	}
	return total, failed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
