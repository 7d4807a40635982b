package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"toposync/internal/domain"
)

// ActivityEntry is one row of the audit log
type ActivityEntry struct {
	ID        int64               `json:"id"`
	Actor     string              `json:"actor"`
	Activity  domain.ActivityType `json:"activity"`
	Note      string              `json:"note"`
	CreatedAt time.Time           `json:"created_at"`
}

// CreateActivityLogEntry appends an audit entry
func (r *Repository) CreateActivityLogEntry(ctx context.Context, actor string, activity domain.ActivityType, note string) error {
	query, args, err := r.sb.Insert("activity_log").
		Columns("actor", "activity", "note", "created_at").
		Values(actor, int(activity), note, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}
	return nil
}

// ListActivityLog returns the most recent entries first
func (r *Repository) ListActivityLog(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query, args, err := r.sb.Select("id", "actor", "activity", "note", "created_at").
		From("activity_log").
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var activity int
		var note sql.NullString
		if err := rows.Scan(&e.ID, &e.Actor, &activity, &note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.Activity = domain.ActivityType(activity)
		e.Note = nullToString(note)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ============================================================================
// Configuration Variables
// ============================================================================

// GetConfigurationVariable returns a variable value
func (r *Repository) GetConfigurationVariable(ctx context.Context, name string) (string, error) {
	query, args, err := r.sb.Select("value").From("config_variables").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return "", fmt.Errorf("build query: %w", err)
	}

	var value string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("configuration variable %s: %w", name, domain.ErrNotFound)
		}
		return "", fmt.Errorf("failed to query configuration variable: %w", err)
	}
	return value, nil
}

// SetConfigurationVariable creates or replaces a variable
func (r *Repository) SetConfigurationVariable(ctx context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("variable name is required: %w", domain.ErrInvalidArgument)
	}
	query, args, err := r.sb.Insert("config_variables").
		Columns("name", "value", "updated_at").
		Values(name, value, time.Now().UTC()).
		Suffix("ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set configuration variable: %w", err)
	}
	return nil
}
