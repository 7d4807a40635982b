package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"toposync/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// boolToInt stores booleans the way SQLite expects them
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalAttributes decodes a nullable JSON object into a string map
func unmarshalAttributes(ns sql.NullString) (map[string]string, error) {
	attrs := make(map[string]string)
	if !ns.Valid || ns.String == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(ns.String), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// marshalToNull marshals a string map to nullable JSON
// Returns empty NullString for nil or empty maps
func marshalToNull(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// copyAttributes returns a copy the caller may mutate
func copyAttributes(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// ============================================================================
// Error Mapping
// ============================================================================

// mapConstraintError turns driver constraint failures into domain errors
func mapConstraintError(err error, what string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %w", what, domain.ErrConflict)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to the objects table:
// 1. Add field to objectRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update objectColumns - APPEND to end
// 4. Update toDomain() to map the new field
// 5. Add an ALTER TABLE step in sqlite.go migrate()
//
// CRITICAL: Column order must match between objectColumns and scanArgs().

// ============================================================================
// Object Row Scanner
// ============================================================================

// objectRow holds all columns from an object query for scanning
type objectRow struct {
	ID             string
	ClassName      string
	Name           string
	ParentClass    sql.NullString
	ParentID       sql.NullString
	Special        sql.NullInt64
	PoolID         sql.NullString
	AttributesJSON sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match objectColumns order exactly:
// id, class_name, name, parent_class, parent_id, special, pool_id,
// attributes, created_at, updated_at
func (r *objectRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,             // 1
		&r.ClassName,      // 2
		&r.Name,           // 3
		&r.ParentClass,    // 4
		&r.ParentID,       // 5
		&r.Special,        // 6
		&r.PoolID,         // 7
		&r.AttributesJSON, // 8
		&r.CreatedAt,      // 9
		&r.UpdatedAt,      // 10
	}
}

// light converts the scanned row to a domain.ObjectLight
func (r *objectRow) light() domain.ObjectLight {
	return domain.ObjectLight{ClassName: r.ClassName, ID: r.ID, Name: r.Name}
}

// parent returns the containment parent, nil for roots and pool items
func (r *objectRow) parent() *domain.ObjectLight {
	if !r.ParentID.Valid {
		return nil
	}
	return &domain.ObjectLight{ClassName: nullToString(r.ParentClass), ID: r.ParentID.String}
}

// toDomain converts the scanned row to a domain.Object
func (r *objectRow) toDomain() (*domain.Object, error) {
	attrs, err := unmarshalAttributes(r.AttributesJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	attrs[domain.AttrName] = r.Name
	return &domain.Object{ObjectLight: r.light(), Attributes: attrs}, nil
}

// objectColumns is the SELECT column list for object queries
var objectColumns = []string{
	"id", "class_name", "name", "parent_class", "parent_id", "special",
	"pool_id", "attributes", "created_at", "updated_at",
}

// prefixed qualifies a column list with a table alias
func prefixed(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}

// ============================================================================
// Pool Row Scanner
// ============================================================================

// poolRow holds all columns from a pool query for scanning
type poolRow struct {
	ID        string
	Name      string
	ClassName string
	Type      int
	ParentID  sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match poolColumns order exactly: id, name, class_name, type, parent_id
func (r *poolRow) scanArgs() []interface{} {
	return []interface{}{&r.ID, &r.Name, &r.ClassName, &r.Type, &r.ParentID}
}

func (r *poolRow) toDomain() domain.Pool {
	return domain.Pool{ID: r.ID, Name: r.Name, ClassName: r.ClassName, Type: r.Type}
}

var poolColumns = []string{"id", "name", "class_name", "type", "parent_id"}
