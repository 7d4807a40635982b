package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"toposync/internal/domain"
)

// ============================================================================
// Object Reads
// ============================================================================

// getObjectRow loads a single object row, checking its class
func (r *Repository) getObjectRow(ctx context.Context, className, id string) (*objectRow, error) {
	query, args, err := r.sb.Select(objectColumns...).
		From("objects").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build object query: %w", err)
	}

	var row objectRow
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(row.scanArgs()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("object %s of class %s: %w", id, className, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query object: %w", err)
	}
	if className != "" && row.ClassName != className {
		return nil, fmt.Errorf("object %s is a %s, not a %s: %w", id, row.ClassName, className, domain.ErrNotFound)
	}
	return &row, nil
}

// queryObjects runs an object query and returns the light references
func (r *Repository) queryObjects(ctx context.Context, b sq.SelectBuilder) ([]domain.ObjectLight, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	var out []domain.ObjectLight
	for rows.Next() {
		var row objectRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		out = append(out, row.light())
	}
	return out, rows.Err()
}

func (r *Repository) children(ctx context.Context, className, id string, special bool) ([]domain.ObjectLight, error) {
	if _, err := r.getObjectRow(ctx, className, id); err != nil {
		return nil, err
	}
	return r.queryObjects(ctx, r.sb.Select(objectColumns...).
		From("objects").
		Where(sq.Eq{"parent_id": id, "special": boolToInt(special)}).
		OrderBy("rowid"))
}

// GetObjectChildren returns the regular children of an object
func (r *Repository) GetObjectChildren(ctx context.Context, className, id string) ([]domain.ObjectLight, error) {
	return r.children(ctx, className, id, false)
}

// GetObjectSpecialChildren returns the special children of an object
func (r *Repository) GetObjectSpecialChildren(ctx context.Context, className, id string) ([]domain.ObjectLight, error) {
	return r.children(ctx, className, id, true)
}

// GetParent returns the containment parent, or nil for roots and pool items
func (r *Repository) GetParent(ctx context.Context, className, id string) (*domain.ObjectLight, error) {
	row, err := r.getObjectRow(ctx, className, id)
	if err != nil {
		return nil, err
	}
	ref := row.parent()
	if ref == nil {
		return nil, nil
	}
	parent, err := r.getObjectRow(ctx, ref.ClassName, ref.ID)
	if err != nil {
		return nil, err
	}
	light := parent.light()
	return &light, nil
}

// GetFirstParentOfClass walks up the containment tree
func (r *Repository) GetFirstParentOfClass(ctx context.Context, className, id, ancestorClass string) (*domain.ObjectLight, error) {
	visited := map[string]bool{id: true}
	cur := domain.ObjectLight{ClassName: className, ID: id}
	for {
		parent, err := r.GetParent(ctx, cur.ClassName, cur.ID)
		if err != nil {
			return nil, err
		}
		if parent == nil || visited[parent.ID] {
			return nil, nil
		}
		visited[parent.ID] = true

		ok, err := r.IsSubclassOf(ctx, parent.ClassName, ancestorClass)
		if err != nil {
			return nil, err
		}
		if ok {
			return parent, nil
		}
		cur = *parent
	}
}

// GetObject returns an object with its attributes
func (r *Repository) GetObject(ctx context.Context, className, id string) (*domain.Object, error) {
	row, err := r.getObjectRow(ctx, className, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// GetObjectLight returns the light reference of an object
func (r *Repository) GetObjectLight(ctx context.Context, className, id string) (*domain.ObjectLight, error) {
	row, err := r.getObjectRow(ctx, className, id)
	if err != nil {
		return nil, err
	}
	light := row.light()
	return &light, nil
}

// FindObjectsByName returns objects of a class with the given name. Used by
// the seed loader and the CLI, not by the reconcilers.
func (r *Repository) FindObjectsByName(ctx context.Context, className, name string) ([]domain.ObjectLight, error) {
	return r.queryObjects(ctx, r.sb.Select(objectColumns...).
		From("objects").
		Where(sq.Eq{"class_name": className, "name": name}).
		OrderBy("rowid"))
}

// ============================================================================
// Object Writes
// ============================================================================

type newObject struct {
	className   string
	parentClass string
	parentID    string
	special     bool
	poolID      string
	attrs       map[string]string
}

func (r *Repository) insertObject(ctx context.Context, o newObject) (string, error) {
	if !r.classExists(o.className) {
		return "", fmt.Errorf("class %s: %w", o.className, domain.ErrInvalidArgument)
	}
	if o.parentID != "" {
		if _, err := r.getObjectRow(ctx, o.parentClass, o.parentID); err != nil {
			return "", fmt.Errorf("parent: %w", err)
		}
	}

	attrs := copyAttributes(o.attrs)
	name := attrs[domain.AttrName]
	delete(attrs, domain.AttrName)

	attrsJSON, err := marshalToNull(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attributes: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	query, args, err := r.sb.Insert("objects").
		Columns(objectColumns...).
		Values(id, o.className, name, stringToNull(o.parentClass), stringToNull(o.parentID),
			boolToInt(o.special), stringToNull(o.poolID), attrsJSON, now, now).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return "", mapConstraintError(err, "create "+o.className)
	}
	return id, nil
}

// CreateObject creates a regular child of parent. An empty parentID creates a
// root object.
func (r *Repository) CreateObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error) {
	return r.insertObject(ctx, newObject{
		className:   className,
		parentClass: parentClass,
		parentID:    parentID,
		attrs:       attrs,
	})
}

// CreateSpecialObject creates a special child of parent. An empty parentID
// creates a free standing special object such as a logical link.
func (r *Repository) CreateSpecialObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error) {
	return r.insertObject(ctx, newObject{
		className:   className,
		parentClass: parentClass,
		parentID:    parentID,
		special:     true,
		attrs:       attrs,
	})
}

// UpdateObject merges attrs into the stored attributes
func (r *Repository) UpdateObject(ctx context.Context, className, id string, attrs map[string]string) error {
	row, err := r.getObjectRow(ctx, className, id)
	if err != nil {
		return err
	}

	current, err := unmarshalAttributes(row.AttributesJSON)
	if err != nil {
		return fmt.Errorf("unmarshal attributes: %w", err)
	}
	name := row.Name
	for k, v := range attrs {
		if k == domain.AttrName {
			name = v
			continue
		}
		current[k] = v
	}

	attrsJSON, err := marshalToNull(current)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	query, args, err := r.sb.Update("objects").
		Set("name", name).
		Set("attributes", attrsJSON).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update object %s: %w", id, err)
	}
	return nil
}

// ============================================================================
// Relationships
// ============================================================================

// CreateSpecialRelationship relates two objects under a relationship name.
// Lookups are symmetric; bidirectional is recorded for reporting.
func (r *Repository) CreateSpecialRelationship(ctx context.Context, aClass, aID, bClass, bID, name string, bidirectional bool) error {
	if name == "" {
		return fmt.Errorf("relationship name is required: %w", domain.ErrInvalidArgument)
	}
	if aID == bID {
		return fmt.Errorf("object %s cannot be related to itself: %w", aID, domain.ErrNotPermitted)
	}
	if _, err := r.getObjectRow(ctx, aClass, aID); err != nil {
		return err
	}
	if _, err := r.getObjectRow(ctx, bClass, bID); err != nil {
		return err
	}

	query, args, err := r.sb.Insert("relationships").
		Columns("name", "a_class", "a_id", "b_class", "b_id", "bidirectional", "created_at").
		Values(name, aClass, aID, bClass, bID, boolToInt(bidirectional), time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapConstraintError(err, "relate "+name)
	}
	return nil
}

// relatedQuery selects the far endpoint of every relationship touching id
func (r *Repository) relatedQuery(id string) sq.SelectBuilder {
	cols := append([]string{"r.name"}, prefixed("o", objectColumns)...)
	return r.sb.Select(cols...).
		From("relationships r").
		Join("objects o ON o.id = CASE WHEN r.a_id = ? THEN r.b_id ELSE r.a_id END", id).
		Where(sq.Or{sq.Eq{"r.a_id": id}, sq.Eq{"r.b_id": id}}).
		OrderBy("r.id")
}

func (r *Repository) related(ctx context.Context, b sq.SelectBuilder) (map[string][]domain.ObjectLight, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.ObjectLight)
	for rows.Next() {
		var relName string
		var row objectRow
		if err := rows.Scan(append([]interface{}{&relName}, row.scanArgs()...)...); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		out[relName] = append(out[relName], row.light())
	}
	return out, rows.Err()
}

// GetSpecialAttribute returns the objects related to an object by name
func (r *Repository) GetSpecialAttribute(ctx context.Context, className, id, name string) ([]domain.ObjectLight, error) {
	if _, err := r.getObjectRow(ctx, className, id); err != nil {
		return nil, err
	}
	byName, err := r.related(ctx, r.relatedQuery(id).Where(sq.Eq{"r.name": name}))
	if err != nil {
		return nil, err
	}
	return byName[name], nil
}

// GetSpecialAttributes returns every relationship of an object, by name
func (r *Repository) GetSpecialAttributes(ctx context.Context, className, id string) (map[string][]domain.ObjectLight, error) {
	if _, err := r.getObjectRow(ctx, className, id); err != nil {
		return nil, err
	}
	return r.related(ctx, r.relatedQuery(id))
}
