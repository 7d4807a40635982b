package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"toposync/internal/domain"
)

func (r *Repository) queryPools(ctx context.Context, b sq.SelectBuilder) ([]domain.Pool, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pool query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		var row poolRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, row.toDomain())
	}
	return pools, rows.Err()
}

func (r *Repository) getPool(ctx context.Context, id string) (*domain.Pool, error) {
	query, args, err := r.sb.Select(poolColumns...).From("pools").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pool query: %w", err)
	}

	var row poolRow
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(row.scanArgs()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pool %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query pool: %w", err)
	}
	pool := row.toDomain()
	return &pool, nil
}

// CreatePool creates a pool. An empty parentID creates a root pool.
func (r *Repository) CreatePool(ctx context.Context, parentID, name, className string, poolType int) (string, error) {
	if !r.classExists(className) {
		return "", fmt.Errorf("class %s: %w", className, domain.ErrInvalidArgument)
	}
	if parentID != "" {
		if _, err := r.getPool(ctx, parentID); err != nil {
			return "", err
		}
	}

	id := uuid.NewString()
	query, args, err := r.sb.Insert("pools").
		Columns(poolColumns...).
		Values(id, name, className, poolType, stringToNull(parentID)).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return "", mapConstraintError(err, "create pool "+name)
	}
	return id, nil
}

// GetRootPools returns the top level pools of a class and type
func (r *Repository) GetRootPools(ctx context.Context, className string, poolType int) ([]domain.Pool, error) {
	return r.queryPools(ctx, r.sb.Select(poolColumns...).
		From("pools").
		Where(sq.Eq{"parent_id": nil, "class_name": className, "type": poolType}).
		OrderBy("rowid"))
}

// GetPoolsInPool returns the nested pools of a class
func (r *Repository) GetPoolsInPool(ctx context.Context, poolID, className string) ([]domain.Pool, error) {
	if _, err := r.getPool(ctx, poolID); err != nil {
		return nil, err
	}
	return r.queryPools(ctx, r.sb.Select(poolColumns...).
		From("pools").
		Where(sq.Eq{"parent_id": poolID, "class_name": className}).
		OrderBy("rowid"))
}

// GetPoolItems returns the objects held by a pool
func (r *Repository) GetPoolItems(ctx context.Context, poolID string) ([]domain.ObjectLight, error) {
	if _, err := r.getPool(ctx, poolID); err != nil {
		return nil, err
	}
	return r.queryObjects(ctx, r.sb.Select(objectColumns...).
		From("objects").
		Where(sq.Eq{"pool_id": poolID}).
		OrderBy("rowid"))
}

// CreatePoolItem creates an object inside a pool
func (r *Repository) CreatePoolItem(ctx context.Context, poolID, className string, attrs map[string]string) (string, error) {
	if _, err := r.getPool(ctx, poolID); err != nil {
		return "", err
	}
	return r.insertObject(ctx, newObject{className: className, poolID: poolID, attrs: attrs})
}
