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

// CreateSyncGroup persists a new synchronization group
func (r *Repository) CreateSyncGroup(ctx context.Context, name, providerID string) (int64, error) {
	if name == "" || providerID == "" {
		return 0, fmt.Errorf("group name and provider are required: %w", domain.ErrInvalidArgument)
	}
	query, args, err := r.sb.Insert("sync_groups").
		Columns("name", "provider_id", "created_at").
		Values(name, providerID, time.Now().UTC()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapConstraintError(err, "create sync group "+name)
	}
	return res.LastInsertId()
}

func (r *Repository) groupHeader(ctx context.Context, id int64) (*domain.SynchronizationGroup, error) {
	query, args, err := r.sb.Select("id", "name", "provider_id").From("sync_groups").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var g domain.SynchronizationGroup
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&g.ID, &g.Name, &g.ProviderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sync group %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query sync group: %w", err)
	}
	return &g, nil
}

// GetSyncGroup returns a group with its configurations in order
func (r *Repository) GetSyncGroup(ctx context.Context, id int64) (*domain.SynchronizationGroup, error) {
	g, err := r.groupHeader(ctx, id)
	if err != nil {
		return nil, err
	}
	cfgs, err := r.queryDataSources(ctx, r.sb.Select(dataSourceColumns...).
		From("data_sources").
		Where(sq.Eq{"group_id": id}).
		OrderBy("position", "id"))
	if err != nil {
		return nil, err
	}
	g.Configurations = cfgs
	return g, nil
}

// ListSyncGroups returns every group with its configurations
func (r *Repository) ListSyncGroups(ctx context.Context) ([]*domain.SynchronizationGroup, error) {
	query, args, err := r.sb.Select("id").From("sync_groups").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync groups: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan sync group: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups := make([]*domain.SynchronizationGroup, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetSyncGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// DeleteSyncGroup removes a group and its configurations
func (r *Repository) DeleteSyncGroup(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, "sync_groups", id)
}

// ============================================================================
// Data Source Configurations
// ============================================================================

var dataSourceColumns = []string{"id", "name", "parameters", "created_at"}

func (r *Repository) queryDataSources(ctx context.Context, b sq.SelectBuilder) ([]*domain.DataSourceConfiguration, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query data sources: %w", err)
	}
	defer rows.Close()

	var cfgs []*domain.DataSourceConfiguration
	for rows.Next() {
		var cfg domain.DataSourceConfiguration
		var params sql.NullString
		if err := rows.Scan(&cfg.ID, &cfg.Name, &params, &cfg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", err)
		}
		stored, err := unmarshalAttributes(params)
		if err != nil {
			return nil, fmt.Errorf("unmarshal parameters of %d: %w", cfg.ID, err)
		}
		if cfg.Parameters, err = r.sealer.OpenParameters(stored); err != nil {
			return nil, fmt.Errorf("data source %d: %w", cfg.ID, err)
		}
		cfgs = append(cfgs, &cfg)
	}
	return cfgs, rows.Err()
}

// CreateDataSourceConfiguration appends a configuration to a group
func (r *Repository) CreateDataSourceConfiguration(ctx context.Context, groupID int64, cfg *domain.DataSourceConfiguration) (int64, error) {
	if cfg == nil || cfg.Name == "" {
		return 0, fmt.Errorf("data source name is required: %w", domain.ErrInvalidArgument)
	}
	if _, err := r.groupHeader(ctx, groupID); err != nil {
		return 0, err
	}

	var position int
	countSQL, countArgs, err := r.sb.Select("COUNT(*)").From("data_sources").Where(sq.Eq{"group_id": groupID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&position); err != nil {
		return 0, fmt.Errorf("failed to count data sources: %w", err)
	}

	params, err := r.sealParams(cfg.Parameters)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	query, args, err := r.sb.Insert("data_sources").
		Columns("group_id", "name", "parameters", "position", "created_at").
		Values(groupID, cfg.Name, params, position, now).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapConstraintError(err, "create data source "+cfg.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	cfg.ID = id
	cfg.CreatedAt = now
	return id, nil
}

// GetDataSourceConfiguration returns one configuration
func (r *Repository) GetDataSourceConfiguration(ctx context.Context, id int64) (*domain.DataSourceConfiguration, error) {
	cfgs, err := r.queryDataSources(ctx, r.sb.Select(dataSourceColumns...).From("data_sources").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("data source %d: %w", id, domain.ErrNotFound)
	}
	return cfgs[0], nil
}

// UpdateDataSourceConfiguration replaces the name and parameters
func (r *Repository) UpdateDataSourceConfiguration(ctx context.Context, cfg *domain.DataSourceConfiguration) error {
	params, err := r.sealParams(cfg.Parameters)
	if err != nil {
		return err
	}
	query, args, err := r.sb.Update("data_sources").
		Set("name", cfg.Name).
		Set("parameters", params).
		Where(sq.Eq{"id": cfg.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update data source %d: %w", cfg.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("data source %d: %w", cfg.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteDataSourceConfiguration removes a configuration
func (r *Repository) DeleteDataSourceConfiguration(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, "data_sources", id)
}

func (r *Repository) sealParams(params map[string]string) (sql.NullString, error) {
	sealed, err := r.sealer.SealParameters(params)
	if err != nil {
		return sql.NullString{}, err
	}
	return marshalToNull(sealed)
}

func (r *Repository) deleteByID(ctx context.Context, table string, id int64) error {
	query, args, err := r.sb.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, domain.ErrNotFound)
	}
	return nil
}
