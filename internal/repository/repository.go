package repository

import (
	"context"

	"toposync/internal/domain"
)

// Inventory is the persisted graph the reconcilers read and mutate.
// Implementations return errors wrapping domain.ErrNotFound,
// domain.ErrNotPermitted or domain.ErrInvalidArgument.
type Inventory interface {
	// Structure
	GetObjectChildren(ctx context.Context, className, id string) ([]domain.ObjectLight, error)
	GetObjectSpecialChildren(ctx context.Context, className, id string) ([]domain.ObjectLight, error)
	GetParent(ctx context.Context, className, id string) (*domain.ObjectLight, error)
	// GetFirstParentOfClass walks up the containment tree and returns the
	// first ancestor that is an instance of ancestorClass, or nil
	GetFirstParentOfClass(ctx context.Context, className, id, ancestorClass string) (*domain.ObjectLight, error)
	GetObject(ctx context.Context, className, id string) (*domain.Object, error)
	GetObjectLight(ctx context.Context, className, id string) (*domain.ObjectLight, error)
	IsSubclassOf(ctx context.Context, className, superClass string) (bool, error)

	// Mutation
	CreateObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error)
	CreateSpecialObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error)
	UpdateObject(ctx context.Context, className, id string, attrs map[string]string) error

	// Relationships
	CreateSpecialRelationship(ctx context.Context, aClass, aID, bClass, bID, name string, bidirectional bool) error
	GetSpecialAttribute(ctx context.Context, className, id, name string) ([]domain.ObjectLight, error)
	GetSpecialAttributes(ctx context.Context, className, id string) (map[string][]domain.ObjectLight, error)

	// Pools
	GetRootPools(ctx context.Context, className string, poolType int) ([]domain.Pool, error)
	GetPoolsInPool(ctx context.Context, poolID, className string) ([]domain.Pool, error)
	GetPoolItems(ctx context.Context, poolID string) ([]domain.ObjectLight, error)
	CreatePoolItem(ctx context.Context, poolID, className string, attrs map[string]string) (string, error)
}

// AuditLog records one entry per side effect
type AuditLog interface {
	CreateActivityLogEntry(ctx context.Context, actor string, activity domain.ActivityType, note string) error
}

// ConfigStore holds named configuration variables
type ConfigStore interface {
	GetConfigurationVariable(ctx context.Context, name string) (string, error)
	SetConfigurationVariable(ctx context.Context, name, value string) error
}

// SyncStore persists synchronization groups and their data sources
type SyncStore interface {
	CreateSyncGroup(ctx context.Context, name, providerID string) (int64, error)
	GetSyncGroup(ctx context.Context, id int64) (*domain.SynchronizationGroup, error)
	ListSyncGroups(ctx context.Context) ([]*domain.SynchronizationGroup, error)
	DeleteSyncGroup(ctx context.Context, id int64) error
	CreateDataSourceConfiguration(ctx context.Context, groupID int64, cfg *domain.DataSourceConfiguration) (int64, error)
	GetDataSourceConfiguration(ctx context.Context, id int64) (*domain.DataSourceConfiguration, error)
	UpdateDataSourceConfiguration(ctx context.Context, cfg *domain.DataSourceConfiguration) error
	DeleteDataSourceConfiguration(ctx context.Context, id int64) error
}

// Store bundles every persistence concern served by one backend
type Store interface {
	Inventory
	AuditLog
	ConfigStore
	SyncStore
	Close() error
}
