package loader

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/rs/zerolog"

	"toposync/internal/domain"
	"toposync/internal/repository"
)

// Store is what applying a seed needs from the backend
type Store interface {
	repository.Inventory
	repository.ConfigStore
	repository.SyncStore
	CreateClass(ctx context.Context, name, parent string) error
	CreatePool(ctx context.Context, parentID, name, className string, poolType int) (string, error)
	FindObjectsByName(ctx context.Context, className, name string) ([]domain.ObjectLight, error)
}

// Stats counts what an apply created; Existing counts entries found in place
type Stats struct {
	Classes       int `json:"classes"`
	Objects       int `json:"objects"`
	Pools         int `json:"pools"`
	Relationships int `json:"relationships"`
	Variables     int `json:"variables"`
	Groups        int `json:"groups"`
	DataSources   int `json:"data_sources"`
	Existing      int `json:"existing"`
}

// Created is the number of new entries
func (s Stats) Created() int {
	return s.Classes + s.Objects + s.Pools + s.Relationships + s.Groups + s.DataSources
}

// Loader applies seeds to a store
type Loader struct {
	store Store
	log   zerolog.Logger
}

// New creates a loader
func New(store Store, log zerolog.Logger) *Loader {
	return &Loader{store: store, log: log.With().Str("component", "loader").Logger()}
}

// ApplyFile loads and applies a seed file
func (l *Loader) ApplyFile(ctx context.Context, path string) (Stats, error) {
	seed, err := LoadSeed(path)
	if err != nil {
		return Stats{}, err
	}
	stats, err := l.Apply(ctx, seed)
	if err != nil {
		return stats, fmt.Errorf("apply %s: %w", path, err)
	}
	l.log.Info().Str("path", path).Int("created", stats.Created()).Int("existing", stats.Existing).Msg("seed applied")
	return stats, nil
}

type applier struct {
	store Store
	stats Stats
	refs  map[string]domain.ObjectLight
}

// Apply creates whatever the seed names that the store lacks. Existing
// objects are matched by class and name under the same parent and get the
// seed attributes merged in; existing data sources get their parameters
// replaced.
func (l *Loader) Apply(ctx context.Context, seed *Seed) (Stats, error) {
	a := &applier{store: l.store, refs: make(map[string]domain.ObjectLight)}

	for _, c := range seed.Classes {
		switch err := l.store.CreateClass(ctx, c.Name, c.Parent); {
		case err == nil:
			a.stats.Classes++
		case errors.Is(err, domain.ErrConflict):
			a.stats.Existing++
		default:
			return a.stats, fmt.Errorf("class %s: %w", c.Name, err)
		}
	}

	for name, value := range seed.Variables {
		if err := l.store.SetConfigurationVariable(ctx, name, value); err != nil {
			return a.stats, err
		}
		a.stats.Variables++
	}

	for _, o := range seed.Objects {
		if err := a.object(ctx, o, nil, false); err != nil {
			return a.stats, err
		}
	}
	for _, p := range seed.Pools {
		if err := a.pool(ctx, p, ""); err != nil {
			return a.stats, err
		}
	}
	for _, r := range seed.Relationships {
		if err := a.relate(ctx, r); err != nil {
			return a.stats, err
		}
	}
	for _, g := range seed.SyncGroups {
		if err := a.group(ctx, g); err != nil {
			return a.stats, err
		}
	}
	return a.stats, nil
}

func (a *applier) object(ctx context.Context, o ObjectYAML, parent *domain.ObjectLight, special bool) error {
	existing, err := a.findObject(ctx, o, parent, special)
	if err != nil {
		return err
	}

	attrs := maps.Clone(o.Attributes)
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs[domain.AttrName] = o.Name

	var ref domain.ObjectLight
	if existing != nil {
		ref = *existing
		a.stats.Existing++
		if len(o.Attributes) > 0 {
			if err := a.store.UpdateObject(ctx, ref.ClassName, ref.ID, attrs); err != nil {
				return fmt.Errorf("update %s: %w", ref, err)
			}
		}
	} else {
		var parentClass, parentID string
		if parent != nil {
			parentClass, parentID = parent.ClassName, parent.ID
		}
		create := a.store.CreateObject
		if special {
			create = a.store.CreateSpecialObject
		}
		id, err := create(ctx, o.Class, parentClass, parentID, attrs)
		if err != nil {
			return fmt.Errorf("create %s %s: %w", o.Class, o.Name, err)
		}
		ref = domain.ObjectLight{ClassName: o.Class, ID: id, Name: o.Name}
		a.stats.Objects++
	}
	a.refs[o.key()] = ref

	for _, c := range o.Children {
		if err := a.object(ctx, c, &ref, false); err != nil {
			return err
		}
	}
	for _, c := range o.Special {
		if err := a.object(ctx, c, &ref, true); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) findObject(ctx context.Context, o ObjectYAML, parent *domain.ObjectLight, special bool) (*domain.ObjectLight, error) {
	var candidates []domain.ObjectLight
	var err error
	switch {
	case parent == nil:
		candidates, err = a.store.FindObjectsByName(ctx, o.Class, o.Name)
		if err != nil {
			return nil, err
		}
		// only roots count; objects of that name may live deeper in the tree
		roots := candidates[:0]
		for _, c := range candidates {
			p, err := a.store.GetParent(ctx, c.ClassName, c.ID)
			if err != nil {
				return nil, err
			}
			if p == nil {
				roots = append(roots, c)
			}
		}
		candidates = roots
	case special:
		candidates, err = a.store.GetObjectSpecialChildren(ctx, parent.ClassName, parent.ID)
	default:
		candidates, err = a.store.GetObjectChildren(ctx, parent.ClassName, parent.ID)
	}
	if err != nil {
		return nil, err
	}
	return match(candidates, o), nil
}

func match(candidates []domain.ObjectLight, o ObjectYAML) *domain.ObjectLight {
	for i := range candidates {
		if candidates[i].ClassName == o.Class && candidates[i].Name == o.Name {
			return &candidates[i]
		}
	}
	return nil
}

func (a *applier) pool(ctx context.Context, p PoolYAML, parentID string) error {
	var siblings []domain.Pool
	var err error
	if parentID == "" {
		siblings, err = a.store.GetRootPools(ctx, p.Class, p.Type)
	} else {
		siblings, err = a.store.GetPoolsInPool(ctx, parentID, p.Class)
	}
	if err != nil {
		return fmt.Errorf("pool %s: %w", p.Name, err)
	}

	var poolID string
	for _, s := range siblings {
		if s.Name == p.Name {
			poolID = s.ID
			a.stats.Existing++
			break
		}
	}
	if poolID == "" {
		if poolID, err = a.store.CreatePool(ctx, parentID, p.Name, p.Class, p.Type); err != nil {
			return fmt.Errorf("pool %s: %w", p.Name, err)
		}
		a.stats.Pools++
	}

	items, err := a.store.GetPoolItems(ctx, poolID)
	if err != nil {
		return err
	}
	for _, item := range p.Items {
		if len(item.Children) > 0 || len(item.Special) > 0 {
			return fmt.Errorf("pool item %s: pool items cannot have children: %w", item.Name, domain.ErrInvalidArgument)
		}
		if found := match(items, item); found != nil {
			a.refs[item.key()] = *found
			a.stats.Existing++
			continue
		}
		attrs := maps.Clone(item.Attributes)
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[domain.AttrName] = item.Name
		id, err := a.store.CreatePoolItem(ctx, poolID, item.Class, attrs)
		if err != nil {
			return fmt.Errorf("pool item %s: %w", item.Name, err)
		}
		a.refs[item.key()] = domain.ObjectLight{ClassName: item.Class, ID: id, Name: item.Name}
		a.stats.Objects++
	}

	for _, nested := range p.Pools {
		if err := a.pool(ctx, nested, poolID); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) relate(ctx context.Context, r RelationYAML) error {
	left, right := a.refs[r.A], a.refs[r.B]
	err := a.store.CreateSpecialRelationship(ctx, left.ClassName, left.ID, right.ClassName, right.ID, r.Name, r.Bidirectional)
	switch {
	case err == nil:
		a.stats.Relationships++
	case errors.Is(err, domain.ErrConflict):
		a.stats.Existing++
	default:
		return fmt.Errorf("relate %s to %s: %w", left, right, err)
	}
	return nil
}

func (a *applier) group(ctx context.Context, g SyncGroupYAML) error {
	groups, err := a.store.ListSyncGroups(ctx)
	if err != nil {
		return err
	}
	var current *domain.SynchronizationGroup
	for _, existing := range groups {
		if existing.Name == g.Name {
			current = existing
			break
		}
	}
	if current == nil {
		id, err := a.store.CreateSyncGroup(ctx, g.Name, g.Provider)
		if err != nil {
			return err
		}
		current = &domain.SynchronizationGroup{ID: id, Name: g.Name, ProviderID: g.Provider}
		a.stats.Groups++
	} else {
		a.stats.Existing++
	}

	byName := make(map[string]*domain.DataSourceConfiguration, len(current.Configurations))
	for _, cfg := range current.Configurations {
		byName[cfg.Name] = cfg
	}
	for _, ds := range g.DataSources {
		params := maps.Clone(ds.Parameters)
		if params == nil {
			params = make(map[string]string)
		}
		if ds.Device != "" {
			dev := a.refs[ds.Device]
			params[domain.ParamDeviceID] = dev.ID
			params[domain.ParamDeviceClass] = dev.ClassName
		}

		if cfg, ok := byName[ds.Name]; ok {
			cfg.Parameters = params
			if err := a.store.UpdateDataSourceConfiguration(ctx, cfg); err != nil {
				return err
			}
			a.stats.Existing++
			continue
		}
		if _, err := a.store.CreateDataSourceConfiguration(ctx, current.ID, &domain.DataSourceConfiguration{
			Name:       ds.Name,
			Parameters: params,
		}); err != nil {
			return err
		}
		a.stats.DataSources++
	}
	return nil
}
