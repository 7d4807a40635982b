package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"toposync/internal/domain"
	"toposync/internal/repository"
	"toposync/internal/secrets"
)

var _ repository.Store = (*Repository)(nil)

// builtinClasses is the class hierarchy every fresh database starts with,
// listed parents first
var builtinClasses = []struct{ name, parent string }{
	{domain.ClassInventoryObject, ""},
	{domain.ClassGenericLocation, domain.ClassInventoryObject},
	{"Country", domain.ClassGenericLocation},
	{domain.ClassCity, domain.ClassGenericLocation},
	{"Building", domain.ClassGenericLocation},
	{domain.ClassGenericCommElement, domain.ClassInventoryObject},
	{domain.ClassRouter, domain.ClassGenericCommElement},
	{domain.ClassSwitch, domain.ClassGenericCommElement},
	{domain.ClassExternalEquipment, domain.ClassGenericCommElement},
	{domain.ClassGenericPort, domain.ClassInventoryObject},
	{domain.ClassElectricalPort, domain.ClassGenericPort},
	{domain.ClassSFPPort, domain.ClassGenericPort},
	{domain.ClassOpticalPort, domain.ClassGenericPort},
	{domain.ClassVirtualPort, domain.ClassGenericPort},
	{domain.ClassMPLSTunnel, domain.ClassGenericPort},
	{domain.ClassProvider, domain.ClassInventoryObject},
	{domain.ClassBGPPeer, domain.ClassInventoryObject},
	{"GenericLogicalConnection", domain.ClassInventoryObject},
	{domain.ClassBGPLink, "GenericLogicalConnection"},
	{domain.ClassGenericSubnet, domain.ClassInventoryObject},
	{domain.ClassSubnetIPv4, domain.ClassGenericSubnet},
	{domain.ClassSubnetIPv6, domain.ClassGenericSubnet},
	{domain.ClassIPAddress, domain.ClassInventoryObject},
}

// Repository implements the repository interfaces on SQLite
type Repository struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	sealer *secrets.Sealer
	log    zerolog.Logger

	classMu sync.RWMutex
	classes map[string]string // class -> parent class
}

// Option configures a Repository
type Option func(*Repository)

// WithSealer seals sensitive data source parameters at rest
func WithSealer(s *secrets.Sealer) Option {
	return func(r *Repository) { r.sealer = s }
}

// WithLogger sets the repository logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *Repository) { r.log = l }
}

// New opens (or creates) the database at dbPath and migrates it
func New(dbPath string, opts ...Option) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers, which SQLite does anyway
	db.SetMaxOpenConns(1)

	repo := &Repository{
		db:      db,
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Question),
		log:     zerolog.Nop(),
		classes: make(map[string]string),
	}
	for _, opt := range opts {
		opt(repo)
	}

	if err := repo.configure(dbPath); err != nil {
		db.Close()
		return nil, err
	}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := repo.loadClasses(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load classes: %w", err)
	}

	repo.log.Debug().Str("path", dbPath).Int("classes", len(repo.classes)).Msg("database ready")
	return repo, nil
}

func (r *Repository) configure(dbPath string) error {
	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"}
	if dbPath != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := r.db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classes (
		name TEXT PRIMARY KEY,
		parent TEXT
	);

	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		class_name TEXT NOT NULL,
		type INTEGER NOT NULL DEFAULT 0,
		parent_id TEXT REFERENCES pools(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS objects (
		id TEXT PRIMARY KEY,
		class_name TEXT NOT NULL REFERENCES classes(name),
		name TEXT NOT NULL DEFAULT '',
		parent_class TEXT,
		parent_id TEXT REFERENCES objects(id) ON DELETE CASCADE,
		special INTEGER NOT NULL DEFAULT 0,
		pool_id TEXT REFERENCES pools(id) ON DELETE CASCADE,
		attributes JSON,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		a_class TEXT NOT NULL,
		a_id TEXT NOT NULL REFERENCES objects(id) ON DELETE CASCADE,
		b_class TEXT NOT NULL,
		b_id TEXT NOT NULL REFERENCES objects(id) ON DELETE CASCADE,
		bidirectional INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE (name, a_id, b_id)
	);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor TEXT NOT NULL,
		activity INTEGER NOT NULL,
		note TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS config_variables (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		provider_id TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS data_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL REFERENCES sync_groups(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		parameters JSON,
		position INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_objects_parent ON objects(parent_id, special);
	CREATE INDEX IF NOT EXISTS idx_objects_pool ON objects(pool_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_a ON relationships(a_id, name);
	CREATE INDEX IF NOT EXISTS idx_relationships_b ON relationships(b_id, name);
	CREATE INDEX IF NOT EXISTS idx_pools_parent ON pools(parent_id);
	CREATE INDEX IF NOT EXISTS idx_data_sources_group ON data_sources(group_id);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return err
	}

	for _, c := range builtinClasses {
		if _, err := r.db.Exec(`INSERT OR IGNORE INTO classes (name, parent) VALUES (?, ?)`,
			c.name, stringToNull(c.parent)); err != nil {
			return fmt.Errorf("seed class %s: %w", c.name, err)
		}
	}
	return nil
}

// Close releases the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// ============================================================================
// Class Hierarchy
// ============================================================================

func (r *Repository) loadClasses(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT name, parent FROM classes`)
	if err != nil {
		return err
	}
	defer rows.Close()

	classes := make(map[string]string)
	for rows.Next() {
		var name string
		var parent sql.NullString
		if err := rows.Scan(&name, &parent); err != nil {
			return err
		}
		classes[name] = nullToString(parent)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	r.classMu.Lock()
	r.classes = classes
	r.classMu.Unlock()
	return nil
}

// CreateClass registers a class under a parent class
func (r *Repository) CreateClass(ctx context.Context, name, parent string) error {
	if name == "" {
		return fmt.Errorf("class name is required: %w", domain.ErrInvalidArgument)
	}
	if parent != "" && !r.classExists(parent) {
		return fmt.Errorf("parent class %s: %w", parent, domain.ErrNotFound)
	}

	if _, err := r.db.ExecContext(ctx, `INSERT INTO classes (name, parent) VALUES (?, ?)`,
		name, stringToNull(parent)); err != nil {
		return mapConstraintError(err, "create class "+name)
	}

	r.classMu.Lock()
	r.classes[name] = parent
	r.classMu.Unlock()
	return nil
}

func (r *Repository) classExists(name string) bool {
	r.classMu.RLock()
	defer r.classMu.RUnlock()
	_, ok := r.classes[name]
	return ok
}

// IsSubclassOf reports whether className equals superClass or inherits from it
func (r *Repository) IsSubclassOf(ctx context.Context, className, superClass string) (bool, error) {
	r.classMu.RLock()
	defer r.classMu.RUnlock()

	if _, ok := r.classes[className]; !ok {
		return false, fmt.Errorf("class %s: %w", className, domain.ErrNotFound)
	}

	seen := make(map[string]bool)
	for cur := className; cur != "" && !seen[cur]; cur = r.classes[cur] {
		if cur == superClass {
			return true, nil
		}
		seen[cur] = true
	}
	return false, nil
}
