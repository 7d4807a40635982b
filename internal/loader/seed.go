// Package loader applies YAML inventory seeds. A seed describes classes,
// containment trees, IP pools, relationships, configuration variables and
// sync groups; applying it twice leaves the inventory unchanged.
package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"toposync/internal/domain"
)

// Seed is the YAML file structure
type Seed struct {
	Version       string            `yaml:"version"`
	Classes       []ClassYAML       `yaml:"classes,omitempty"`
	Variables     map[string]string `yaml:"variables,omitempty"`
	Objects       []ObjectYAML      `yaml:"objects,omitempty"`
	Pools         []PoolYAML        `yaml:"pools,omitempty"`
	Relationships []RelationYAML    `yaml:"relationships,omitempty"`
	SyncGroups    []SyncGroupYAML   `yaml:"sync_groups,omitempty"`
}

// ClassYAML declares a custom class
type ClassYAML struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
}

// ObjectYAML is an inventory object with its containment subtree
type ObjectYAML struct {
	// Key names the object inside the seed; defaults to Name
	Key        string            `yaml:"key,omitempty"`
	Class      string            `yaml:"class"`
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	Children   []ObjectYAML      `yaml:"children,omitempty"`
	// Special children hang off the object outside regular containment
	Special []ObjectYAML `yaml:"special,omitempty"`
}

// PoolYAML is a pool with its items and nested pools
type PoolYAML struct {
	Name  string       `yaml:"name"`
	Class string       `yaml:"class"`
	Type  int          `yaml:"type,omitempty"`
	Items []ObjectYAML `yaml:"items,omitempty"`
	Pools []PoolYAML   `yaml:"pools,omitempty"`
}

// RelationYAML relates two keyed objects
type RelationYAML struct {
	Name          string `yaml:"name"`
	A             string `yaml:"a"`
	B             string `yaml:"b"`
	Bidirectional bool   `yaml:"bidirectional,omitempty"`
}

// SyncGroupYAML is a sync group with its data sources
type SyncGroupYAML struct {
	Name        string           `yaml:"name"`
	Provider    string           `yaml:"provider"`
	DataSources []DataSourceYAML `yaml:"data_sources"`
}

// DataSourceYAML is a data source configuration. Device is an object key
// and fills deviceId and deviceClass.
type DataSourceYAML struct {
	Name       string            `yaml:"name"`
	Device     string            `yaml:"device,omitempty"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
}

func (o ObjectYAML) key() string {
	if o.Key != "" {
		return o.Key
	}
	return o.Name
}

// LoadSeed reads and validates a seed file
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses and validates a seed
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks that keys are unique and every reference resolves
func (s *Seed) Validate() error {
	var problems []string
	keys := make(map[string]string) // key -> class

	var walk func(path string, objs []ObjectYAML)
	walk = func(path string, objs []ObjectYAML) {
		for _, o := range objs {
			where := path + "/" + o.key()
			if o.Class == "" || o.Name == "" {
				problems = append(problems, where+": class and name are required")
			}
			if _, dup := keys[o.key()]; dup {
				problems = append(problems, where+": duplicate key "+o.key())
			}
			keys[o.key()] = o.Class
			walk(where, o.Children)
			walk(where, o.Special)
		}
	}
	walk("", s.Objects)

	var walkPools func(path string, pools []PoolYAML)
	walkPools = func(path string, pools []PoolYAML) {
		for _, p := range pools {
			where := path + "/" + p.Name
			if p.Name == "" || p.Class == "" {
				problems = append(problems, "pool "+where+": class and name are required")
			}
			walk("pool "+where, p.Items)
			walkPools(where, p.Pools)
		}
	}
	walkPools("", s.Pools)

	for _, c := range s.Classes {
		if c.Name == "" {
			problems = append(problems, "class without a name")
		}
	}
	for i, r := range s.Relationships {
		if r.Name == "" {
			problems = append(problems, fmt.Sprintf("relationship %d: name is required", i))
		}
		for _, end := range []string{r.A, r.B} {
			if _, ok := keys[end]; !ok {
				problems = append(problems, fmt.Sprintf("relationship %s: unknown object %q", r.Name, end))
			}
		}
	}
	for _, g := range s.SyncGroups {
		if g.Name == "" || g.Provider == "" {
			problems = append(problems, "sync group "+g.Name+": name and provider are required")
		}
		for _, ds := range g.DataSources {
			if ds.Name == "" {
				problems = append(problems, "sync group "+g.Name+": data source without a name")
			}
			if ds.Device == "" {
				continue
			}
			if _, ok := keys[ds.Device]; !ok {
				problems = append(problems, fmt.Sprintf("data source %s: unknown device %q", ds.Name, ds.Device))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid seed: %s: %w", strings.Join(problems, "; "), domain.ErrInvalidArgument)
	}
	return nil
}
