package model

import (
	"fmt"
	"io/fs"
	"sort"
	"sync/atomic"

	"GistAPI/internal/apperr"
)

// Snapshot is an immutable, fully linked set of schemas. It is safe for
// unsynchronized concurrent reads.
type Snapshot struct {
	models   map[string]*Model
	byPlural map[string]*Model
	names    []string
	version  string
}

var current atomic.Pointer[Snapshot]

// Build loads, links and validates the schema definitions of fsys.
func Build(fsys fs.FS) (*Snapshot, error) {
	defs, err := loadDefinitions(fsys)
	if err != nil {
		return nil, fmt.Errorf("load error: %w", err)
	}

	s := &Snapshot{
		models:   make(map[string]*Model, len(defs)),
		byPlural: make(map[string]*Model, len(defs)),
	}
	plain := make(map[string]any, len(defs))
	for _, d := range defs {
		s.models[d.name] = d.model
		s.names = append(s.names, d.name)
		plain[d.name] = d.plain
	}
	sort.Strings(s.names)

	if err := linkModels(s); err != nil {
		return nil, fmt.Errorf("link error: %w", err)
	}
	if err := validatePresets(s); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	for _, name := range s.names {
		m := s.models[name]
		if m.Plural == "" {
			continue
		}
		if other, dup := s.byPlural[m.Plural]; dup {
			return nil, fmt.Errorf("validation error: plural '%s' used by '%s' and '%s'", m.Plural, other.Name, name)
		}
		s.byPlural[m.Plural] = m
	}

	s.version, err = definitionsVersion(plain)
	if err != nil {
		return nil, fmt.Errorf("version hash: %w", err)
	}
	return s, nil
}

// InitRegistry builds the registry from fsys and makes it current.
func InitRegistry(fsys fs.FS) error {
	s, err := Build(fsys)
	if err != nil {
		return err
	}
	current.Store(s)
	return nil
}

// Registry returns the current snapshot, or nil before InitRegistry.
func Registry() *Snapshot {
	return current.Load()
}

func (s *Snapshot) Version() string { return s.version }

// Describe returns the schema registered under name.
func (s *Snapshot) Describe(name string) (*Model, error) {
	if m, ok := s.models[name]; ok {
		return m, nil
	}
	return nil, apperr.ErrNotFound("Schema `%s` does not exist.", name)
}

// ByPlural finds the schema exposed under the given resource name.
func (s *Snapshot) ByPlural(plural string) (*Model, bool) {
	m, ok := s.byPlural[plural]
	return m, ok
}

// Models returns all schemas sorted by name.
func (s *Snapshot) Models() []*Model {
	out := make([]*Model, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.models[name])
	}
	return out
}
