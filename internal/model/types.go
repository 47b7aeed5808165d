package model

import (
	"slices"
	"strings"
)

// Kinds of properties declared in schema files.
const (
	KindString     = "string"
	KindText       = "text"
	KindInt        = "int"
	KindFloat      = "float"
	KindBool       = "bool"
	KindDate       = "date"
	KindDateTime   = "datetime"
	KindUUID       = "uuid"
	KindJSON       = "json"
	KindArray      = "array"
	KindReference  = "reference"
	KindCollection = "collection"
	KindSynthetic  = "synthetic"
)

// Synthetic property flavours.
const (
	SyntheticHref         = "href"
	SyntheticAccess       = "access"
	SyntheticAPIEndpoints = "apiEndpoints"
	SyntheticDisplayName  = "displayName"
)

// Model описывает одну сущность (schema) из YAML-конфигурации
type Model struct {
	Name         string              `yaml:"-"` // logical name, taken from the file name
	Table        string              `yaml:"table"`
	Plural       string              `yaml:"plural"`
	Endpoint     string              `yaml:"endpoint"`
	PK           string              `yaml:"pk"`
	Sharing      string              `yaml:"sharing"`      // jsonb column with the ACL, empty when not shareable
	Translations string              `yaml:"translations"` // jsonb column [{locale, property, value}]
	Attributes   string              `yaml:"attributes"`   // jsonb column {attrUid: {value}}
	Presets      map[string][]string `yaml:"presets"`
	Properties   Properties          `yaml:"properties"`

	// для runtime (не сериализуется)
	snapshot *Snapshot
}

// Property describes one property of a schema.
type Property struct {
	Name           string `yaml:"-"`
	Column         string `yaml:"column"`
	Type           string `yaml:"type"`
	Model          string `yaml:"model"`     // target schema of references and collections
	FK             string `yaml:"fk"`        // reference: column on this table; collection: column on the target table
	Through        string `yaml:"through"`   // join table of many-to-many collections
	OwnerFK        string `yaml:"owner_fk"`  // join table column pointing at the owner
	TargetFK       string `yaml:"target_fk"` // join table column pointing at the element
	Readable       *bool  `yaml:"readable"`
	Secret         bool   `yaml:"secret"`
	Translatable   bool   `yaml:"translatable"`
	TranslationKey string `yaml:"translation_key"`
	Localize       bool   `yaml:"localize"`
	Synthetic      string `yaml:"synthetic"`
	Source         string `yaml:"source"` // base property of displayName-like synthetics
	Identifiable   *bool  `yaml:"identifiable"`

	owner *Model
}

// Properties keeps schema properties in declaration order.
type Properties struct {
	list   []*Property
	byName map[string]*Property
}

func (ps *Properties) Get(name string) (*Property, bool) {
	if ps == nil || ps.byName == nil {
		return nil, false
	}
	p, ok := ps.byName[name]
	return p, ok
}

func (ps *Properties) All() []*Property {
	if ps == nil {
		return nil
	}
	return ps.list
}

func (ps *Properties) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.list)
}

func (ps *Properties) add(p *Property) {
	if ps.byName == nil {
		ps.byName = make(map[string]*Property)
	}
	ps.list = append(ps.list, p)
	ps.byName[p.Name] = p
}

// Owner returns the schema declaring the property.
func (p *Property) Owner() *Model { return p.owner }

// Target resolves the referenced schema by name. Edges are looked up lazily so
// cyclic schema graphs never require eager construction.
func (p *Property) Target() *Model {
	if p == nil || p.Model == "" || p.owner == nil || p.owner.snapshot == nil {
		return nil
	}
	return p.owner.snapshot.models[p.Model]
}

func (p *Property) IsReference() bool  { return p.Type == KindReference }
func (p *Property) IsCollection() bool { return p.Type == KindCollection }
func (p *Property) IsSynthetic() bool  { return p.Type == KindSynthetic }
func (p *Property) IsPersisted() bool  { return !p.IsSynthetic() && !p.IsCollection() }
func (p *Property) IsThrough() bool    { return p.IsCollection() && p.Through != "" }

// IsIdentifiableReference reports whether the reference points at a schema with its own endpoint.
func (p *Property) IsIdentifiableReference() bool {
	if !p.IsReference() || (p.Identifiable != nil && !*p.Identifiable) {
		return false
	}
	t := p.Target()
	return t != nil && t.Endpoint != "" && t.UIDColumn() != ""
}

func (p *Property) IsReadableByDefault() bool {
	return p.Readable == nil || *p.Readable
}

// IsSortable reports whether the property can appear in an order clause.
func (p *Property) IsSortable() bool {
	switch {
	case p.IsCollection():
		return false
	case p.IsSynthetic():
		return p.Synthetic == SyntheticDisplayName && p.Source != ""
	case p.Type == KindJSON || p.Type == KindArray:
		return false
	}
	return true
}

// IsText reports whether like-style operators apply.
func (p *Property) IsText() bool {
	return p.Type == KindString || p.Type == KindText || p.Type == KindUUID
}

// IsOrdered reports whether lt/le/gt/ge apply.
func (p *Property) IsOrdered() bool {
	switch p.Type {
	case KindInt, KindFloat, KindDate, KindDateTime, KindString, KindText:
		return true
	}
	return false
}

// TranslationProperty is the property key used in the translations column.
func (p *Property) TranslationProperty() string {
	if p.TranslationKey != "" {
		return p.TranslationKey
	}
	return p.Name
}

// SourceProperty returns the base property of a displayName-like synthetic.
func (p *Property) SourceProperty() *Property {
	if p.Source == "" || p.owner == nil {
		return nil
	}
	src, _ := p.owner.Properties.Get(p.Source)
	return src
}

// PrimaryKey returns the internal primary key column.
func (m *Model) PrimaryKey() string {
	if m.PK != "" {
		return m.PK
	}
	return "id"
}

// UIDColumn returns the column of the public `id` property.
func (m *Model) UIDColumn() string {
	if p, ok := m.Properties.Get("id"); ok && p.IsPersisted() {
		return p.Column
	}
	return ""
}

func (m *Model) Shareable() bool { return m.Sharing != "" }

// Preset returns a declared or built-in preset.
func (m *Model) Preset(name string) ([]string, bool) {
	if fields, ok := m.Presets[name]; ok {
		return fields, true
	}
	switch name {
	case "default":
		if fields, ok := m.Presets["identifiable"]; ok {
			return fields, true
		}
		return m.builtinPreset("id", "code", "name", "displayName", "href"), true
	case "identifiable":
		return m.builtinPreset("id", "code", "name", "created", "lastUpdated", "href"), true
	case "nameable":
		return m.builtinPreset("id", "code", "name", "shortName", "description", "displayName", "displayShortName", "created", "lastUpdated", "href"), true
	case "owner":
		var names []string
		for _, p := range m.Properties.All() {
			if p.IsPersisted() || (p.IsCollection() && p.Through != "") {
				names = append(names, p.Name)
			}
		}
		return names, true
	case "all":
		var names []string
		for _, p := range m.Properties.All() {
			if p.IsSynthetic() && p.Synthetic != SyntheticHref && p.Synthetic != SyntheticDisplayName {
				continue
			}
			names = append(names, p.Name)
		}
		return names, true
	}
	return nil, false
}

func (m *Model) builtinPreset(candidates ...string) []string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := m.Properties.Get(c); ok {
			names = append(names, c)
		}
	}
	return names
}

// InPublicPreset reports whether a guest may see the property.
func (m *Model) InPublicPreset(name string) bool {
	public, ok := m.Presets["public"]
	if !ok {
		return false
	}
	return slices.Contains(public, name)
}

// HasPublicPreset reports whether guests may query the schema at all.
func (m *Model) HasPublicPreset() bool {
	_, ok := m.Presets["public"]
	return ok
}

// DisplayName is the human label used in messages, e.g. "OrganisationUnit".
func (m *Model) DisplayName() string {
	if m.Name == "" {
		return ""
	}
	return strings.ToUpper(m.Name[:1]) + m.Name[1:]
}
