package model

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// linkModels fills defaults, checks identifiers and verifies that every by-name
// edge points at a loaded schema. Edges stay by-name; Property.Target resolves them.
func linkModels(s *Snapshot) error {
	for _, name := range s.names {
		m := s.models[name]
		m.snapshot = s

		if !identifierRe.MatchString(m.Table) {
			return fmt.Errorf("model '%s': invalid table name '%s'", name, m.Table)
		}
		if !identifierRe.MatchString(m.PrimaryKey()) {
			return fmt.Errorf("model '%s': invalid pk '%s'", name, m.PrimaryKey())
		}
		for _, col := range []string{m.Sharing, m.Translations, m.Attributes} {
			if col != "" && !identifierRe.MatchString(col) {
				return fmt.Errorf("model '%s': invalid column name '%s'", name, col)
			}
		}
		if m.Endpoint == "" && m.Plural != "" {
			m.Endpoint = "/" + m.Plural
		}

		for _, p := range m.Properties.All() {
			p.owner = m
			if err := linkProperty(s, m, p); err != nil {
				return err
			}
		}

		// href и access есть у каждой схемы, даже если не объявлены
		if _, ok := m.Properties.Get("href"); !ok && m.Endpoint != "" && m.UIDColumn() != "" {
			m.Properties.add(&Property{Name: "href", Type: KindSynthetic, Synthetic: SyntheticHref, owner: m})
		}
		if _, ok := m.Properties.Get("access"); !ok {
			m.Properties.add(&Property{Name: "access", Type: KindSynthetic, Synthetic: SyntheticAccess, owner: m})
		}
		if _, ok := m.Properties.Get("apiEndpoints"); !ok {
			m.Properties.add(&Property{Name: "apiEndpoints", Type: KindSynthetic, Synthetic: SyntheticAPIEndpoints, owner: m})
		}
	}
	return nil
}

func linkProperty(s *Snapshot, m *Model, p *Property) error {
	where := fmt.Sprintf("%s.%s", m.Name, p.Name)
	if p.Type == "" {
		p.Type = KindString
	}

	switch p.Type {
	case KindSynthetic:
		if p.Synthetic == "" {
			return fmt.Errorf("%s: synthetic property needs 'synthetic'", where)
		}
		if p.Synthetic == SyntheticDisplayName {
			src, ok := m.Properties.Get(p.Source)
			if !ok || !src.IsPersisted() {
				return fmt.Errorf("%s: source '%s' must be a persisted property", where, p.Source)
			}
			// displayName переводится так же, как исходное свойство
			p.Translatable = src.Translatable
			if p.TranslationKey == "" {
				p.TranslationKey = src.TranslationProperty()
			}
		}
		return nil

	case KindReference:
		if _, ok := s.models[p.Model]; !ok {
			return fmt.Errorf("invalid reference: model '%s' not found in '%s'", p.Model, where)
		}
		if p.FK == "" {
			p.FK = strings.ToLower(p.Name) + "id"
		}
		return checkIdentifiers(where, p.FK)

	case KindCollection:
		if _, ok := s.models[p.Model]; !ok {
			return fmt.Errorf("invalid collection: model '%s' not found in '%s'", p.Model, where)
		}
		if p.Through != "" {
			if p.OwnerFK == "" || p.TargetFK == "" {
				return fmt.Errorf("%s: through collections need owner_fk and target_fk", where)
			}
			return checkIdentifiers(where, p.Through, p.OwnerFK, p.TargetFK)
		}
		if p.FK == "" {
			return fmt.Errorf("%s: collection needs either 'fk' or 'through'", where)
		}
		return checkIdentifiers(where, p.FK)
	}

	if p.Column == "" {
		p.Column = strings.ToLower(p.Name)
	}
	if p.Localize && p.Type != KindString {
		return fmt.Errorf("%s: only string properties can be localized", where)
	}
	return checkIdentifiers(where, p.Column)
}

func checkIdentifiers(where string, idents ...string) error {
	for _, id := range idents {
		if !identifierRe.MatchString(id) {
			return fmt.Errorf("%s: invalid identifier '%s'", where, id)
		}
	}
	return nil
}

// validatePresets checks that every preset entry resolves against its schema.
func validatePresets(s *Snapshot) error {
	for _, name := range s.names {
		m := s.models[name]
		for preset, fields := range m.Presets {
			for _, f := range fields {
				if _, err := m.Resolve(strings.Split(f, ".")); err != nil {
					return fmt.Errorf("preset '%s' of '%s': %w", preset, name, err)
				}
			}
		}
	}
	return nil
}
