package planner

import (
	"fmt"
	"strings"

	"GistAPI/internal/access"
	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
)

// scope is one FROM clause: the root query or the element subquery of a
// collection. Joins are local to their scope and shared by path prefix.
type scope struct {
	b      *builder
	schema *model.Model
	alias  string
	joins  []*Join
	byPath map[string]*Join
}

func newScope(b *builder, m *model.Model, alias string) *scope {
	return &scope{b: b, schema: m, alias: alias, byPath: make(map[string]*Join)}
}

// join returns the LEFT JOIN of the reference prop reached by path, creating it once.
func (s *scope) join(path []string, from string, prop *model.Property) *Join {
	key := strings.Join(path, ".")
	if j, ok := s.byPath[key]; ok {
		return j
	}
	target := prop.Target()
	alias := s.b.nextAlias("t")
	j := &Join{
		Path:   key,
		Schema: target,
		Alias:  alias,
		On:     fmt.Sprintf("%s.%s = %s.%s", alias, target.PrimaryKey(), from, prop.FK),
		Access: access.RowPredicate(s.b.p, target, alias),
	}
	s.joins = append(s.joins, j)
	s.byPath[key] = j
	return j
}

// elements opens the element scope of the collection prop owned by the object at from.
func (s *scope) elements(from string, prop *model.Property) (*Subquery, *scope) {
	target := prop.Target()
	alias := s.b.nextAlias("e")
	sub := &Subquery{
		Prop:   prop,
		Schema: target,
		Alias:  alias,
		Access: access.RowPredicate(s.b.p, target, alias),
	}
	ownerPK := prop.Owner().PrimaryKey()
	if prop.IsThrough() {
		sub.ThroughAlias = s.b.nextAlias("j")
		sub.Correlation = fmt.Sprintf("%s.%s = %s.%s", sub.ThroughAlias, prop.OwnerFK, from, ownerPK)
	} else {
		sub.Correlation = fmt.Sprintf("%s.%s = %s.%s", alias, prop.FK, from, ownerPK)
	}
	return sub, newScope(s.b, target, alias)
}

// step is one resolved segment of a path walked inside a scope.
type step struct {
	prop   *model.Property
	schema *model.Model // schema owning prop
	alias  string       // alias of the object owning prop
}

// walkMode says what a path is walked for; it decides join flags and error wording.
type walkMode int

const (
	walkField walkMode = iota
	walkFilter
	walkOrder
)

// walk resolves path inside s, joining every intermediate reference. It stops
// at the first collection that is not the last segment and returns its index,
// or -1 when the path stays to-one.
func (s *scope) walk(path []string, mode walkMode) ([]step, int, error) {
	steps := make([]step, 0, len(path))
	schema, alias := s.schema, s.alias
	for i, seg := range path {
		last := i == len(path)-1
		if query.IsAttributeSegment(seg) {
			if !last {
				return nil, -1, apperr.ErrValidation("Attribute `%s` of `%s` cannot be traversed.", seg, schema.Name)
			}
			if schema.Attributes == "" {
				return nil, -1, apperr.ErrValidation("Property `%s` does not exist in `%s`.", seg, schema.Name)
			}
			if !attributeUID.MatchString(query.AttributeUID(seg)) {
				return nil, -1, apperr.ErrValidation("Attribute `%s` is not a valid identifier.", seg)
			}
			steps = append(steps, step{schema: schema, alias: alias})
			return steps, -1, nil
		}
		prop, ok := schema.Properties.Get(seg)
		if !ok {
			return nil, -1, apperr.ErrValidation("Property `%s` does not exist in `%s`.", seg, schema.Name)
		}
		if !access.IsReadable(s.b.p, schema, prop) {
			return nil, -1, apperr.ErrValidation("Property `%s` of `%s` is not readable.", seg, schema.Name)
		}
		steps = append(steps, step{prop: prop, schema: schema, alias: alias})
		if last {
			break
		}
		switch {
		case prop.IsReference():
			j := s.join(path[:i+1], alias, prop)
			switch mode {
			case walkFilter:
				j.ForFilter = true
			case walkOrder:
				j.ForOrder = true
			}
			schema, alias = j.Schema, j.Alias
		case prop.IsCollection():
			return steps, i, nil
		default:
			return nil, -1, apperr.ErrValidation("Property `%s` of `%s` is not a reference or collection and cannot be traversed.", seg, schema.Name)
		}
	}
	return steps, -1, nil
}
