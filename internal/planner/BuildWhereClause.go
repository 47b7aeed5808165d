package planner

import (
	"strconv"

	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
)

// buildWhere combines the filters: same-property filters by the configured
// junction, groups by AND or, with rootJunction=OR, by OR.
func (b *builder) buildWhere(sc *scope, filters []query.Filter) (Predicate, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	index := make(map[string]int)
	var members [][]Predicate
	for _, f := range filters {
		pred, err := sc.filter(f)
		if err != nil {
			return nil, err
		}
		key := f.Property()
		i, ok := index[key]
		if !ok {
			i = len(members)
			index[key] = i
			members = append(members, nil)
		}
		members[i] = append(members[i], pred)
	}

	groups := make([]Predicate, 0, len(members))
	for _, m := range members {
		switch {
		case len(m) == 1:
			groups = append(groups, m[0])
		case b.opts.SamePropertyJunction == JunctionAnd:
			groups = append(groups, AndFilter{Items: m})
		default:
			groups = append(groups, OrFilter{Items: m})
		}
	}
	switch {
	case len(groups) == 1:
		return groups[0], nil
	case b.q.AnyFilter:
		return OrFilter{Items: groups}, nil
	}
	return AndFilter{Items: groups}, nil
}

func (s *scope) filter(f query.Filter) (Predicate, error) {
	if err := checkArity(f); err != nil {
		return nil, err
	}
	pred, err := s.positive(f, f.Path)
	if err != nil {
		return nil, err
	}
	if f.Negated {
		return NotFilter{Inner: pred}, nil
	}
	return pred, nil
}

func checkArity(f query.Filter) error {
	switch {
	case f.Operator.IsUnary():
		if len(f.Values) > 0 {
			return apperr.ErrValidation("Filter `%s` uses an unary operator and does not need an argument.", f)
		}
	case len(f.Values) == 0:
		return apperr.ErrValidation("Filter `%s` uses a binary operator that does need an argument.", f)
	case !f.Operator.IsMultiValue() && len(f.Values) > 1:
		return apperr.ErrValidation("Filter `%s` can only be used with a single argument.", f)
	}
	return nil
}

// positive builds the predicate of f without its negation. Paths through a
// collection become an EXISTS over the elements.
func (s *scope) positive(f query.Filter, path []string) (Predicate, error) {
	steps, collAt, err := s.walk(path, walkFilter)
	if err != nil {
		return nil, err
	}
	if collAt >= 0 {
		st := steps[collAt]
		sub, inner := s.elements(st.alias, st.prop)
		pred, err := inner.positive(f, path[collAt+1:])
		if err != nil {
			return nil, err
		}
		sub.Where = pred
		sub.Joins = inner.joins
		return ExistsFilter{Sub: sub}, nil
	}

	last := steps[len(steps)-1]
	if last.prop == nil {
		uid := query.AttributeUID(path[len(path)-1])
		return leafPredicate(f, attributeExpr(last.alias, last.schema.Attributes, uid), model.KindString, path[len(path)-1])
	}

	prop := last.prop
	switch {
	case prop.IsCollection():
		return s.collectionFilter(f, last)

	case prop.IsReference():
		if f.Operator == query.OpNull {
			return NullFilter{Expr: last.alias + "." + prop.FK}, nil
		}
		// parent:eq:uid означает parent.id:eq:uid
		j := s.join(path, last.alias, prop)
		j.ForFilter = true
		uid := j.Schema.UIDColumn()
		if uid == "" {
			return nil, notFilterable(f, prop)
		}
		return leafPredicate(f, j.Alias+"."+uid, model.KindString, prop.Name)

	case prop.IsSynthetic():
		src := prop.SourceProperty()
		if prop.Synthetic != model.SyntheticDisplayName || src == nil {
			return nil, notFilterable(f, prop)
		}
		return leafPredicate(f, last.alias+"."+src.Column, src.Type, prop.Name)
	}
	return leafPredicate(f, last.alias+"."+prop.Column, prop.Type, prop.Name)
}

func (s *scope) collectionFilter(f query.Filter, last step) (Predicate, error) {
	sub, _ := s.elements(last.alias, last.prop)
	switch {
	case f.Operator == query.OpIn:
		uid := sub.Schema.UIDColumn()
		if uid == "" {
			return nil, notFilterable(f, last.prop)
		}
		sub.Where = InFilter{Expr: sub.Alias + "." + uid, Values: stringValues(f.Values)}
		return ExistsFilter{Sub: sub}, nil
	case f.Operator == query.OpEmpty:
		return EmptyFilter{Sub: sub}, nil
	case f.Operator == query.OpEq || f.Operator.IsOrdering():
		n, err := strconv.Atoi(f.Values[0])
		if err != nil || n < 0 {
			return nil, apperr.ErrValidation("Filter `%s` compares the size of a collection and needs a number.", f)
		}
		return SizeFilter{Sub: sub, Op: f.Operator, Size: n}, nil
	}
	return nil, notApplicable(f, last.prop.Name, model.KindCollection)
}

func leafPredicate(f query.Filter, expr, kind, name string) (Predicate, error) {
	if !applicable(f.Operator, kind) {
		return nil, notApplicable(f, name, kind)
	}
	switch op := f.Operator; {
	case op == query.OpNull:
		return NullFilter{Expr: expr}, nil
	case op == query.OpEmpty:
		return EmptyFilter{Expr: expr, Array: kind == model.KindArray}, nil
	case op == query.OpIn:
		values := make([]any, 0, len(f.Values))
		for _, raw := range f.Values {
			v, err := convertValue(f, kind, raw)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return InFilter{Expr: expr, Values: values}, nil
	case op.IsLike():
		if kind == model.KindUUID {
			expr += "::text"
		}
		ci := op == query.OpILike || op == query.OpStartsWith || op == query.OpEndsWith
		return LikeFilter{Expr: expr, Pattern: likePattern(op, f.Values[0]), CaseInsensitive: ci}, nil
	case op == query.OpEq:
		if kind == model.KindArray {
			return EqFilter{Expr: expr, Value: f.Values[0], Array: true}, nil
		}
		v, err := convertValue(f, kind, f.Values[0])
		if err != nil {
			return nil, err
		}
		return EqFilter{Expr: expr, Value: v}, nil
	default:
		v, err := convertValue(f, kind, f.Values[0])
		if err != nil {
			return nil, err
		}
		return CompareFilter{Expr: expr, Op: op, Value: v}, nil
	}
}

// applicable reports whether op can be used on a property of kind.
func applicable(op query.Operator, kind string) bool {
	switch {
	case op == query.OpNull:
		return kind != model.KindCollection
	case op == query.OpEmpty:
		return kind == model.KindString || kind == model.KindText || kind == model.KindArray
	case op == query.OpIn:
		return kind != model.KindJSON && kind != model.KindArray
	case op.IsLike():
		return kind == model.KindString || kind == model.KindText || kind == model.KindUUID
	case op.IsOrdering():
		switch kind {
		case model.KindInt, model.KindFloat, model.KindDate, model.KindDateTime, model.KindString, model.KindText:
			return true
		}
		return false
	case op == query.OpEq:
		return kind != model.KindJSON
	}
	return false
}

func notApplicable(f query.Filter, name, kind string) error {
	return apperr.ErrValidation("Filter `%s` cannot be used with property `%s` of type `%s`.", f, name, kind)
}

func notFilterable(f query.Filter, prop *model.Property) error {
	return apperr.ErrValidation("Property `%s` cannot be used as filter property in `%s`.", prop.Name, f)
}

func stringValues(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
