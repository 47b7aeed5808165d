package planner

import (
	"fmt"
	"strings"

	"GistAPI/internal/access"
	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
)

// Junctions of filters on the same property.
const (
	JunctionOr  = "or"
	JunctionAnd = "and"
)

// Options are the process-wide planning settings.
type Options struct {
	SamePropertyJunction string
}

type builder struct {
	q        *query.Query
	p        access.Principal
	opts     Options
	counters map[string]int
}

func (b *builder) nextAlias(prefix string) string {
	b.counters[prefix]++
	return fmt.Sprintf("%s%d", prefix, b.counters[prefix])
}

// Build plans q against root for principal p.
func Build(q *query.Query, root *model.Model, p access.Principal, opts Options) (*Plan, error) {
	return build(q, root, nil, p, opts)
}

// BuildOwned plans the elements of the collection prop of the object
// q.Owner.ID. With q.Inverse it plans the elements not in the collection.
func BuildOwned(q *query.Query, prop *model.Property, p access.Principal, opts Options) (*Plan, error) {
	if q.Owner == nil || !prop.IsCollection() {
		return nil, fmt.Errorf("owner collection request without owner")
	}
	owner := prop.Owner()
	if err := access.CanReadSchema(p, owner); err != nil {
		return nil, err
	}
	if !access.IsReadable(p, owner, prop) {
		return nil, apperr.ErrValidation("Property `%s` of `%s` is not readable.", prop.Name, owner.Name)
	}
	return build(q, prop.Target(), prop, p, opts)
}

func build(q *query.Query, root *model.Model, ownerProp *model.Property, p access.Principal, opts Options) (*Plan, error) {
	if root == nil {
		return nil, fmt.Errorf("plan: no schema")
	}
	if err := access.CanReadSchema(p, root); err != nil {
		return nil, err
	}
	if opts.SamePropertyJunction == "" {
		opts.SamePropertyJunction = JunctionOr
	}
	b := &builder{q: q, p: p, opts: opts, counters: make(map[string]int)}

	plan := &Plan{
		Root:      root,
		Alias:     RootAlias,
		Principal: p,
		Query:     q,
		Limit:     q.PageSize,
		Offset:    q.Offset(),
		Count:     q.Total,
	}
	sc := newScope(b, root, RootAlias)

	// 1) поля
	fields, err := b.expandFields(root, q.Fields)
	if err != nil {
		return nil, err
	}
	if err := b.planFields(plan, sc, fields, true); err != nil {
		return nil, err
	}

	// 2) фильтры
	where, err := b.buildWhere(sc, q.Filters)
	if err != nil {
		return nil, err
	}
	conds := make([]Predicate, 0, 4)
	if where != nil {
		conds = append(conds, where)
	}

	// 3) одиночный объект или коллекция владельца
	switch {
	case ownerProp != nil:
		conds = append(conds, b.ownerScope(ownerProp, q.Owner.ID, q.Inverse))
	case q.ObjectID != "":
		uid := root.UIDColumn()
		if uid == "" {
			return nil, apperr.ErrValidation("Schema `%s` has no identifier.", root.Name)
		}
		conds = append(conds, EqFilter{Expr: RootAlias + "." + uid, Value: q.ObjectID})
		plan.Limit, plan.Offset, plan.Count = 1, 0, false
	}
	if pred := access.RowPredicate(p, root, RootAlias); pred != nil {
		conds = append(conds, RawFilter{Cond: pred})
	}
	switch len(conds) {
	case 0:
	case 1:
		plan.Where = conds[0]
	default:
		plan.Where = AndFilter{Items: conds}
	}

	// 4) сортировка
	if plan.Orders, err = b.buildOrders(sc, q.Orders); err != nil {
		return nil, err
	}

	plan.Joins = sc.joins
	plan.Summary = summarize(plan, fields)
	return plan, nil
}

// ownerScope restricts the root to the elements of prop on the owner with uid.
func (b *builder) ownerScope(prop *model.Property, uid string, inverse bool) Predicate {
	owner := prop.Owner()
	target := prop.Target()
	o := b.nextAlias("o")

	var sub string
	var column string
	if prop.IsThrough() {
		j := b.nextAlias("j")
		sub = fmt.Sprintf("SELECT %s.%s FROM %s %s JOIN %s %s ON %s.%s = %s.%s WHERE %s.%s = ?",
			j, prop.TargetFK, prop.Through, j, owner.Table, o, o, owner.PrimaryKey(), j, prop.OwnerFK, o, owner.UIDColumn())
		column = RootAlias + "." + target.PrimaryKey()
	} else {
		sub = fmt.Sprintf("SELECT %s.%s FROM %s %s WHERE %s.%s = ?",
			o, owner.PrimaryKey(), owner.Table, o, o, owner.UIDColumn())
		column = RootAlias + "." + prop.FK
	}
	in := RawFilter{Cond: inSubquery{expr: column, sql: sub, args: []any{uid}}}
	if inverse {
		return NotFilter{Inner: in}
	}
	return in
}

func summarize(plan *Plan, fields []query.Field) Summary {
	s := Summary{}
	for _, f := range fields {
		s.Fields = append(s.Fields, f.String())
	}
	s.Filters = plan.Query.FilterStrings()
	for _, o := range plan.Orders {
		s.Orders = append(s.Orders, o.Expr+" "+strings.ToUpper(string(o.Direction)))
	}
	s.Notes = append(s.Notes,
		fmt.Sprintf("%d columns", len(plan.Columns)),
		fmt.Sprintf("%d joins", len(plan.Joins)),
		fmt.Sprintf("%d nested collections", len(plan.Tails)),
	)
	if plan.Count {
		s.Notes = append(s.Notes, "count query planned")
	}
	return s
}
