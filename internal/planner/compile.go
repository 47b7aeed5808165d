package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"GistAPI/internal/model"
	"GistAPI/internal/query"
)

// Statement is compiled SQL with positional ($n) arguments.
type Statement struct {
	SQL  string
	Args []any
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Compile renders the fetch query of p.
func Compile(p *Plan) (Statement, error) {
	qb, err := selectBuilder(p)
	if err != nil {
		return Statement{}, err
	}
	if p.Limit > 0 {
		qb = qb.Limit(uint64(p.Limit)).Offset(uint64(p.Offset))
	}
	return toStatement(qb)
}

// CompileTail renders the query of a nested collection for the given owner keys.
func CompileTail(t *Tail, keys []any) (Statement, error) {
	qb, err := selectBuilder(t.Plan)
	if err != nil {
		return Statement{}, err
	}
	qb = qb.Where(sq.Eq{t.Plan.ownerKey: keys})
	return toStatement(qb)
}

func toStatement(qb sq.SelectBuilder) (Statement, error) {
	sql, args, err := qb.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("compile: %w", err)
	}
	return Statement{SQL: sql, Args: args}, nil
}

func selectBuilder(p *Plan) (sq.SelectBuilder, error) {
	qb := psql.Select().From(p.Root.Table + " " + p.Alias)
	for i, c := range p.Columns {
		expr, args, err := columnSQL(c)
		if err != nil {
			return qb, err
		}
		qb = qb.Column(sq.Expr(fmt.Sprintf("%s AS c%d", expr, i), args...))
	}
	if len(p.Columns) == 0 {
		qb = qb.Column("1 AS c0")
	}
	if p.through != "" {
		qb = qb.Join(p.through)
	}
	var err error
	for _, j := range p.Joins {
		if qb, err = leftJoin(qb, j); err != nil {
			return qb, err
		}
	}
	if p.Where != nil {
		cond, err := compilePredicate(p.Where)
		if err != nil {
			return qb, err
		}
		qb = qb.Where(cond)
	}
	for _, o := range p.Orders {
		qb = qb.OrderBy(o.Expr + " " + strings.ToUpper(string(o.Direction)))
	}
	return qb, nil
}

func leftJoin(qb sq.SelectBuilder, j *Join) (sq.SelectBuilder, error) {
	on := j.On
	var args []any
	if j.Access != nil {
		sql, a, err := j.Access.ToSql()
		if err != nil {
			return qb, err
		}
		on += " AND " + sql
		args = a
	}
	return qb.LeftJoin(fmt.Sprintf("%s %s ON %s", j.Schema.Table, j.Alias, on), args...), nil
}

func columnSQL(c Column) (string, []any, error) {
	switch c := c.(type) {
	case ScalarColumn:
		expr := c.Alias + "." + c.Prop.Column
		if c.Prop.Type == model.KindArray {
			expr = "to_json(" + expr + ")"
		}
		return expr, nil, nil
	case ReferenceColumn:
		return c.Alias + "." + c.Prop.Target().UIDColumn(), nil, nil
	case AttributeColumn:
		return attributeExpr(c.Alias, c.Column, c.UID), nil, nil
	case SupportColumn:
		return c.Alias + "." + c.Column, nil, nil
	case CollectionColumn:
		return collectionSQL(c)
	}
	return "", nil, fmt.Errorf("compile: unknown column %T", c)
}

func collectionSQL(c CollectionColumn) (string, []any, error) {
	sub := c.Sub
	uid := sub.Alias + "." + sub.Schema.UIDColumn()
	switch c.Transform {
	case query.TransformSize:
		sql, args, err := subquerySQL(sub, "COUNT(*)", nil)
		return "(" + sql + ")", args, err
	case query.TransformIsEmpty:
		return existsSQL(sub, nil, true)
	case query.TransformIsNotEmpty:
		return existsSQL(sub, nil, false)
	case query.TransformIDs, query.TransformIDObjects:
		sql, args, err := subquerySQL(sub, fmt.Sprintf("COALESCE(json_agg(%s ORDER BY %s), '[]'::json)", uid, uid), nil)
		return "(" + sql + ")", args, err
	case query.TransformPluck:
		col := sub.Alias + "." + c.Plucked.Column
		order := sub.Alias + "." + sub.Schema.PrimaryKey()
		sql, args, err := subquerySQL(sub, fmt.Sprintf("COALESCE(json_agg(%s ORDER BY %s), '[]'::json)", col, order), nil)
		return "(" + sql + ")", args, err
	case query.TransformMember:
		return existsSQL(sub, sq.Eq{uid: c.Arg}, false)
	case query.TransformNotMember:
		return existsSQL(sub, sq.Eq{uid: c.Arg}, true)
	}
	return "", nil, fmt.Errorf("compile: transform %s has no column", c.Transform)
}

// subquerySQL renders the element scope of a collection selecting what.
// Placeholders stay `?`; the outer builder numbers them.
func subquerySQL(sub *Subquery, what string, extra sq.Sqlizer) (string, []any, error) {
	qb := sq.Select(what)
	if sub.ThroughAlias != "" {
		qb = qb.From(sub.Prop.Through + " " + sub.ThroughAlias).
			Join(fmt.Sprintf("%s %s ON %s.%s = %s.%s",
				sub.Schema.Table, sub.Alias, sub.Alias, sub.Schema.PrimaryKey(), sub.ThroughAlias, sub.Prop.TargetFK))
	} else {
		qb = qb.From(sub.Schema.Table + " " + sub.Alias)
	}
	var err error
	for _, j := range sub.Joins {
		if qb, err = leftJoin(qb, j); err != nil {
			return "", nil, err
		}
	}
	conds := sq.And{sq.Expr(sub.Correlation)}
	if sub.Access != nil {
		conds = append(conds, sub.Access)
	}
	if sub.Where != nil {
		w, err := compilePredicate(sub.Where)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, w)
	}
	if extra != nil {
		conds = append(conds, extra)
	}
	return qb.Where(conds).ToSql()
}

func existsSQL(sub *Subquery, extra sq.Sqlizer, negate bool) (string, []any, error) {
	sql, args, err := subquerySQL(sub, "1", extra)
	if err != nil {
		return "", nil, err
	}
	if negate {
		return "NOT EXISTS (" + sql + ")", args, nil
	}
	return "EXISTS (" + sql + ")", args, nil
}

func compilePredicate(p Predicate) (sq.Sqlizer, error) {
	switch p := p.(type) {
	case EqFilter:
		if p.Array {
			return sq.Expr("? = ANY("+p.Expr+")", p.Value), nil
		}
		return sq.Eq{p.Expr: p.Value}, nil
	case CompareFilter:
		switch p.Op {
		case query.OpLt:
			return sq.Lt{p.Expr: p.Value}, nil
		case query.OpLe:
			return sq.LtOrEq{p.Expr: p.Value}, nil
		case query.OpGt:
			return sq.Gt{p.Expr: p.Value}, nil
		case query.OpGe:
			return sq.GtOrEq{p.Expr: p.Value}, nil
		}
		return nil, fmt.Errorf("compile: %s is not a comparison", p.Op)
	case LikeFilter:
		if p.CaseInsensitive {
			return sq.ILike{p.Expr: p.Pattern}, nil
		}
		return sq.Like{p.Expr: p.Pattern}, nil
	case InFilter:
		return sq.Eq{p.Expr: p.Values}, nil
	case NullFilter:
		return sq.Eq{p.Expr: nil}, nil
	case EmptyFilter:
		switch {
		case p.Sub != nil:
			sql, args, err := existsSQL(p.Sub, nil, true)
			return sq.Expr(sql, args...), err
		case p.Array:
			return sq.Expr(fmt.Sprintf("(%s IS NULL OR cardinality(%s) = 0)", p.Expr, p.Expr)), nil
		}
		return sq.Expr(fmt.Sprintf("(%s IS NULL OR %s = '')", p.Expr, p.Expr)), nil
	case ExistsFilter:
		sql, args, err := existsSQL(p.Sub, nil, false)
		return sq.Expr(sql, args...), err
	case SizeFilter:
		sql, args, err := subquerySQL(p.Sub, "COUNT(*)", nil)
		if err != nil {
			return nil, err
		}
		return sq.Expr(fmt.Sprintf("(%s) %s ?", sql, sizeOperators[p.Op]), append(args, p.Size)...), nil
	case NotFilter:
		if ex, ok := p.Inner.(ExistsFilter); ok {
			sql, args, err := existsSQL(ex.Sub, nil, true)
			return sq.Expr(sql, args...), err
		}
		inner, err := compilePredicate(p.Inner)
		if err != nil {
			return nil, err
		}
		return notTrue{inner: inner}, nil
	case AndFilter:
		and := make(sq.And, 0, len(p.Items))
		for _, item := range p.Items {
			c, err := compilePredicate(item)
			if err != nil {
				return nil, err
			}
			and = append(and, c)
		}
		return and, nil
	case OrFilter:
		or := make(sq.Or, 0, len(p.Items))
		for _, item := range p.Items {
			c, err := compilePredicate(item)
			if err != nil {
				return nil, err
			}
			or = append(or, c)
		}
		return or, nil
	case RawFilter:
		return p.Cond, nil
	}
	return nil, fmt.Errorf("compile: unknown predicate %T", p)
}

var sizeOperators = map[query.Operator]string{
	query.OpEq: "=",
	query.OpLt: "<",
	query.OpLe: "<=",
	query.OpGt: ">",
	query.OpGe: ">=",
}

// notTrue is the exact complement of a condition that may evaluate to NULL.
type notTrue struct {
	inner sq.Sqlizer
}

func (n notTrue) ToSql() (string, []any, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "(" + sql + ") IS NOT TRUE", args, nil
}

// inSubquery renders `expr IN (sql)`.
type inSubquery struct {
	expr string
	sql  string
	args []any
}

func (s inSubquery) ToSql() (string, []any, error) {
	return s.expr + " IN (" + s.sql + ")", s.args, nil
}
