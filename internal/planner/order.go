package planner

import (
	"GistAPI/internal/apperr"
	"GistAPI/internal/query"
)

// buildOrders resolves the order terms and appends the primary key as tie-breaker.
func (b *builder) buildOrders(sc *scope, orders []query.Order) ([]OrderBy, error) {
	out := make([]OrderBy, 0, len(orders)+1)
	for _, o := range orders {
		steps, collAt, err := sc.walk(o.Path, walkOrder)
		if err != nil {
			return nil, err
		}
		if collAt >= 0 {
			return nil, notSortable(o)
		}
		last := steps[len(steps)-1]

		var expr string
		switch prop := last.prop; {
		case prop == nil:
			expr = attributeExpr(last.alias, last.schema.Attributes, query.AttributeUID(o.Path[len(o.Path)-1]))
		case !prop.IsSortable():
			return nil, notSortable(o)
		case prop.IsSynthetic():
			expr = last.alias + "." + prop.SourceProperty().Column
		case prop.IsReference():
			j := sc.join(o.Path, last.alias, prop)
			j.ForOrder = true
			uid := j.Schema.UIDColumn()
			if uid == "" {
				return nil, notSortable(o)
			}
			expr = j.Alias + "." + uid
		default:
			expr = last.alias + "." + prop.Column
		}
		out = append(out, OrderBy{Expr: expr, Direction: o.Direction})
	}
	out = append(out, OrderBy{Expr: RootAlias + "." + sc.schema.PrimaryKey(), Direction: query.Asc})
	return out, nil
}

func notSortable(o query.Order) error {
	return apperr.ErrValidation("Property `%s` cannot be used as order property.", o.Property())
}
