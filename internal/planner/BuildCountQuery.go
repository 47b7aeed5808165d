package planner

import (
	sq "github.com/Masterminds/squirrel"

	"GistAPI/internal/access"
	"GistAPI/internal/model"
)

// CompileCount renders the total count of p: the same predicate tree, joined
// only with what the filters need.
func CompileCount(p *Plan) (Statement, error) {
	qb := psql.Select("COUNT(*)").From(p.Root.Table + " " + p.Alias)
	var err error
	for _, j := range p.Joins {
		if !j.ForFilter {
			continue
		}
		if qb, err = leftJoin(qb, j); err != nil {
			return Statement{}, err
		}
	}
	if p.Where != nil {
		var cond sq.Sqlizer
		if cond, err = compilePredicate(p.Where); err != nil {
			return Statement{}, err
		}
		qb = qb.Where(cond)
	}
	return toStatement(qb)
}

// CompileExists renders the check that the object uid of m is visible to p.
func CompileExists(m *model.Model, uid string, p access.Principal) (Statement, error) {
	cond := sq.And{sq.Eq{RootAlias + "." + m.UIDColumn(): uid}}
	if pred := access.RowPredicate(p, m, RootAlias); pred != nil {
		cond = append(cond, pred)
	}
	return toStatement(psql.Select("1").From(m.Table + " " + RootAlias).Where(cond).Limit(1))
}
