// Package resolver executes Gist plans and shapes the rows into JSON-ready
// values: objects, pages and describe reports.
package resolver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"GistAPI/internal/apperr"
	"GistAPI/internal/logger"
	"GistAPI/internal/model"
	"GistAPI/internal/planner"
	"GistAPI/internal/query"
)

// Resolver runs Gist requests against the storage engine.
type Resolver struct {
	exec *Executor
	opts Options
}

func New(exec *Executor, opts Options) *Resolver {
	return &Resolver{exec: exec, opts: opts}
}

// resultSet holds the rows fetched for one plan and the rows of its tails.
type resultSet struct {
	plan  *planner.Plan
	rows  [][]any
	tails map[*planner.Tail]*resultSet
	// tail sets only: rows grouped by owner key
	owners map[string][][]any
}

// Run executes req and returns the response body: a page envelope, a bare
// list, a single object or a single value.
func (r *Resolver) Run(ctx context.Context, req Request) (any, error) {
	plan, unwrap, err := r.planRequest(req)
	if err != nil {
		return nil, err
	}
	if req.Query.Owner != nil && unwrap == nil {
		if err := r.ownerExists(ctx, req); err != nil {
			return nil, err
		}
	}
	if plan.Query.ObjectID != "" {
		return r.object(ctx, req, plan, unwrap)
	}
	return r.list(ctx, req, plan)
}

// planRequest builds the plan of req without touching the storage engine.
// For a property that is not a collection it also returns the property whose
// value is taken out of the owner object.
func (r *Resolver) planRequest(req Request) (*planner.Plan, *model.Property, error) {
	q := req.Query
	if q.Owner == nil {
		plan, err := planner.Build(q, req.Schema, req.Principal, r.opts.Planner)
		return plan, nil, err
	}
	prop, ok := req.Schema.Properties.Get(q.Owner.Property)
	if !ok {
		return nil, nil, apperr.ErrValidation("Property `%s` does not exist in `%s`.", q.Owner.Property, req.Schema.Name)
	}
	if prop.IsCollection() {
		plan, err := planner.BuildOwned(q, prop, req.Principal, r.opts.Planner)
		return plan, nil, err
	}
	plan, err := planner.Build(propertyQuery(q, prop), req.Schema, req.Principal, r.opts.Planner)
	return plan, prop, err
}

// propertyQuery turns a request for one property of an object into a request
// for the object with the fields moved below that property.
func propertyQuery(q *query.Query, prop *model.Property) *query.Query {
	cp := *q
	cp.ObjectID, cp.Owner = q.Owner.ID, nil
	cp.Filters, cp.Orders = nil, nil

	if len(q.Fields) == 0 {
		f := query.Field{Path: []string{prop.Name}, Names: []string{prop.Name}}
		if prop.IsReference() && prop.IsIdentifiableReference() {
			f.Preset = "default"
		}
		cp.Fields = []query.Field{f}
		return &cp
	}
	cp.Fields = make([]query.Field, len(q.Fields))
	for i, f := range q.Fields {
		f.Path = append([]string{prop.Name}, f.Path...)
		f.Names = append([]string{prop.Name}, f.Names...)
		cp.Fields[i] = f
	}
	return &cp
}

func (r *Resolver) ownerExists(ctx context.Context, req Request) error {
	stmt, err := planner.CompileExists(req.Schema, req.Query.Owner.ID, req.Principal)
	if err != nil {
		return err
	}
	rows, err := r.exec.All(ctx, stmt)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return notFound(req.Schema, req.Query.Owner.ID)
	}
	return nil
}

func notFound(m *model.Model, uid string) error {
	name := m.Name
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return apperr.ErrNotFound("%s with id %s could not be found.", name, uid)
}

func (r *Resolver) object(ctx context.Context, req Request, plan *planner.Plan, unwrap *model.Property) (any, error) {
	stmt, err := planner.Compile(plan)
	if err != nil {
		return nil, err
	}
	rs, err := r.fetch(ctx, plan, stmt)
	if err != nil {
		return nil, err
	}
	if len(rs.rows) == 0 {
		return nil, notFound(req.Schema, plan.Query.ObjectID)
	}
	if err := r.fetchTails(ctx, rs); err != nil {
		return nil, err
	}
	item, err := r.newShaper(req).item(rs, rs.rows[0])
	if err != nil {
		return nil, err
	}
	if unwrap != nil && !plan.Single {
		if obj, ok := item.(*object); ok {
			item, _ = obj.Get(unwrap.Name)
		}
	}
	return item, nil
}

func (r *Resolver) list(ctx context.Context, req Request, plan *planner.Plan) (any, error) {
	q := req.Query
	stmt, err := planner.Compile(plan)
	if err != nil {
		return nil, err
	}

	var rs *resultSet
	var total *int
	switch {
	case !plan.Count:
		if rs, err = r.fetch(ctx, plan, stmt); err != nil {
			return nil, err
		}
	case q.Page == 1:
		// на неполной первой странице total известен без COUNT
		if rs, err = r.fetch(ctx, plan, stmt); err != nil {
			return nil, err
		}
		if len(rs.rows) < q.PageSize {
			n := len(rs.rows)
			total = &n
		} else if total, err = r.count(ctx, plan); err != nil {
			return nil, err
		}
	default:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rs, err = r.fetch(gctx, plan, stmt)
			return err
		})
		g.Go(func() error {
			var err error
			total, err = r.count(gctx, plan)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if err := r.fetchTails(ctx, rs); err != nil {
		return nil, err
	}
	items, err := r.newShaper(req).items(rs)
	if err != nil {
		return nil, err
	}
	logger.Debug("gist_resolved", logger.WithRequest(ctx, map[string]any{
		"schema": plan.Root.Name,
		"items":  len(items),
		"tails":  len(plan.Tails),
	}))

	if q.Headless {
		return items, nil
	}
	env := newObject()
	env.Set("pager", newPager(q, len(items), total, r.linkBase(req)))
	env.Set(collectionKey(req), items)
	return env, nil
}

func collectionKey(req Request) string {
	if req.Query.Owner != nil {
		return req.Query.Owner.Property
	}
	if req.Schema.Plural != "" {
		return req.Schema.Plural
	}
	return req.Schema.Name
}

func (r *Resolver) fetch(ctx context.Context, plan *planner.Plan, stmt planner.Statement) (*resultSet, error) {
	rows, err := r.exec.All(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return &resultSet{plan: plan, rows: rows}, nil
}

func (r *Resolver) count(ctx context.Context, plan *planner.Plan) (*int, error) {
	stmt, err := planner.CompileCount(plan)
	if err != nil {
		return nil, err
	}
	n, err := r.exec.Count(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// fetchTails loads the nested collections of rs, one query per tail for all
// owners at once. Tails run concurrently; their own tails follow recursively.
func (r *Resolver) fetchTails(ctx context.Context, rs *resultSet) error {
	if len(rs.plan.Tails) == 0 {
		return nil
	}
	sets := make([]*resultSet, len(rs.plan.Tails))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range rs.plan.Tails {
		keys := ownerKeys(rs.rows, t.KeyColumn)
		if len(keys) == 0 {
			sets[i] = &resultSet{plan: t.Plan}
			continue
		}
		g.Go(func() error {
			stmt, err := planner.CompileTail(t, keys)
			if err != nil {
				return err
			}
			child, err := r.fetch(gctx, t.Plan, stmt)
			if err != nil {
				return fmt.Errorf("tail %s: %w", strings.Join(t.Names, "."), err)
			}
			child.owners = make(map[string][][]any)
			for _, row := range child.rows {
				k := keyOf(row[0])
				child.owners[k] = append(child.owners[k], row)
			}
			if err := r.fetchTails(gctx, child); err != nil {
				return err
			}
			sets[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("gist_tail_error", logger.WithRequest(ctx, map[string]any{
			"schema": rs.plan.Root.Name,
			"error":  err.Error(),
		}))
		return err
	}
	rs.tails = make(map[*planner.Tail]*resultSet, len(sets))
	for i, t := range rs.plan.Tails {
		rs.tails[t] = sets[i]
	}
	return nil
}

// ownerKeys lists the distinct non-null values of column col.
func ownerKeys(rows [][]any, col int) []any {
	if col < 0 {
		return nil
	}
	seen := make(map[string]bool, len(rows))
	keys := make([]any, 0, len(rows))
	for _, row := range rows {
		v := row[col]
		if v == nil {
			continue
		}
		k := keyOf(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}
	return slices.Clip(keys)
}

func keyOf(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
