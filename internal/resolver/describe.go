package resolver

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"GistAPI/internal/access"
	"GistAPI/internal/apperr"
	"GistAPI/internal/logger"
	"GistAPI/internal/planner"
)

// Describe statuses.
const (
	StatusOK               = "ok"
	StatusPlanningFailed   = "planning-failed"
	StatusValidationFailed = "validation-failed"
)

// DescribeResult reports how a request would be planned. It never runs a query.
type DescribeResult struct {
	Status    string         `json:"status"`
	HQL       *HQL           `json:"hql,omitempty"`
	Planned   *Planned       `json:"planned,omitempty"`
	Unplanned Unplanned      `json:"unplanned"`
	Error     *DescribeError `json:"error,omitempty"`
}

// HQL holds the statements the executor would run.
type HQL struct {
	Fetch      string `json:"fetch"`
	Parameters []any  `json:"parameters"`
	Count      string `json:"count,omitempty"`
}

type Planned struct {
	Fields  []string `json:"fields"`
	Filters []string `json:"filters"`
	Orders  []string `json:"orders"`
	Summary []string `json:"summary"`
}

// Unplanned echoes the expressions as received.
type Unplanned struct {
	Fields  string   `json:"fields"`
	Filters []string `json:"filters"`
	Orders  string   `json:"orders"`
}

type DescribeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Describe plans req and reports the plan. The statements are included for
// superusers only.
func (r *Resolver) Describe(ctx context.Context, req Request) *DescribeResult {
	q := req.Query
	res := &DescribeResult{
		Status: StatusOK,
		Unplanned: Unplanned{
			Fields:  q.RawFields,
			Filters: q.RawFilter,
			Orders:  q.RawOrder,
		},
	}

	plan, _, err := r.planRequest(req)
	if err == nil && access.CanSeeStatements(req.Principal) {
		res.HQL, err = statements(plan)
	}
	if err != nil {
		res.fail(err)
		logger.Debug("gist_describe_failed", logger.WithRequest(ctx, map[string]any{
			"schema": req.Schema.Name,
			"status": res.Status,
			"error":  err.Error(),
		}))
		return res
	}
	res.Planned = &Planned{
		Fields:  plan.Summary.Fields,
		Filters: plan.Summary.Filters,
		Orders:  plan.Summary.Orders,
		Summary: plan.Summary.Notes,
	}
	return res
}

// DescribeFailure reports a request whose parameters could not be parsed.
func DescribeFailure(values url.Values, err error) *DescribeResult {
	res := &DescribeResult{
		Unplanned: Unplanned{
			Fields:  strings.Join(values["fields"], ","),
			Filters: values["filter"],
			Orders:  strings.Join(values["order"], ","),
		},
	}
	res.fail(err)
	return res
}

func (res *DescribeResult) fail(err error) {
	var validation *apperr.ValidationError
	var denied *apperr.AuthorizationError
	res.Status = StatusPlanningFailed
	if errors.As(err, &validation) || errors.As(err, &denied) {
		res.Status = StatusValidationFailed
	}
	res.HQL, res.Planned = nil, nil
	res.Error = &DescribeError{Type: apperr.Type(err), Message: err.Error()}
}

func statements(plan *planner.Plan) (*HQL, error) {
	fetch, err := planner.Compile(plan)
	if err != nil {
		return nil, err
	}
	hql := &HQL{Fetch: fetch.SQL, Parameters: fetch.Args}
	if hql.Parameters == nil {
		hql.Parameters = []any{}
	}
	if plan.Count {
		count, err := planner.CompileCount(plan)
		if err != nil {
			return nil, err
		}
		hql.Count = count.SQL
	}
	return hql, nil
}
