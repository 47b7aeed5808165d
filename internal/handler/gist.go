// Package handler serves the Gist HTTP endpoints.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"GistAPI/internal/apperr"
	"GistAPI/internal/auth"
	"GistAPI/internal/logger"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
	"GistAPI/internal/resolver"
)

// Runner executes planned Gist requests.
type Runner interface {
	Run(ctx context.Context, req resolver.Request) (any, error)
	Describe(ctx context.Context, req resolver.Request) *resolver.DescribeResult
}

type GistHandler struct {
	runner   Runner
	defaults query.Defaults
}

func NewGistHandler(runner Runner, defaults query.Defaults) *GistHandler {
	return &GistHandler{runner: runner, defaults: defaults}
}

// List serves GET /{resource}/gist.
func (h *GistHandler) List(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "", "")
}

// Object serves GET /{resource}/{id}/gist.
func (h *GistHandler) Object(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "id"), "")
}

// Property serves GET /{resource}/{id}/{property}/gist.
func (h *GistHandler) Property(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "property"))
}

func (h *GistHandler) serve(w http.ResponseWriter, r *http.Request, id, property string) {
	ctx := r.Context()
	values := r.URL.Query()

	m, err := lookupResource(chi.URLParam(r, "resource"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := query.FromValues(values, h.defaults)
	if err != nil {
		if query.DescribeRequested(values) {
			writeJSON(w, r, http.StatusOK, resolver.DescribeFailure(values, err))
			return
		}
		writeError(w, r, err)
		return
	}
	q.RequestURL = r.URL.RequestURI()
	if property != "" {
		q.Owner = &query.Owner{Schema: m.Name, ID: id, Property: property}
	} else {
		q.ObjectID = id
	}

	req := resolver.Request{
		Schema:    m,
		Query:     q,
		Principal: auth.PrincipalFromContext(ctx),
		Origin:    requestOrigin(r),
	}

	logger.Debug("gist_request", logger.WithRequest(ctx, map[string]any{
		"schema":   m.Name,
		"id":       id,
		"property": property,
		"user":     req.Principal.Username,
		"fields":   q.RawFields,
		"filter":   q.RawFilter,
		"order":    q.RawOrder,
	}))

	if q.Describe {
		writeJSON(w, r, http.StatusOK, h.runner.Describe(ctx, req))
		return
	}

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func lookupResource(resource string) (*model.Model, error) {
	reg := model.Registry()
	if reg == nil {
		return nil, apperr.ErrExecution(nil, "Schema registry is not loaded")
	}
	m, ok := reg.ByPlural(resource)
	if !ok {
		return nil, apperr.ErrNotFound("Resource `%s` does not exist.", resource)
	}
	return m, nil
}

// requestOrigin is scheme://host of r as seen by the client.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = strings.TrimSpace(strings.Split(h, ",")[0])
	}
	return scheme + "://" + host
}
