package resolver

import (
	"GistAPI/internal/access"
	"GistAPI/internal/model"
	"GistAPI/internal/planner"
	"GistAPI/internal/query"
)

// Request is one Gist request after parameter parsing.
type Request struct {
	Schema    *model.Model // queried schema, the owner for property requests
	Query     *query.Query
	Principal access.Principal
	// Origin is scheme://host of the incoming request, used for absoluteUrls
	// when no base url is configured.
	Origin string
}

// Options are the process-wide resolver settings.
type Options struct {
	Planner planner.Options
	Prefix  string // API prefix of generated links, e.g. /api
	BaseURL string // GIST_BASE_URL
	Locale  string // fallback locale
}
