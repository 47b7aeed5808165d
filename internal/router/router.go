package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"GistAPI/internal/auth"
	"GistAPI/internal/config"
	"GistAPI/internal/handler"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Config *config.Config
	Gist   *handler.GistHandler
	// Validator is nil when authentication is disabled.
	Validator *auth.JWTValidator
}

// New builds the routes of the Gist API:
//
//	GET /health
//	GET {prefix}/{resource}/gist
//	GET {prefix}/{resource}/{id}/gist
//	GET {prefix}/{resource}/{id}/{property}/gist
func New(d Deps) http.Handler {
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(withRequestID)
	r.Use(withLogging)
	r.Use(withCORS(cfg.CORS.AllowOrigin, cfg.CORS.AllowCredentials))
	if cfg.RateLimit.RequestsPerSecond > 0 {
		r.Use(withRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}

	r.Get("/health", handler.Health)

	gist := func(r chi.Router) {
		r.Use(withAuth(cfg.Auth.Enabled, d.Validator))
		r.Get("/{resource}/gist", d.Gist.List)
		r.Get("/{resource}/{id}/gist", d.Gist.Object)
		r.Get("/{resource}/{id}/{property}/gist", d.Gist.Property)
	}
	if prefix := strings.TrimRight(cfg.APIPrefix, "/"); prefix != "" {
		r.Route(prefix, gist)
	} else {
		r.Group(gist)
	}
	return r
}
