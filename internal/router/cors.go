package router

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"
)

// withCORS adds CORS headers and answers preflight requests. allowOrigin is a
// comma separated list; "*" or an empty list allows any origin.
func withCORS(allowOrigin string, allowCredentials bool) func(http.Handler) http.Handler {
	origins := parseOrigins(allowOrigin)
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return originAllowed(origins, origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	})
}

func originAllowed(origins []string, origin string) bool {
	if origin == "" {
		return false
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return true
	}
	return slices.Contains(origins, origin)
}

func parseOrigins(allowOrigin string) []string {
	parts := strings.Split(allowOrigin, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		res = append(res, p)
	}
	return res
}
