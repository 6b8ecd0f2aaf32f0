// Package middleware provides HTTP middleware for the docdesk API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

var (
	allowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	allowedHeaders = []string{"Content-Type", "X-Request-Id"}
)

// CORS returns middleware that handles CORS headers. A "*" entry admits any
// origin without credentials; explicitly listed origins also get
// Access-Control-Allow-Credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := false
	explicit := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		explicit[strings.TrimRight(o, "/")] = struct{}{}
	}
	isExplicit := func(origin string) bool {
		_, ok := explicit[strings.TrimRight(origin, "/")]
		return ok
	}

	// Echoing a wildcard match with credentials enables CSRF, so the two
	// cases use separate policies.
	credentialed := cors.New(cors.Options{
		AllowOriginFunc:      isExplicit,
		AllowedMethods:       allowedMethods,
		AllowedHeaders:       allowedHeaders,
		AllowCredentials:     true,
		OptionsSuccessStatus: http.StatusOK,
	})
	open := cors.New(cors.Options{
		AllowOriginFunc:      func(string) bool { return wildcard },
		AllowedMethods:       allowedMethods,
		AllowedHeaders:       allowedHeaders,
		OptionsSuccessStatus: http.StatusOK,
	})

	return func(next http.Handler) http.Handler {
		withCredentials := credentialed.Handler(next)
		withoutCredentials := open.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExplicit(r.Header.Get("Origin")) {
				withCredentials.ServeHTTP(w, r)
				return
			}
			withoutCredentials.ServeHTTP(w, r)
		})
	}
}
