// Package http provides HTTP middleware for the budget data gateway.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/txn2/budget-data-gateway/pkg/auth"
)

// APIKeyHeader carries the facade caller credential: an API key or a JWT.
// Authorization: Bearer is reserved for the warehouse token on /connect.
const APIKeyHeader = "X-API-Key"

// AuthMiddleware authenticates the caller from the X-API-Key header and
// adds the caller to the request context. Rejected requests get a 401 JSON
// error envelope.
func AuthMiddleware(authn auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token := r.Header.Get(APIKeyHeader); token != "" {
				ctx = auth.WithToken(ctx, token)
			}

			caller, err := authn.Authenticate(ctx)
			if err != nil {
				slog.Debug("rejected facade caller", "path", r.URL.Path, "error", err)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithCaller(ctx, caller)))
		})
	}
}

// RequireRole rejects callers lacking any of roles with 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := auth.GetCaller(r.Context())
			if caller == nil {
				unauthorized(w)
				return
			}
			for _, role := range roles {
				if caller.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Forbidden")
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `ApiKey header="`+APIKeyHeader+`"`)
	writeError(w, http.StatusUnauthorized, "Unauthorized")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": true, "message": message})
}
