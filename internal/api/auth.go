package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/stacklok/biblio-sync/internal/api/common"
)

// requireAdminToken rejects requests without the configured bearer token.
// An empty token disables the check.
func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="biblio-sync"`)
				common.WriteErrorResponse(w, "missing or invalid admin token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
