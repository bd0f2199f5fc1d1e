package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"shop-pricing/core/principal"
	"shop-pricing/internal/errors"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware echoes a caller-supplied request id or assigns one
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the bearer token into a principal and stores it
// in the request context. The tenant check itself happens in the engine.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
			s.writeError(w, r, errors.Unauthenticated("missing bearer token", nil))
			return
		}

		p, err := s.auth.Resolve(strings.TrimSpace(header[7:]))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(principal.NewContext(r.Context(), p)))
	})
}

// caller returns the authenticated principal and the tenant in the path
func caller(r *http.Request) (principal.Principal, string) {
	p, _ := principal.FromContext(r.Context())
	return p, mux.Vars(r)["tenantID"]
}
