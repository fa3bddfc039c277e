// ABOUTME: HTTP middleware: per-request proxy context, bearer-token auth, role checks.
// ABOUTME: Auth failures answer with the wp_proxy error envelope, never plain text.

package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/techwithwayne/postpress-gateway/internal/auth"
	"github.com/techwithwayne/postpress-gateway/internal/proxy"
)

// endpoint attaches the per-request proxy context: the endpoint name, the
// caller-context header, and a correlation id minted when the caller sent
// none.
func (s *Server) endpoint(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		info := &proxy.RequestInfo{
			Endpoint:  name,
			RequestID: requestID,
			View:      r.Header.Get("X-PPA-View"),
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(proxy.WithRequest(r.Context(), info)))
	})
}

// requireEditor authenticates the bearer token and requires a role allowed
// to use the content proxy.
func (s *Server) requireEditor(next http.HandlerFunc) http.HandlerFunc {
	return s.requireRole(next, func(a *auth.AuthContext) bool { return a.CanProxy() })
}

// requireAdmin requires the administrator role.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireRole(next, func(a *auth.AuthContext) bool { return a.IsAdmin() })
}

func (s *Server) requireRole(next http.HandlerFunc, allowed func(*auth.AuthContext) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, r, proxy.CodeForbidden, http.StatusForbidden, map[string]any{
				"reason": "token_invalid_or_missing",
			})
			return
		}

		claims, err := auth.ValidateToken(s.cfg.Auth.JWTSecret, token)
		if err != nil {
			s.writeError(w, r, proxy.CodeForbidden, http.StatusForbidden, map[string]any{
				"reason": "token_invalid_or_missing",
			})
			return
		}

		authCtx := &auth.AuthContext{
			Subject:  claims.Subject,
			Username: claims.Username,
			Roles:    claims.Roles,
		}
		if !allowed(authCtx) {
			s.writeError(w, r, proxy.CodeForbidden, http.StatusForbidden, map[string]any{
				"reason": "capability_missing",
			})
			return
		}

		next(w, r.WithContext(auth.WithAuth(r.Context(), authCtx)))
	}
}

// handleMethodNotAllowed answers any verb mismatch on a known route.
func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, proxy.CodeMethodNotAllowed, http.StatusMethodNotAllowed, map[string]any{
		"reason": "non_post",
		"method": r.Method,
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
