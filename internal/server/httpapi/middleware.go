package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type ctxKey string

const ctxUserKey ctxKey = "user"

// extractBearer pulls the token out of an "Authorization: Bearer ..." header.
func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// requireAuth resolves the bearer token to a user and stores it in the
// request context. Requests without a valid token never reach next.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			writeError(w, common.ErrorUnauthorized, "Authorization token required")
			return
		}

		user, err := s.users.ResolveToken(r.Context(), token)
		if err != nil {
			msg := ""
			if errors.Is(err, common.ErrorUnauthorized) {
				msg = "Invalid or expired token"
			}
			writeError(w, err, msg)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserKey, user)
		next(w, r.WithContext(ctx))
	})
}

// currentUser returns the user stored by requireAuth. It panics when called
// outside an authenticated route, which is a routing bug.
func currentUser(r *http.Request) *models.User {
	return r.Context().Value(ctxUserKey).(*models.User)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start).String())
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error(r.Context(), "panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, common.ErrorInternal, "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
