package api

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"voting-workflow/identity"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// requireCaller resolves the caller from the bearer token and stores it in
// the request context.
func (s *Server) requireCaller(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "missing bearer token")
			return
		}

		caller, err := s.auth.Tokens().Parse(token)
		if err != nil {
			s.logger.Debug("rejected session token", zap.Error(err))
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid or expired session token")
			return
		}

		next(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
	})
}
