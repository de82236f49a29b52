package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// withRequestLog assigns each request a correlation id and logs its
// outcome.
func (s *Server) withRequestLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New()
		start := time.Now()

		next(w, r)

		s.log.Debug().
			Str("request_id", requestID.String()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	}
}
