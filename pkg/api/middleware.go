package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wxpppp/garage/pkg/metrics"
	"github.com/wxpppp/garage/pkg/object"
)

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps a handler with request IDs, structured logging and
// Prometheus instrumentation.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("x-amz-request-id", requestID)

		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, http.StatusText(rec.status)).Inc()

		s.logger.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", timer.Duration()).
			Msg("Request handled")
	})
}

// writeError maps a core error to its HTTP status and S3 error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := object.CodeOf(err)
	if code == object.CodeInternal {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}

	body, merr := toXMLWithHeader(&ErrorResponse{
		Code:      code.AWSCode(),
		Message:   object.MessageOf(err),
		RequestID: w.Header().Get("x-amz-request-id"),
	})
	if merr != nil {
		http.Error(w, object.MessageOf(err), code.HTTPStatus())
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(code.HTTPStatus())
	w.Write(body)
}
