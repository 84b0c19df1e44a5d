package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wxpppp/garage/pkg/log"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/object"
)

// BucketStore resolves bucket names to configuration snapshots. Bucket
// configuration storage lives outside the ingestion core.
type BucketStore interface {
	EnsureBucket(ctx context.Context, name string, quotas model.BucketQuotas) (*model.Bucket, error)
}

// Server is the S3-compatible HTTP adapter in front of the object core.
type Server struct {
	core          *object.Core
	buckets       BucketStore
	defaultQuotas model.BucketQuotas
	logger        zerolog.Logger
	httpServer    *http.Server
}

// NewServer wires the API server. New buckets are created on first use
// with the given default quotas.
func NewServer(addr string, core *object.Core, buckets BucketStore, defaultQuotas model.BucketQuotas) *Server {
	s := &Server{
		core:          core,
		buckets:       buckets,
		defaultQuotas: defaultQuotas,
		logger:        log.WithComponent("api"),
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the routing handler wrapped with request logging and
// metrics.
func (s *Server) Handler() http.Handler {
	return s.instrument(http.HandlerFunc(s.route))
}

// Start serves until Stop is called. It blocks.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// route dispatches /{bucket}/{key...} requests.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		s.writeError(w, r, object.BadRequest("Missing bucket name"))
		return
	}
	bucketName, key, hasKey := strings.Cut(path, "/")

	bucket, err := s.buckets.EnsureBucket(r.Context(), bucketName, s.defaultQuotas)
	if err != nil {
		s.writeError(w, r, object.InternalError(err))
		return
	}

	if !hasKey || key == "" {
		if r.Method == http.MethodPost && r.URL.Query().Has("delete") {
			s.handleDeleteObjects(w, r, bucket)
			return
		}
		s.writeError(w, r, object.BadRequest("Missing object key"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.handlePut(w, r, bucket, key)
	case http.MethodGet, http.MethodHead:
		s.handleGet(w, r, bucket, key)
	case http.MethodDelete:
		s.handleDelete(w, r, bucket, key)
	default:
		s.writeError(w, r, object.BadRequest("Unsupported method"))
	}
}
