// Package api serves the HTTP surface used by the browser extension and the
// dashboard: file CRUD, lead intake, progress polling and exports.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/pipeline"
	"github.com/sells-group/lead-enricher/internal/store"
)

// Intaker stores submitted leads and starts their enrichment.
type Intaker interface {
	Intake(ctx context.Context, req pipeline.ExtractRequest) (*pipeline.ExtractResponse, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Metrics        http.Handler
}

// Server holds the handler dependencies.
type Server struct {
	store   store.Store
	intake  Intaker
	metrics http.Handler
	origins []string
}

// NewServer creates a Server.
func NewServer(st store.Store, intake Intaker, opts Options) *Server {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		store:   st,
		intake:  intake,
		metrics: opts.Metrics,
		origins: origins,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/files", func(r chi.Router) {
		r.Get("/", s.listFiles)
		r.Post("/", s.createFile)
		r.Get("/{fileId}", s.getFile)
		r.Get("/{fileId}/leads", s.listLeads)
	})
	r.Get("/leads/{leadId}", s.getLead)

	r.Route("/extraction", func(r chi.Router) {
		r.Post("/extract", s.extract)
		r.Get("/status/{fileId}", s.status)
	})

	r.Route("/export", func(r chi.Router) {
		r.Get("/csv/{fileId}", s.exportCSV)
		r.Get("/xlsx/{fileId}", s.exportXLSX)
	})

	return r
}

// requestLogger logs one line per request at debug level, and at warn for
// server errors.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if ww.Status() >= http.StatusInternalServerError {
			zap.L().Warn("api: request failed", fields...)
			return
		}
		zap.L().Debug("api: request", fields...)
	})
}
