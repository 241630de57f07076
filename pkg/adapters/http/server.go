// Package http serves the engine over REST, server-sent events and
// WebSocket. Requests under /api are checked against the embedded OpenAPI
// document before any handler runs.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/droverlabs/drover"
	"github.com/droverlabs/drover/api"
	"github.com/droverlabs/drover/internal/logging"
	"github.com/droverlabs/drover/pkg/observability"
	"github.com/droverlabs/drover/pkg/supervisor"
)

// Server wires a supervisor into the HTTP surface.
type Server struct {
	sup        *supervisor.Supervisor
	watch      *observability.Aggregator
	logger     *slog.Logger
	origins    []string
	registry   prometheus.Gatherer
	validate   func(http.Handler) http.Handler
	apiVersion string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAllowedOrigins restricts CORS and WebSocket upgrades to the given
// origins. The default allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithMetricsRegistry mounts /metrics backed by the given gatherer.
func WithMetricsRegistry(reg prometheus.Gatherer) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// NewServer creates the HTTP server around a supervisor.
func NewServer(sup *supervisor.Supervisor, opts ...Option) (*Server, error) {
	if sup == nil {
		return nil, errors.New("supervisor is required")
	}

	s := &Server{
		sup:     sup,
		watch:   observability.NewAggregator(sup.Events()),
		logger:  logging.NewNop(),
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, validate, err := newValidator(api.OpenAPI)
	if err != nil {
		return nil, err
	}
	s.validate = validate
	if doc.Info != nil {
		s.apiVersion = doc.Info.Version
	}
	return s, nil
}

// Handler assembles the router: operational endpoints at the root, the REST
// surface under /api behind request validation, and the two event channels.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/openapi.yaml", s.getOpenAPI)
	r.Get("/swagger", s.getSwagger)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.validate)
		r.Post("/agents/execute", s.execute)
		r.Get("/conversations", s.listConversations)
		r.Get("/conversations/{id}", s.getConversation)
		r.Delete("/conversations/{id}", s.deleteConversation)
		r.Get("/conversations/{id}/checkpoints", s.listCheckpoints)
		r.Get("/events", s.subscribeEvents)
	})

	r.Get("/ws/agent-updates/{client_id}", s.agentUpdates)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := s.allowOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	for _, o := range s.origins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "drover-http",
		"version":     strings.TrimSpace(drover.Version),
		"api_version": s.apiVersion,
	})
}

func (s *Server) getOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml")
	w.Write(api.OpenAPI)
}

func (s *Server) getSwagger(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(swaggerHTML))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Drover API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`
