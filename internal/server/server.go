package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/natalia/scriptforge/internal/pipeline"
	"github.com/natalia/scriptforge/internal/types"
)

// Service is the pipeline surface the HTTP layer exposes. Implemented by
// pipeline.Controller.
type Service interface {
	Trigger(ctx context.Context, ownerID uuid.UUID, sourceRef string, contentType types.ContentType) (*types.PipelineItem, error)
	Retry(ctx context.Context, ownerID, itemID uuid.UUID) (*types.PipelineItem, error)
	Reset(ctx context.Context, ownerID, itemID uuid.UUID) error
	Cancel(ctx context.Context, ownerID, itemID uuid.UUID) error
	GetProgress(ctx context.Context, ownerID, itemID uuid.UUID) (*pipeline.Progress, error)
	GetItem(ctx context.Context, ownerID, itemID uuid.UUID) (*types.PipelineItem, error)
	ListItems(ctx context.Context, ownerID uuid.UUID) ([]*types.PipelineItem, error)

	SubmitRevision(ctx context.Context, ownerID, scriptID uuid.UUID, feedback string, targetSceneIDs []string) (*types.PipelineItem, error)
	Approve(ctx context.Context, ownerID, scriptID uuid.UUID) error
	RejectScript(ctx context.Context, ownerID, scriptID uuid.UUID, reasonCategory, reasonText string) error
	GetScript(ctx context.Context, ownerID, scriptID uuid.UUID) (*types.Script, error)
	ListScripts(ctx context.Context, ownerID uuid.UUID) ([]*types.Script, error)
	VersionHistory(ctx context.Context, ownerID, scriptID uuid.UUID) ([]*types.ScriptVersion, error)
	CurrentVersion(ctx context.Context, ownerID, scriptID uuid.UUID) (*types.ScriptVersion, error)
}

// CredentialWriter stores provider secrets for an owner.
type CredentialWriter interface {
	Put(ctx context.Context, ownerID uuid.UUID, provider, secret string) error
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	service    Service
	creds      CredentialWriter
	pinger     Pinger
	jwtService *JWTService
	logger     *slog.Logger
}

// Config holds server configuration
type Config struct {
	ListenAddr string
	JWTSecret  string
	Registry   *prometheus.Registry
}

// New creates a new server instance
func New(cfg Config, service Service, creds CredentialWriter, pinger Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		service:    service,
		creds:      creds,
		pinger:     pinger,
		jwtService: NewJWTService(cfg.JWTSecret),
		logger:     logger,
	}

	mux := http.NewServeMux()

	// Pipeline item endpoints
	mux.HandleFunc("POST /items", s.withOwner(s.handleTrigger))
	mux.HandleFunc("GET /items", s.withOwner(s.handleListItems))
	mux.HandleFunc("GET /items/{id}", s.withOwner(s.handleGetItem))
	mux.HandleFunc("GET /items/{id}/progress", s.withOwner(s.handleGetProgress))
	mux.HandleFunc("POST /items/{id}/retry", s.withOwner(s.handleRetryItem))
	mux.HandleFunc("POST /items/{id}/reset", s.withOwner(s.handleResetItem))
	mux.HandleFunc("POST /items/{id}/cancel", s.withOwner(s.handleCancelItem))

	// Script endpoints
	mux.HandleFunc("GET /scripts", s.withOwner(s.handleListScripts))
	mux.HandleFunc("GET /scripts/{id}", s.withOwner(s.handleGetScript))
	mux.HandleFunc("GET /scripts/{id}/versions", s.withOwner(s.handleListVersions))
	mux.HandleFunc("GET /scripts/{id}/current", s.withOwner(s.handleCurrentVersion))
	mux.HandleFunc("POST /scripts/{id}/revisions", s.withOwner(s.handleSubmitRevision))
	mux.HandleFunc("POST /scripts/{id}/approve", s.withOwner(s.handleApproveScript))
	mux.HandleFunc("POST /scripts/{id}/reject", s.withOwner(s.handleRejectScript))

	// Credential endpoint
	mux.HandleFunc("PUT /credentials/{provider}", s.withOwner(s.handlePutCredential))

	// Operational endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	if cfg.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the server until it is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ownerHandler is an authenticated handler with the owner resolved from the
// bearer token.
type ownerHandler func(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID)

func (s *Server) withOwner(next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, &ErrUnauthorized{})
			return
		}
		claims, err := s.jwtService.ValidateToken(token)
		if err != nil {
			s.logger.Debug("token rejected", "error", err)
			s.writeError(w, &ErrUnauthorized{})
			return
		}
		if claims.OwnerID == uuid.Nil {
			s.writeError(w, &ErrUnauthorized{})
			return
		}
		next(w, r, claims.OwnerID)
	}
}
