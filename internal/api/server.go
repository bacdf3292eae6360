// Package api exposes scenes over HTTP: JSON endpoints for every graph
// operation plus a Server-Sent Events stream of scene notifications.
package api

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/scene"
	"github.com/rendis/nodeflow/internal/style"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Scenes *scene.Manager
	Style  style.Style
	// BinDir is searched for a mermaid-ascii binary used by the ascii export.
	BinDir string
	Logger *slog.Logger
	// Autosave, when set, is reported by /health.
	Autosave AutosaveStatus
}

// AutosaveStatus reports the autosave schedule. Satisfied by
// *scheduler.Autosaver.
type AutosaveStatus interface {
	LastRun() (time.Time, int)
	NextRun(from time.Time) time.Time
}

// Server serves the scene API.
type Server struct {
	deps Deps
}

// NewServer creates a new Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/models", s.handleListModels)
		r.Get("/converters", s.handleListConverters)
		r.Get("/style", s.handleStyle)
		r.Get("/events/stream", s.handleSSEGlobal)

		r.Get("/scenes", s.handleListScenes)
		r.Post("/scenes", s.handleCreateScene)
		r.Post("/scenes/hcl", s.handleImportHCL)
		r.Post("/scenes/open", s.handleOpenScene)
		r.Post("/scenes/validate", s.handleValidateDocument)

		r.Route("/scenes/{scene}", func(r chi.Router) {
			r.Get("/", s.handleGetScene)
			r.Patch("/", s.handleRenameScene)
			r.Delete("/", s.handleDeleteScene)
			r.Post("/save", s.handleSaveScene)
			r.Post("/close", s.handleCloseScene)
			r.Post("/clear", s.handleClearScene)
			r.Put("/document", s.handleLoadDocument)
			r.Get("/validate", s.handleValidateScene)
			r.Get("/revisions", s.handleListRevisions)
			r.Post("/revert", s.handleRevert)
			r.Get("/events", s.handleListEvents)
			r.Get("/stream", s.handleSSEScene)
			r.Get("/export", s.handleExport)

			r.Get("/nodes", s.handleListNodes)
			r.Post("/nodes", s.handleAddNode)
			r.Get("/nodes/{node}", s.handleGetNode)
			r.Patch("/nodes/{node}", s.handleUpdateNode)
			r.Delete("/nodes/{node}", s.handleRemoveNode)
			r.Post("/selection/delete", s.handleDeleteSelection)

			r.Get("/connections", s.handleListConnections)
			r.Post("/connections", s.handleConnect)
			r.Delete("/connections/{connection}", s.handleRemoveConnection)
		})
	})

	return r
}

// requestLogger logs each request through slog with the chi request id
// attached to the context for correlation.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logging.WithRequestID(ctx, id)
			r = r.WithContext(ctx)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.deps.Logger.DebugContext(ctx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"scenes": len(s.deps.Scenes.List()),
	}
	if a := s.deps.Autosave; a != nil {
		last, saved := a.LastRun()
		autosave := map[string]any{"next_run": a.NextRun(time.Now())}
		if !last.IsZero() {
			autosave["last_run"] = last
			autosave["last_saved"] = saved
		}
		resp["autosave"] = autosave
	}
	writeJSON(w, http.StatusOK, resp)
}
