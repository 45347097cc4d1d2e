// Package routes exposes plan moves, proposals and load classification over HTTP.
package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	appmw "github.com/briangreenhill/formcoach/internal/http/middleware"
	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/plan"
	"github.com/briangreenhill/formcoach/internal/proposal"
)

// EvaluationQueue hands snapshots to the worker.
type EvaluationQueue interface {
	EnqueueEvaluation(ctx context.Context, athleteID, cycleTag string, snapshots []load.Snapshot) (string, error)
}

type Metrics interface {
	appmw.RequestObserver
	Handler() http.Handler
}

type Server struct {
	Router     *chi.Mux
	Plans      plan.Store
	Mover      *plan.Mover
	Engine     *proposal.Engine
	Classifier *load.Classifier
	Queue      EvaluationQueue // nil evaluates inline
	Ping       func(ctx context.Context) error
	Log        zerolog.Logger
}

type ServerOptions struct {
	Plans      plan.Store
	Mover      *plan.Mover
	Engine     *proposal.Engine
	Classifier *load.Classifier
	Queue      EvaluationQueue
	Metrics    Metrics
	Ping       func(ctx context.Context) error
	Log        zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)
	if opts.Metrics != nil {
		r.Use(appmw.Metrics(opts.Metrics))
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	s := &Server{
		Router:     r,
		Plans:      opts.Plans,
		Mover:      opts.Mover,
		Engine:     opts.Engine,
		Classifier: opts.Classifier,
		Queue:      opts.Queue,
		Ping:       opts.Ping,
		Log:        opts.Log,
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/cycles/{cycleTag}", func(cr chi.Router) {
		cr.Get("/", s.handleGetPlan)
		cr.Get("/history", s.handleHistory)
		cr.Get("/proposals", s.handlePendingProposals)
		cr.With(appmw.RequireJSON).Put("/sessions/move", s.handleMove)
		cr.With(appmw.RequireJSON).Post("/snapshots", s.handleSnapshots)
	})

	r.Route("/proposals/{proposalID}", func(pr chi.Router) {
		pr.Use(appmw.RequireJSON)
		pr.Get("/", s.handleGetProposal)
		pr.Post("/select", s.handleSelect)
		pr.Post("/lock", s.handleLock)
		pr.Post("/confirm", s.handleConfirm)
		pr.Post("/cancel", s.handleCancel)
	})

	r.With(appmw.RequireJSON).Post("/classify", s.handleClassify)

	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("health check failed")
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("writing response")
	}
}
