package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelrunner/internal/registry"
	"modelrunner/internal/runner"
	"modelrunner/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *manager.Manager implements it.
type Service interface {
	Entries() []registry.Entry
	Cached(id string) (runner.Runner, bool)
	Resolve(ctx context.Context, id string) (runner.Runner, error)
	Unload(id string) error
	Status() types.StatusResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Content-Type", "Authorization", "X-Log-Level"}),
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc}
	r.With(inflight).Get("/models", h.listModels)
	r.With(inflight).Get("/models/{id}", h.getModel)
	r.With(inflight).Post("/models/{id}/unload", h.unloadModel)
	r.With(inflight).Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})
	r.With(inflight, rateLimit).Post("/generate", h.generate)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no models"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

type handlers struct {
	svc Service
}

func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	entries := h.svc.Entries()
	out := types.ModelsResponse{Models: make([]types.Model, 0, len(entries))}
	for _, e := range entries {
		rn, _ := h.svc.Cached(e.ID)
		out.Models = append(out.Models, ModelInfo(e, rn))
	}
	writeJSON(w, out)
}

// getModel resolves the runner, initializing it if needed, and returns its
// capabilities.
func (h *handlers) getModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rn, err := h.svc.Resolve(r.Context(), id)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, rn.Capabilities())
}

func (h *handlers) unloadModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Unload(id); err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	log := reqLogger(r)
	log.Info().Str("model", id).Msg("unload")
	w.WriteHeader(http.StatusNoContent)
}

// ModelInfo summarizes an entry; rn is the cached runner or nil.
func ModelInfo(e registry.Entry, rn runner.Runner) types.Model {
	caps := e.Capabilities()
	m := types.Model{
		ID:           e.ID,
		Backend:      e.Backend,
		Family:       caps.Family,
		ParamsB:      caps.ParamsB,
		Quantization: caps.Quantizations,
		Endpoint:     e.Endpoint(),
		Path:         e.ArtifactPath(),
		License:      e.License,
		Modalities:   []string{},
	}
	for _, mod := range []runner.Modality{runner.ModalityText, runner.ModalityVision, runner.ModalityAudio} {
		if caps.Supports(mod) {
			m.Modalities = append(m.Modalities, string(mod))
		}
	}
	if rn != nil {
		m.Loaded = true
		m.Ready = rn.Ready()
	}
	return m
}

func rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l := generateLimiter; l != nil && !l.Allow() {
			IncrementBackpressure("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
