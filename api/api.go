// Package api serves discovery state over HTTP.
//
//	GET /healthz
//	GET /metrics
//	GET /v1/sources
//	GET /v1/sources/{source}/devices
//	GET /v1/sources/{source}/devices/{key}
//
// A device lookup is answered from the cache when possible and probes the
// network on a miss.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dailyyoga/netdisco/discovery"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Backend is implemented by *discovery.Manager
type Backend interface {
	Sources() []string
	Probe(ctx context.Context, source, key string) (discovery.ProbeResult, error)
	Snapshot(ctx context.Context, source string) (discovery.SnapshotResult, error)
}

type handler struct {
	log     logger.Logger
	backend Backend
}

// NewRouter builds the HTTP routes. metrics may be nil.
func NewRouter(log logger.Logger, backend Backend, metrics http.Handler) http.Handler {
	h := &handler{log: log.Named("api"), backend: backend}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.Route("/v1/sources", func(r chi.Router) {
		r.Get("/", h.listSources)
		r.Get("/{source}/devices", h.listDevices)
		r.Get("/{source}/devices/{key}", h.getDevice)
	})
	return r
}

func (h *handler) listSources(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"sources": h.backend.Sources()})
}

func (h *handler) listDevices(w http.ResponseWriter, r *http.Request) {
	res, err := h.backend.Snapshot(r.Context(), chi.URLParam(r, "source"))
	switch {
	case err == nil:
	case res.Version > 0 && !errors.Is(err, discovery.ErrUnknownSource):
		// the refresh failed but an earlier snapshot is retained
		w.Header().Set("Warning", `110 - "response is stale"`)
	default:
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *handler) getDevice(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, discovery.ErrInvalidKey)
		return
	}
	res, err := h.backend.Probe(r.Context(), chi.URLParam(r, "source"), key)
	if err != nil && !res.Found {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Found {
		status = http.StatusNotFound
	}
	h.writeJSON(w, status, res)
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, discovery.ErrUnknownSource):
		return http.StatusNotFound
	case errors.Is(err, discovery.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, taskcache.ErrProbeTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, taskcache.ErrProbeCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, taskcache.ErrProbeFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	h.writeJSON(w, status, errorBody{Error: err.Error(), Status: status})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", zap.Error(err))
	}
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
