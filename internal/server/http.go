// Package server exposes daemon status, on-demand sync and metrics over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/p4th0r/sitefence/internal/daemon"
	"github.com/p4th0r/sitefence/internal/engine"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Syncer is the daemon surface the routes need.
type Syncer interface {
	Sync(ctx context.Context) (*engine.Result, error)
	Status() daemon.Status
}

type api struct {
	syncer Syncer
}

type syncResponse struct {
	Result        string   `json:"result"`
	Error         string   `json:"error,omitempty"`
	Domains       []string `json:"domains,omitempty"`
	Entries       int      `json:"entries"`
	NewlyBlocked  int      `json:"newly_blocked"`
	HostsChanged  bool     `json:"hosts_changed"`
	AnchorChanged bool     `json:"anchor_changed"`
}

// NewRouter returns the HTTP routes.
func NewRouter(s Syncer) *chi.Mux {
	a := &api{syncer: s}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", a.health)
	r.Get("/status", a.status)
	r.Post("/sync", a.sync)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve runs the HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler, logger *logging.StderrLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Status server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.syncer.Status())
}

func (a *api) sync(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not kill the privileged command mid-way.
	res, err := a.syncer.Sync(context.WithoutCancel(r.Context()))
	if errors.Is(err, daemon.ErrCycleInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	resp := syncResponse{Result: engine.Outcome(res, err)}
	code := http.StatusOK
	switch {
	case engine.IsCanceled(err):
		resp.Error = err.Error()
		code = http.StatusForbidden
	case err != nil:
		resp.Error = err.Error()
		code = http.StatusInternalServerError
	default:
		resp.Domains = res.Domains
		resp.Entries = res.Addresses.Len()
		resp.NewlyBlocked = res.NewlyBlocked.Len()
		resp.HostsChanged = res.HostsChanged
		resp.AnchorChanged = res.AnchorChanged
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
