package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/metrics"
)

// NewOpsRouter serves liveness and Prometheus metrics for operators.
//
//	GET /healthz  pings the database and Redis
//	GET /metrics  Prometheus exposition
func NewOpsRouter(appCtx *app.AppContext, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"db": "ok", "redis": "ok"}
		code := http.StatusOK

		if sqlDB, err := appCtx.DB.DB(); err != nil {
			checks["db"] = err.Error()
			code = http.StatusServiceUnavailable
		} else if err := sqlDB.PingContext(ctx); err != nil {
			checks["db"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := appCtx.RedisCache.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(checks)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	return r
}

// StartOpsServer serves h on addr until ctx ends and returns after shutdown
// has finished.
func StartOpsServer(ctx context.Context, appCtx *app.AppContext, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownDone := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		shutdownDone <- srv.Shutdown(shutdownCtx)
	}()

	appCtx.Logger.Info("ops server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownDone
}
