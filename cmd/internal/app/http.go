package app

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (a *App) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(WithRequestLogging(a.log))
	r.Use(a.metrics.Middleware)
	r.Use(WithSecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		rep := a.health.Report(r.Context())
		status := http.StatusOK
		if !rep.OK {
			status = http.StatusServiceUnavailable
			a.log.Info("readyz.not_ready", "checks", rep.Checks)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(rep)
	})

	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	a.auth.Routes(r)
	return r
}
