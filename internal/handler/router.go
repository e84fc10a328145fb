package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"db-updater/config"
	"db-updater/internal/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(h *UpdateHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	// ルート定義
	r.Get("/healthz", h.Healthz)
	r.Route("/v1/updates", func(r chi.Router) {
		r.Get("/", h.ListApplied)
		r.Get("/includes", h.ListIncludeDirectories)
		r.Get("/status", h.GetStatus)
	})

	if cfg.OtelEnabled {
		return otelhttp.NewHandler(r, cfg.OtelServiceName)
	}
	return r
}
