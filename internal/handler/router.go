package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter はルーターを生成する。
func NewRouter(h *ShieldHandler, otelEnabled bool) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// ルート定義
	r.Route("/v1/shields", func(r chi.Router) {
		r.Post("/", h.CreateShield)
		r.Get("/", h.ListShields)
		r.Get("/{shield_id}", h.GetShield)
		r.Get("/{shield_id}/verify", h.VerifyShield)
		r.Get("/{shield_id}/provenance", h.GetProvenance)
		r.Post("/{shield_id}/provenance", h.AddProvenanceEvent)
		r.Get("/{shield_id}/compliance", h.CheckCompliance)
	})
	r.Route("/v1/migration", func(r chi.Router) {
		r.Get("/", h.GetMigration)
		r.Post("/", h.Migrate)
	})
	r.Get("/v1/audit/anchors", h.AuditAnchors)

	if otelEnabled {
		return otelhttp.NewHandler(r, "quantum-shield-service")
	}
	return r
}
