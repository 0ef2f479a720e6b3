// Package httptransport is the boundary layer: it parses requests, maps
// coded domain errors onto HTTP statuses, and keeps every business decision
// inside the identity and vendorapp services.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mercato/internal/auth/loginstate"
	identityservice "mercato/internal/identity/service"
	vendorservice "mercato/internal/vendorapp/service"
)

// Handler bundles the services the router exposes.
type Handler struct {
	identity   *identityservice.Service
	vendor     *vendorservice.Service
	loginState loginstate.Store
	documents  vendorservice.DocumentStore
	// assertionKey verifies provider-issued assertion JWTs; adminKey
	// verifies admin bearer tokens.
	assertionKey []byte
	adminKey     []byte
	logger       *slog.Logger
}

func NewHandler(identity *identityservice.Service, vendor *vendorservice.Service, loginState loginstate.Store, documents vendorservice.DocumentStore, assertionKey, adminKey []byte, logger *slog.Logger) *Handler {
	return &Handler{
		identity:     identity,
		vendor:       vendor,
		loginState:   loginState,
		documents:    documents,
		assertionKey: assertionKey,
		adminKey:     adminKey,
		logger:       logger,
	}
}

// NewRouter wires all routes.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestContext)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/federated/start", h.handleFederatedStart)
		r.Post("/federated/callback", h.handleFederatedCallback)
	})

	r.Route("/vendor", func(r chi.Router) {
		r.Post("/applications", h.handleSubmitApplication)
		r.Get("/accounts/{accountID}/application", h.handleGetApplication)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.AdminAuth)
		r.Delete("/accounts/{accountID}", h.handleDeleteAccount)
		r.Post("/maintenance/orphan-sweep", h.handleOrphanSweep)
		r.Route("/applications/{applicationID}", func(r chi.Router) {
			r.Post("/approve", h.handleApprove)
			r.Post("/reject", h.handleReject)
			r.Get("/suspension-preview", h.handleSuspensionPreview)
			r.Post("/suspend", h.handleSuspend)
			r.Post("/reapply", h.handleReapply)
			r.Post("/resubmit", h.handleResubmit)
		})
	})

	return r
}
