package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/clinaudit/internal/api/v1"
	"github.com/gosuda/clinaudit/internal/api/ws"
)

func registerAuditRoutes(api huma.API, svc v1.AuditServices) {
	v1.RegisterAuditRoutes(api, svc)
}

func registerAdminRoutes(api huma.API, outbox v1.OutboxReader) {
	v1.RegisterOutboxRoutes(api, outbox)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/audit", hub.ServeAudit)
}
