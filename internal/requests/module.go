// Package requests provides the service request lifecycle module.
package requests

import (
	"repairdesk_backend/internal/events"
	apphttp "repairdesk_backend/internal/http"
	"repairdesk_backend/internal/requests/handler"
	"repairdesk_backend/internal/requests/repository"
	"repairdesk_backend/internal/requests/service"
	"repairdesk_backend/platform/logger"
	"repairdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the requests domain module.
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new requests module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)

	return &Module{
		handler: handler.New(svc, val),
		Service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "requests"
}

// RegisterRoutes mounts /api/v1/requests and /api/v1/admin/requests.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/requests"))
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/requests"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
