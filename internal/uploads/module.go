package uploads

import (
	"repairdesk_backend/internal/adapters/storage"
	apphttp "repairdesk_backend/internal/http"
	"repairdesk_backend/platform/validator"
)

// Module exposes presigned uploads under /api/v1/uploads.
type Module struct {
	handler *Handler
}

func NewModule(store storage.StorageService, buckets Buckets, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(NewService(store, buckets), val)}
}

func (m *Module) Name() string { return "uploads" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/uploads"))
}

var _ apphttp.Module = (*Module)(nil)
