// Package handler exposes the request lifecycle over HTTP.
package handler

import (
	"context"
	"net/http"

	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/internal/requests/service"
	"repairdesk_backend/internal/requests/transport"
	"repairdesk_backend/platform/httpkit"
	"repairdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// RequestService is the lifecycle engine as seen by the HTTP layer.
type RequestService interface {
	Create(ctx context.Context, actor domain.Actor, req transport.CreateRequestRequest) (domain.Request, error)
	Cancel(ctx context.Context, actor domain.Actor, requestID string, req transport.CancelRequestRequest) (domain.Request, error)
	Assign(ctx context.Context, actor domain.Actor, requestID string, req transport.AssignRequest) (domain.Request, error)
	RespondAssignment(ctx context.Context, actor domain.Actor, requestID string, req transport.AssignmentResponseRequest) (domain.Request, error)
	AddSurveyImages(ctx context.Context, actor domain.Actor, requestID string, req transport.SurveyImagesRequest) (domain.Request, error)
	SubmitQuotation(ctx context.Context, actor domain.Actor, requestID string, req transport.SubmitQuotationRequest) (domain.Request, error)
	RespondQuotation(ctx context.Context, actor domain.Actor, requestID string, req transport.QuotationResponseRequest) (domain.Request, error)
	ReportProgress(ctx context.Context, actor domain.Actor, requestID string, req transport.ReportProgressRequest) (domain.Request, error)
	ConfirmCompletion(ctx context.Context, actor domain.Actor, requestID string) (domain.Request, error)
	UploadPaymentProof(ctx context.Context, actor domain.Actor, requestID string, req transport.PaymentProofsRequest) (domain.Request, error)
	VerifyPayment(ctx context.Context, actor domain.Actor, requestID string, req transport.VerifyPaymentRequest) (domain.Request, error)
	Get(ctx context.Context, actor domain.Actor, requestID string) (domain.RequestDetail, error)
	History(ctx context.Context, actor domain.Actor, requestID string) (domain.History, error)
	ListMine(ctx context.Context, actor domain.Actor, req transport.ListRequestsRequest) (service.ListResult, error)
	ListAssigned(ctx context.Context, actor domain.Actor, req transport.ListRequestsRequest) (service.ListResult, error)
	ListAll(ctx context.Context, req transport.ListRequestsRequest) (service.ListResult, error)
}

// Handler handles HTTP requests for service requests.
type Handler struct {
	svc RequestService
	val *validator.Validator
}

// New creates a new requests handler.
func New(svc RequestService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the customer, technician and shared routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	customer := httpkit.RequireRole(httpkit.RoleCustomer)
	technician := httpkit.RequireRole(httpkit.RoleTechnician)

	rg.POST("", customer, h.Create)
	rg.GET("/mine", customer, h.ListMine)
	rg.GET("/assigned", technician, h.ListAssigned)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/history", h.History)

	rg.POST("/:id/cancel", customer, h.Cancel)
	rg.POST("/:id/quotation/response", customer, h.RespondQuotation)
	rg.POST("/:id/complete", customer, h.ConfirmCompletion)

	rg.POST("/:id/assignment/response", technician, h.RespondAssignment)
	rg.POST("/:id/survey-images", technician, h.AddSurveyImages)
	rg.POST("/:id/quotation", technician, h.SubmitQuotation)

	rg.POST("/:id/progress", h.ReportProgress)
	rg.POST("/:id/payment/proofs", h.UploadPaymentProof)
}

// RegisterAdminRoutes mounts the operator routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListAll)
	rg.POST("/:id/assign", h.Assign)
	rg.POST("/:id/payment/verify", h.VerifyPayment)
}

// actorAs builds the engine actor. role pins the role for role-scoped
// routes; an empty role falls back to the caller's most privileged role.
func actorAs(identity httpkit.Identity, role string) domain.Actor {
	if role == "" {
		role = identity.PrimaryRole()
	}
	return domain.Actor{ID: identity.UserID(), Role: domain.Role(role)}
}

// bindJSON decodes and validates the body, writing a 400 on failure.
func (h *Handler) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, status int, req domain.Request, err error) {
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, status, transport.ToRequestResponse(req))
}

// Create handles POST /api/v1/requests
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateRequestRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Create(c.Request.Context(), actorAs(identity, httpkit.RoleCustomer), req)
	h.respond(c, http.StatusCreated, result, err)
}

// Cancel handles POST /api/v1/requests/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	var req transport.CancelRequestRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Cancel(c.Request.Context(), actorAs(identity, httpkit.RoleCustomer), c.Param("id"), req)
	h.respond(c, http.StatusOK, result, err)
}

// Assign handles POST /api/v1/admin/requests/:id/assign
func (h *Handler) Assign(c *gin.Context) {
	var req transport.AssignRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Assign(c.Request.Context(), actorAs(identity, httpkit.RoleAdmin), c.Param("id"), req)
	h.respond(c, http.StatusOK, result, err)
}

// RespondAssignment handles POST /api/v1/requests/:id/assignment/response
func (h *Handler) RespondAssignment(c *gin.Context) {
	var req transport.AssignmentResponseRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.RespondAssignment(c.Request.Context(), actorAs(identity, httpkit.RoleTechnician), c.Param("id"), req)
	h.respond(c, http.StatusOK, result, err)
}

// AddSurveyImages handles POST /api/v1/requests/:id/survey-images
func (h *Handler) AddSurveyImages(c *gin.Context) {
	var req transport.SurveyImagesRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.AddSurveyImages(c.Request.Context(), actorAs(identity, httpkit.RoleTechnician), c.Param("id"), req)
	h.respond(c, http.StatusOK, result, err)
}

// SubmitQuotation handles POST /api/v1/requests/:id/quotation
func (h *Handler) SubmitQuotation(c *gin.Context) {
	var req transport.SubmitQuotationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.SubmitQuotation(c.Request.Context(), actorAs(identity, httpkit.RoleTechnician), c.Param("id"), req)
	h.respond(c, http.StatusCreated, result, err)
}

// RespondQuotation handles POST /api/v1/requests/:id/quotation/response
func (h *Handler) RespondQuotation(c *gin.Context) {
	var req transport.QuotationResponseRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.RespondQuotation(c.Request.Context(), actorAs(identity, httpkit.RoleCustomer), c.Param("id"), req)
	h.respond(c, http.StatusOK, result, err)
}

// ReportProgress handles POST /api/v1/requests/:id/progress
func (h *Handler) ReportProgress(c *gin.Context) {
	var req transport.ReportProgressRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.ReportProgress(c.Request.Context(), actorAs(identity, ""), c.Param("id"), req)
	h.respond(c, http.StatusOK, result, err)
}

// ConfirmCompletion handles POST /api/v1/requests/:id/complete
func (h *Handler) ConfirmCompletion(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.ConfirmCompletion(c.Request.Context(), actorAs(identity, httpkit.RoleCustomer), c.Param("id"))
	h.respond(c, http.StatusOK, result, err)
}

// UploadPaymentProof handles POST /api/v1/requests/:id/payment/proofs
func (h *Handler) UploadPaymentProof(c *gin.Context) {
	var req transport.PaymentProofsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.UploadPaymentProof(c.Request.Context(), actorAs(identity, ""), c.Param("id"), req)
	h.respond(c, http.StatusOK, result, err)
}

// VerifyPayment handles POST /api/v1/admin/requests/:id/payment/verify
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req transport.VerifyPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.VerifyPayment(c.Request.Context(), actorAs(identity, httpkit.RoleAdmin), c.Param("id"), req)
	h.respond(c, http.StatusOK, result, err)
}

// Get handles GET /api/v1/requests/:id
func (h *Handler) Get(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	detail, err := h.svc.Get(c.Request.Context(), actorAs(identity, ""), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToDetailResponse(detail))
}

// History handles GET /api/v1/requests/:id/history
func (h *Handler) History(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	history, err := h.svc.History(c.Request.Context(), actorAs(identity, ""), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToHistoryResponse(history))
}

// ListMine handles GET /api/v1/requests/mine
func (h *Handler) ListMine(c *gin.Context) {
	h.list(c, func(ctx context.Context, identity httpkit.Identity, req transport.ListRequestsRequest) (service.ListResult, error) {
		return h.svc.ListMine(ctx, actorAs(identity, httpkit.RoleCustomer), req)
	})
}

// ListAssigned handles GET /api/v1/requests/assigned
func (h *Handler) ListAssigned(c *gin.Context) {
	h.list(c, func(ctx context.Context, identity httpkit.Identity, req transport.ListRequestsRequest) (service.ListResult, error) {
		return h.svc.ListAssigned(ctx, actorAs(identity, httpkit.RoleTechnician), req)
	})
}

// ListAll handles GET /api/v1/admin/requests
func (h *Handler) ListAll(c *gin.Context) {
	h.list(c, func(ctx context.Context, _ httpkit.Identity, req transport.ListRequestsRequest) (service.ListResult, error) {
		return h.svc.ListAll(ctx, req)
	})
}

type listFunc func(ctx context.Context, identity httpkit.Identity, req transport.ListRequestsRequest) (service.ListResult, error)

func (h *Handler) list(c *gin.Context, fetch listFunc) {
	var req transport.ListRequestsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := fetch(c.Request.Context(), identity, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToListResponse(result.Items, result.Total, result.Page, result.PageSize))
}

var _ RequestService = (*service.Service)(nil)
