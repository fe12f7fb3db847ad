package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/internal/requests/transport"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/httpkit"
	"repairdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// stubService embeds the interface so tests only implement what they hit.
type stubService struct {
	RequestService
	created   transport.CreateRequestRequest
	createErr error
	cancelErr error
	lastActor domain.Actor
}

func (s *stubService) Create(ctx context.Context, actor domain.Actor, req transport.CreateRequestRequest) (domain.Request, error) {
	s.created = req
	s.lastActor = actor
	if s.createErr != nil {
		return domain.Request{}, s.createErr
	}
	return domain.Request{ID: "REQ1", CustomerID: actor.ID, Status: domain.StatusPending, Address: req.Address}, nil
}

func (s *stubService) Cancel(ctx context.Context, actor domain.Actor, requestID string, req transport.CancelRequestRequest) (domain.Request, error) {
	s.lastActor = actor
	return domain.Request{}, s.cancelErr
}

func newTestRouter(svc RequestService, userID uuid.UUID, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, userID)
		c.Set(httpkit.ContextRolesKey, roles)
		c.Next()
	})
	New(svc, validator.New()).RegisterRoutes(engine.Group("/requests"))
	return engine
}

func post(engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestCreateReturnsCreatedRequest(t *testing.T) {
	svc := &stubService{}
	userID := uuid.New()
	engine := newTestRouter(svc, userID, httpkit.RoleCustomer)

	rec := post(engine, "/requests", `{"serviceId":"svc-1","address":"1 Main St","images":["requests/a.jpg"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.RequestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "REQ1" || resp.Status != "pending" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if svc.lastActor.ID != userID || svc.lastActor.Role != domain.RoleCustomer {
		t.Fatalf("expected customer actor, got %+v", svc.lastActor)
	}
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	engine := newTestRouter(&stubService{}, uuid.New(), httpkit.RoleCustomer)

	rec := post(engine, "/requests", `{"serviceId":"svc-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing address, got %d", rec.Code)
	}

	rec = post(engine, "/requests", `{"serviceId":"svc-1","address":"x","images":["/etc/passwd"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad image ref, got %d", rec.Code)
	}
}

func TestCustomerRoutesRequireCustomerRole(t *testing.T) {
	engine := newTestRouter(&stubService{}, uuid.New(), httpkit.RoleTechnician)

	rec := post(engine, "/requests", `{"serviceId":"svc-1","address":"1 Main St"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestStaleStateMapsToConflict(t *testing.T) {
	svc := &stubService{cancelErr: apperr.StaleState("cannot cancel a request in status assigning")}
	engine := newTestRouter(svc, uuid.New(), httpkit.RoleCustomer)

	rec := post(engine, "/requests/REQ1/cancel", `{"reason":"not needed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stale_state") {
		t.Fatalf("expected stale_state code, got %s", rec.Body.String())
	}
}

func TestPersistenceErrorHidesCause(t *testing.T) {
	svc := &stubService{cancelErr: apperr.Persistence("failed to cancel request", context.DeadlineExceeded)}
	engine := newTestRouter(svc, uuid.New(), httpkit.RoleCustomer)

	rec := post(engine, "/requests/REQ1/cancel", `{"reason":"not needed"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "deadline") {
		t.Fatalf("expected cause to be hidden, got %s", rec.Body.String())
	}
}
