package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"repairdesk_backend/internal/notification/inapp"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubInApp struct {
	page      int
	pageSize  int
	markedFor uuid.UUID
	markErr   error
}

func (s *stubInApp) List(_ context.Context, _ uuid.UUID, page, pageSize int) (inapp.Page, error) {
	s.page, s.pageSize = page, pageSize
	return inapp.Page{Items: []inapp.Notification{{Title: "hello"}}, Total: 1, Page: page, PageSize: pageSize}, nil
}

func (s *stubInApp) CountUnread(context.Context, uuid.UUID) (int, error) { return 3, nil }

func (s *stubInApp) MarkRead(_ context.Context, userID, _ uuid.UUID) error {
	s.markedFor = userID
	return s.markErr
}

func (s *stubInApp) MarkAllRead(context.Context, uuid.UUID) error { return nil }

func newRouter(svc InAppService, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/notifications", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, userID)
		c.Set(httpkit.ContextRolesKey, []string{httpkit.RoleCustomer})
		c.Next()
	})
	NewHTTPHandler(svc, nil).RegisterRoutes(group)
	return r
}

func TestListPassesPaging(t *testing.T) {
	svc := &stubInApp{}
	rec := httptest.NewRecorder()
	newRouter(svc, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications?page=2&pageSize=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.page != 2 || svc.pageSize != 5 {
		t.Fatalf("expected page 2 size 5, got %d/%d", svc.page, svc.pageSize)
	}
	var body inapp.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected json body, got %v", err)
	}
	if body.Total != 1 || len(body.Items) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestMarkReadScopesToCaller(t *testing.T) {
	svc := &stubInApp{}
	user := uuid.New()
	rec := httptest.NewRecorder()
	newRouter(svc, user).ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/notifications/"+uuid.NewString()+"/read", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.markedFor != user {
		t.Fatalf("expected mark read for caller")
	}
}

func TestMarkReadMapsErrors(t *testing.T) {
	svc := &stubInApp{markErr: apperr.NotFound("notification not found")}
	rec := httptest.NewRecorder()
	newRouter(svc, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/notifications/"+uuid.NewString()+"/read", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newRouter(svc, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/notifications/not-a-uuid/read", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
