package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type testJWTConfig struct{}

func (testJWTConfig) GetJWTAccessSecret() string { return "test-secret" }

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(AuthRequired(testJWTConfig{}))
	engine.GET("/me", func(c *gin.Context) {
		id := MustGetIdentity(c)
		if id == nil {
			return
		}
		OK(c, gin.H{"userId": id.UserID(), "role": id.PrimaryRole()})
	})
	engine.GET("/admin", RequireAnyRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return engine
}

func doRequest(engine *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequiredAcceptsAccessToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":   uuid.New().String(),
		"type":  "access",
		"roles": []string{RoleTechnician},
		"exp":   time.Now().Add(time.Minute).Unix(),
	}, "test-secret")

	rec := doRequest(newTestEngine(), "/me", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRequiredRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"missing":      "",
		"wrong secret": signToken(t, jwt.MapClaims{"sub": uuid.New().String(), "type": "access"}, "other"),
		"refresh type": signToken(t, jwt.MapClaims{"sub": uuid.New().String(), "type": "refresh"}, "test-secret"),
		"bad subject":  signToken(t, jwt.MapClaims{"sub": "nope", "type": "access"}, "test-secret"),
	}
	for name, token := range cases {
		rec := doRequest(newTestEngine(), "/me", token)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestRequireAnyRole(t *testing.T) {
	customer := signToken(t, jwt.MapClaims{"sub": uuid.New().String(), "type": "access", "role": RoleCustomer}, "test-secret")
	admin := signToken(t, jwt.MapClaims{"sub": uuid.New().String(), "type": "access", "roles": []string{RoleAdmin}}, "test-secret")

	if rec := doRequest(newTestEngine(), "/admin", customer); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rec.Code)
	}
	if rec := doRequest(newTestEngine(), "/admin", admin); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin, got %d", rec.Code)
	}
}

func TestHandleErrorMapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.NotFound("gone"), http.StatusNotFound},
		{apperr.StaleState("moved on"), http.StatusConflict},
		{apperr.Forbidden("not yours"), http.StatusForbidden},
		{apperr.Persistence("tx failed", http.ErrHandlerTimeout), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		if !HandleError(c, tc.err) {
			t.Fatalf("expected %v to be handled", tc.err)
		}
		if rec.Code != tc.want {
			t.Fatalf("expected %d for %v, got %d", tc.want, tc.err, rec.Code)
		}
	}
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewIPRateLimiter(PerMinute(1), 1, logger.New("development"))
	engine := gin.New()
	engine.Use(limiter.RateLimit())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	if rec := doRequest(engine, "/", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	if rec := doRequest(engine, "/", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be limited, got %d", rec.Code)
	}
}
