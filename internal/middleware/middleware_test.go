package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailprov/backend/internal/auth"
	"mailprov/backend/internal/config"
	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/monitoring"
	"mailprov/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type authFixture struct {
	jwt     *auth.JWTManager
	service *auth.Service
	admin   *domain.User
	plain   *domain.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := memory.NewStore()
	service := auth.NewService(store, store, nil)

	admin, err := service.CreateUser(context.Background(), "admin@example.com", "Password123!", true)
	require.NoError(t, err)
	plain, err := service.CreateUser(context.Background(), "op@example.com", "Password123!", false)
	require.NoError(t, err)

	return &authFixture{
		jwt: auth.NewJWTManager(&config.JWTConfig{
			Secret:       strings.Repeat("k", 32),
			Issuer:       "test",
			AccessExpiry: time.Hour,
		}),
		service: service,
		admin:   admin,
		plain:   plain,
	}
}

func (f *authFixture) token(t *testing.T, user *domain.User) string {
	t.Helper()
	tokens, err := f.jwt.GenerateToken(user)
	require.NoError(t, err)
	return tokens.AccessToken
}

func (f *authFixture) router() *gin.Engine {
	r := gin.New()
	jwtAuth := NewJWTAuth(f.jwt, nil)
	adminAuth := NewAdminAuth(f.service)

	r.GET("/me", jwtAuth.RequireAuth(), func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, actor.UserID)
	})
	r.GET("/admin", jwtAuth.RequireAuth(), adminAuth.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestJWTAuth_RequireAuth(t *testing.T) {
	f := newAuthFixture(t)
	r := f.router()

	t.Run("Bearer 令牌", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+f.token(t, f.plain))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, f.plain.ID, w.Body.String())
	})

	t.Run("Cookie 令牌", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: f.token(t, f.plain)})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("缺少令牌", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("无效令牌", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAdminAuth_RequireAdmin(t *testing.T) {
	f := newAuthFixture(t)
	r := f.router()

	t.Run("管理员放行", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+f.token(t, f.admin))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("普通操作员被拒绝", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+f.token(t, f.plain))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("以数据库状态为准", func(t *testing.T) {
		forged := *f.plain
		forged.IsAdmin = true
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+f.token(t, &forged))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestBodySizeLimit(t *testing.T) {
	r := gin.New()
	r.POST("/upload", BodySizeLimit(16), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("small")))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "16", w.Header().Get("X-Max-Body-Size"))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/secret", NoStore(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secret", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestValidateContentType(t *testing.T) {
	r := gin.New()
	r.POST("/json", ValidateContentType("application/json"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/json", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/json", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestMonitoringMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWithRegistry(reg, reg)
	mm := NewMonitoringMiddleware(metrics, nil)

	r := gin.New()
	r.Use(mm.PanicRecovery(), mm.HTTPMetrics())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/ok", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PanicsTotal))
}
