package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lightboxhq/lightbox/internal/app/service/quota"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
)

func TestRegisterAdminRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/v1/admin")
	RegisterAdminRoutes(g, nil, nil, nil, nil, nil, nil)

	routes := r.Routes()
	contains := func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}

	require.True(t, contains("GET /api/v1/admin/plans"))
	require.True(t, contains("POST /api/v1/admin/plans"))
	require.True(t, contains("POST /api/v1/admin/quotas/list"))
	require.True(t, contains("POST /api/v1/admin/quotas/bulk_expire"))
	require.True(t, contains("POST /api/v1/admin/quotas/expire_overdue"))
	require.True(t, contains("POST /api/v1/admin/download_logs/export"))
	require.True(t, contains("PUT /api/v1/admin/watermark/settings"))
	require.True(t, contains("POST /api/v1/admin/products/:id/sync"))
	require.True(t, contains("POST /api/v1/admin/orders/completed"))
}

func TestSecureDownloadGating(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &cfgpkg.Config{}
	cfg.Auth.LoginURL = "/login"
	cfg.Expiration.InlineProbability = 0
	quotas := quota.NewService(nil, cfg, zap.NewNop().Sugar())

	r := gin.New()
	r.GET("/download", SecureDownload(nil, quotas, cfg, zap.NewNop().Sugar()))

	t.Run("missing trigger param is a plain 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/download", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("anonymous request redirects to login", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/download?product=p1&token=x", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})
}
