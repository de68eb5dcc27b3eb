package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/vexogate/vexogate/config"
)

func TestKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		configured   string
		header       string
		value        string
		expectedCode int
	}{
		{name: "Valid key", configured: "merchant-key", header: APIKeyHeader, value: "merchant-key", expectedCode: http.StatusOK},
		{name: "Missing key", configured: "merchant-key", header: APIKeyHeader, value: "", expectedCode: http.StatusUnauthorized},
		{name: "Wrong key", configured: "merchant-key", header: APIKeyHeader, value: "merchant-kez", expectedCode: http.StatusUnauthorized},
		{name: "Key in wrong header", configured: "merchant-key", header: AdminKeyHeader, value: "merchant-key", expectedCode: http.StatusUnauthorized},
		{name: "Unconfigured key", configured: "", header: APIKeyHeader, value: "anything", expectedCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(APIKeyAuth(tt.configured))
			router.GET("/v1/order/:id/status", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/v1/order/order_1/status", nil)
			if tt.value != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestAdminKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AdminKeyAuth("admin-key"))
	router.GET("/admin/orders", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set(AdminKeyHeader, "admin-key")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set(APIKeyHeader, "admin-key")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rps := 1.0
	burst := 1
	conf := &config.Configuration{RateLimit: config.RateLimitConfig{RequestsPerSecond: &rps, Burst: &burst}}

	router := gin.New()
	router.Use(RateLimitMiddleware(conf))
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(&config.Configuration{}))
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
}
