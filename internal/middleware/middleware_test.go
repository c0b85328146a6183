package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medialib/internal/security"
)

const testSecret = "test-secret"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(zerolog.Nop()), Recovery(zerolog.Nop()))
	protected := r.Group("/", Auth(testSecret))
	protected.GET("/read", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	protected.GET("/admin", RequireScopes(security.ScopeWatermarkAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func bearer(t *testing.T, scopes ...string) string {
	t.Helper()
	token, err := security.GenerateAccessToken(testSecret, "ops", scopes, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuth(t *testing.T) {
	r := newRouter()
	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "missing token", path: "/read", want: http.StatusUnauthorized},
		{name: "bad token", path: "/read", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", path: "/read", header: bearer(t), want: http.StatusNoContent},
		{name: "missing scope", path: "/admin", header: bearer(t, security.ScopeLibraryWrite), want: http.StatusForbidden},
		{name: "scope granted", path: "/admin", header: bearer(t, security.ScopeWatermarkAdmin), want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequestIDEchoedOrGenerated(t *testing.T) {
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/read", nil))
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)

	req = httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://ops.example"}))
	r.GET("/read", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantCode   int
	}{
		{name: "allowed origin", method: http.MethodGet, origin: "https://ops.example", wantOrigin: "https://ops.example", wantCode: http.StatusNoContent},
		{name: "foreign origin", method: http.MethodGet, origin: "https://evil.example", wantCode: http.StatusNoContent},
		{name: "preflight", method: http.MethodOptions, origin: "https://ops.example", wantOrigin: "https://ops.example", wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/read", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, requestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

func TestRecoveryReturns500(t *testing.T) {
	r := newRouter()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_server_error"}`, rec.Body.String())
}
