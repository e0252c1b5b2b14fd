package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"

	"github.com/gin-gonic/gin"
)

type testRouterConfig struct{}

func (testRouterConfig) GetHTTPAddr() string        { return ":0" }
func (testRouterConfig) GetCORSAllowAll() bool      { return false }
func (testRouterConfig) GetCORSOrigins() []string   { return []string{"http://localhost:5173"} }
func (testRouterConfig) GetCORSAllowCreds() bool    { return true }
func (testRouterConfig) GetJWTAccessSecret() string { return "secret" }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type recordingModule struct {
	registered bool
}

func (m *recordingModule) Name() string { return "recording" }

func (m *recordingModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.registered = true
	ctx.Protected.GET("/recording", func(c *gin.Context) { c.Status(http.StatusNoContent) })
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealthReportsDatabaseState(t *testing.T) {
	tests := []struct {
		name string
		ping error
		want int
	}{
		{"healthy", nil, http.StatusOK},
		{"database down", errors.New("refused"), http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := New(&apphttp.App{
				Config: testRouterConfig{},
				Logger: logger.Nop(),
				Health: pingFunc(func(context.Context) error { return tc.ping }),
			})
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestModulesMountBehindAuth(t *testing.T) {
	module := &recordingModule{}
	engine := New(&apphttp.App{
		Config:  testRouterConfig{},
		Logger:  logger.Nop(),
		Metrics: metrics.New(),
		Modules: []apphttp.Module{module},
	})

	if !module.registered {
		t.Fatal("expected module routes to be registered")
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recording", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", rec.Code)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
}
