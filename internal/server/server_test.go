package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bigkaa/studyshare/internal/api/handlers"
	"github.com/bigkaa/studyshare/internal/config"
)

type okChecker struct{}

func (okChecker) CheckReady() (string, string) { return "ok", "" }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := &config.Config{
		Port:            8080,
		CORSOrigins:     []string{"https://ui.example.com"},
		ShutdownTimeout: time.Second,
	}
	h := handlers.NewAPIHandler(handlers.NewHealthHandler(okChecker{}, okChecker{}), handlers.Services{}, logger)

	// Все защищённые маршруты отклоняются
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	return NewRouter(cfg, h, deny)
}

func TestRouter_HealthAndProtectedRoutes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method, path string
		expected     int
	}{
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/api/files/upload", http.StatusUnauthorized},
		{http.MethodPost, "/api/files/123/share", http.StatusUnauthorized},
		{http.MethodDelete, "/api/admin/files/123", http.StatusUnauthorized},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.expected {
			t.Errorf("%s %s: ожидался статус %d, получен %d", tt.method, tt.path, tt.expected, rec.Code)
		}
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/files/upload", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	// Чужой origin не получает заголовков CORS
	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("для чужого origin Access-Control-Allow-Origin = %q", got)
	}
}
