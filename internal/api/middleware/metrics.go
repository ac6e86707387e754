// metrics.go — Prometheus HTTP метрики StudyShare.
// Регистрирует метрики: ss_http_requests_total, ss_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики StudyShare
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ss_http_requests_total",
			Help: "Общее количество HTTP-запросов к StudyShare",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ss_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к StudyShare в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// shareTokenLength — длина hex-токена ссылки.
const shareTokenLength = 64

// normalizePath заменяет идентификаторы в пути на плейсхолдеры:
// UUID → {id}, токен ссылки → {token}.
// /api/files/a1b2c3d4-.../download → /api/files/{id}/download
// /api/files/share/9f86d0.../download → /api/files/share/{token}/download
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics", "/api/files":
		return path
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case len(seg) == 36 && uuid.Validate(seg) == nil:
			segments[i] = "{id}"
		case len(seg) == shareTokenLength && isHex(seg):
			segments[i] = "{token}"
		}
	}
	return strings.Join(segments, "/")
}

// isHex проверяет, что строка состоит только из hex-символов.
func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
