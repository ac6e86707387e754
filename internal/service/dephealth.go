// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// StudyShare мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - S3-совместимое хранилище — HTTP checker к health endpoint (если задан SS_S3_ENDPOINT)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultObjectStorageHealthPath — health endpoint MinIO.
const DefaultObjectStorageHealthPath = "/minio/health/live"

// DephealthDeps — отслеживаемые зависимости.
type DephealthDeps struct {
	// DB — *sql.DB из pgxpool через stdlib.OpenDBFromPool(); nil — PostgreSQL не отслеживается
	DB *sql.DB
	// PostgresURL — URL PostgreSQL для лейблов (без пароля)
	PostgresURL string
	// ObjectStorageURL — endpoint S3; пусто — хранилище не отслеживается
	ObjectStorageURL string
	// ObjectStorageHealthPath — путь health endpoint хранилища
	ObjectStorageHealthPath string
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(
	serviceID, group string,
	deps DephealthDeps,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, deps, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID, group string,
	deps DephealthDeps,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, deps, checkInterval, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID, group string,
	deps DephealthDeps,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	opts := []dephealth.Option{dephealth.WithLogger(logger)}

	if deps.DB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(deps.DB)),
			dephealth.FromURL(deps.PostgresURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		))
	}

	if deps.ObjectStorageURL != "" {
		healthPath := deps.ObjectStorageHealthPath
		if healthPath == "" {
			healthPath = DefaultObjectStorageHealthPath
		}
		storageOpts := []dephealth.DependencyOption{
			dephealth.FromURL(deps.ObjectStorageURL),
			dephealth.WithHTTPHealthPath(healthPath),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		}
		if parsed, err := url.Parse(deps.ObjectStorageURL); err == nil && parsed.Scheme == "https" {
			storageOpts = append(storageOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		opts = append(opts, dephealth.HTTP("object-storage", storageOpts...))
	}

	if len(opts) == 1 {
		return nil, errors.New("не задано ни одной зависимости для мониторинга")
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
