// Точка входа StudyShare — сервис обмена учебными материалами.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт хранилище blob'ов, сервисный слой и API handlers,
// запускает фоновые задачи (сверка хранилища, topologymetrics)
// и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/studyshare/internal/api/handlers"
	"github.com/bigkaa/studyshare/internal/api/middleware"
	"github.com/bigkaa/studyshare/internal/config"
	"github.com/bigkaa/studyshare/internal/database"
	"github.com/bigkaa/studyshare/internal/notify"
	"github.com/bigkaa/studyshare/internal/repository"
	"github.com/bigkaa/studyshare/internal/server"
	"github.com/bigkaa/studyshare/internal/service"
	"github.com/bigkaa/studyshare/internal/storage/blobstore"
)

// storageCheckTimeout — таймаут проверки хранилища в readiness probe.
const storageCheckTimeout = 3 * time.Second

func main() {
	// 0. .env для локального запуска; отсутствие файла не ошибка
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Не удалось прочитать .env", slog.String("error", err.Error()))
	}

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("StudyShare запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Хранилище blob'ов
	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Repositories
	catalogRepo := repository.NewCatalogRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// 7. Уведомления
	var notifier notify.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
		logger.Info("SMTP-уведомления включены", slog.String("host", cfg.SMTPHost))
	} else {
		notifier = notify.NewLogNotifier(logger)
		logger.Info("SMTP не настроен, уведомления пишутся в лог")
	}

	// 8. Services
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	policy := service.NewUploadPolicy(cfg.MaxFileSize, cfg.AllowedTypes)
	catalogSvc := service.NewCatalogService(catalogRepo, cache, logger)
	shareSvc := service.NewShareService(catalogRepo, cache, cfg.PublicBaseURL, logger)
	authSvc := service.NewAuthService(userRepo, notifier, service.AuthConfig{
		Secret:           []byte(cfg.JWTSecret),
		TTL:              cfg.JWTTTL,
		Issuer:           cfg.JWTIssuer,
		AllowAdminSignup: cfg.AllowAdminSignup,
	}, logger)
	reconcileSvc := service.NewReconcileService(
		catalogRepo, store,
		cfg.ReconcileInterval, cfg.OrphanGracePeriod,
		logger,
	)

	svc := handlers.Services{
		Policy:    policy,
		Upload:    service.NewUploadService(policy, store, catalogRepo, logger),
		Catalog:   catalogSvc,
		Share:     shareSvc,
		Download:  service.NewDownloadService(catalogSvc, shareSvc, catalogRepo, store, cache, logger),
		Auth:      authSvc,
		Admin:     service.NewAdminService(userRepo, catalogRepo, store, cache, logger),
		Reconcile: reconcileSvc,
	}

	// 9. Readiness checkers (PostgreSQL + хранилище) и API handler
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		handlers.NewStorageReadinessChecker(store, storageCheckTimeout),
	)
	apiHandler := handlers.NewAPIHandler(healthHandler, svc, logger)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		[]byte(cfg.JWTSecret),
		cfg.JWTIssuer,
		cfg.JWKSURL,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	// Пользователи внешнего IdP получают локальную учётную запись при первом запросе
	jwtAuth.WithUserResolver(authSvc)

	// 11. Фоновая сверка хранилища
	reconcileSvc.Start(ctx)

	// 11.1 topologymetrics — мониторинг зависимостей (PostgreSQL + S3)
	deps := service.DephealthDeps{
		DB:          pgDB,
		PostgresURL: cfg.DatabaseURL(),
	}
	if cfg.StorageBackend == config.StorageBackendS3 {
		deps.ObjectStorageURL = cfg.S3Endpoint
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"studyshare",
		cfg.DephealthGroup,
		deps,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth.Middleware(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	reconcileSvc.Stop()
	authSvc.Wait()

	logger.Info("StudyShare остановлен")
}

// newBlobStore создаёт хранилище по SS_STORAGE_BACKEND.
func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.StorageBackend == config.StorageBackendS3 {
		return blobstore.NewS3Store(ctx, blobstore.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		}, nil)
	}
	return blobstore.NewDiskStore(cfg.DataDir, nil)
}
