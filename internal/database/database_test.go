package database

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/studyshare/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("studyshare_test"),
		postgres.WithUsername("studyshare"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("SS_DB_HOST", host)
	t.Setenv("SS_DB_PORT", port.Port())
	t.Setenv("SS_DB_NAME", "studyshare_test")
	t.Setenv("SS_DB_USER", "studyshare")
	t.Setenv("SS_DB_PASSWORD", "test-password")
	t.Setenv("SS_DB_SSL_MODE", "disable")
	t.Setenv("SS_JWT_SECRET", "integration-test-secret")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// TestMigrate проверяет применение миграций и их идемпотентность.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	// Повторное применение — ErrNoChange не считается ошибкой
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"users", "catalog_records"} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}
}

// TestReadinessChecker проверяет ok при живом подключении и fail после закрытия пула.
func TestReadinessChecker(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()

	pool, err := Connect(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}

	checker := NewReadinessChecker(pool)
	if status, msg := checker.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() status = %q, message = %q; ожидали ok", status, msg)
	}

	pool.Close()
	if status, _ := checker.CheckReady(); status != "fail" {
		t.Errorf("CheckReady() после Close status = %q, ожидали fail", status)
	}
}

// TestLatestSchemaVersion проверяет номер последней встроенной миграции.
func TestLatestSchemaVersion(t *testing.T) {
	version, err := LatestSchemaVersion()
	if err != nil {
		t.Fatalf("LatestSchemaVersion() ошибка: %v", err)
	}
	if version != 2 {
		t.Errorf("LatestSchemaVersion() = %d, ожидалась 2", version)
	}
}

// TestDirtySchema проверяет readiness и отказ Migrate при прерванной миграции.
func TestDirtySchema(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()
	logger := testLogger()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	checker := NewReadinessChecker(pool)
	if status, msg := checker.CheckReady(); status != "ok" || msg != "схема версии 2" {
		t.Errorf("CheckReady() = %q, %q; ожидали ok, схема версии 2", status, msg)
	}

	if _, err := pool.Exec(ctx, `UPDATE schema_migrations SET dirty = true`); err != nil {
		t.Fatalf("Ошибка пометки схемы dirty: %v", err)
	}
	if status, _ := checker.CheckReady(); status != "fail" {
		t.Errorf("CheckReady() для dirty схемы status = %q, ожидали fail", status)
	}
	if err := Migrate(cfg, logger); err == nil {
		t.Error("Migrate() должен отказать для dirty схемы")
	}
}
