// Пакет database — пул pgx, миграции схемы каталога и readiness PostgreSQL.
// Миграции встроены в бинарник; readiness сверяет версию схемы с ними.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/studyshare/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// applicationName виден в pg_stat_activity.
	applicationName = "studyshare"
	// pingTimeout ограничивает проверки доступности.
	pingTimeout = 3 * time.Second
)

// Connect создаёт пул соединений и проверяет доступность базы.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL %s:%d недоступен: %w", cfg.DBHost, cfg.DBPort, err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", cfg.DBMaxConns),
	)
	return pool, nil
}

// LatestSchemaVersion возвращает номер последней встроенной миграции.
func LatestSchemaVersion() (uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("источник миграций: %w", err)
	}
	defer source.Close()

	version, err := source.First()
	if err != nil {
		return 0, fmt.Errorf("первая миграция: %w", err)
	}
	for {
		next, err := source.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, fmt.Errorf("миграция после %d: %w", version, err)
		}
		version = next
	}
}

// Migrate применяет встроенные миграции.
// Схема в состоянии dirty не трогается: её чинят вручную через migrate force.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		before = 0
	case err != nil:
		return fmt.Errorf("чтение версии схемы: %w", err)
	case dirty:
		return fmt.Errorf("схема в состоянии dirty на версии %d, требуется migrate force", before)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("применение миграций с версии %d: %w", before, err)
	}

	after, _, _ := m.Version()
	logger.Info("Схема каталога актуальна",
		slog.Uint64("from_version", uint64(before)),
		slog.Uint64("version", uint64(after)),
	)
	return nil
}

// ReadinessChecker — readiness PostgreSQL: соединение и версия схемы.
type ReadinessChecker struct {
	pool *pgxpool.Pool
	// want — версия встроенных миграций; 0 отключает проверку схемы
	want uint
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	want, _ := LatestSchemaVersion()
	return &ReadinessChecker{pool: pool, want: want}
}

// CheckReady возвращает fail, если база недоступна, схема отстаёт
// или последняя миграция прервалась.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	if c.want == 0 {
		return "ok", "подключение активно"
	}

	var (
		version int64
		dirty   bool
	)
	err := c.pool.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "fail", "миграции не применялись"
	case err != nil:
		return "fail", fmt.Sprintf("чтение версии схемы: %v", err)
	case dirty:
		return "fail", fmt.Sprintf("миграция %d не завершена", version)
	case uint(version) < c.want:
		return "fail", fmt.Sprintf("схема версии %d, ожидается %d", version, c.want)
	}
	return "ok", fmt.Sprintf("схема версии %d", version)
}
