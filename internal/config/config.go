// Пакет config — загрузка и валидация конфигурации StudyShare
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Поддерживаемые backend'ы хранения blob'ов.
const (
	StorageBackendDisk = "disk"
	StorageBackendS3   = "s3"
)

// DefaultAllowedTypes — MIME-типы, разрешённые к загрузке по умолчанию.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"image/jpeg",
	"image/png",
	"image/gif",
}

// Config содержит все параметры конфигурации StudyShare.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Разрешённые CORS origins для клиентского UI
	CORSOrigins []string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Максимум соединений pgxpool
	DBMaxConns int

	// --- JWT ---

	// Секрет HS256 для собственных токенов
	JWTSecret string
	// Время жизни выпускаемого токена
	JWTTTL time.Duration
	// Issuer выпускаемых токенов
	JWTIssuer string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// JWKS внешнего IdP (пусто — только собственные токены)
	JWKSURL string
	// Интервал обновления ключей JWKS
	JWKSRefreshInterval time.Duration
	// Разрешена ли самостоятельная регистрация с ролью admin
	AllowAdminSignup bool

	// --- Хранилище blob'ов ---

	// disk или s3
	StorageBackend string
	// Директория хранения для disk backend
	DataDir string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string

	// --- Политика загрузки ---

	// Максимальный размер файла в байтах
	MaxFileSize int64
	// Разрешённые MIME-типы
	AllowedTypes []string
	// Внешний базовый URL для ссылок шаринга
	PublicBaseURL string

	// --- Кэш карточек ---

	CacheSize int
	CacheTTL  time.Duration

	// --- Reconciliation ---

	// Интервал фоновой сверки (0 — выключено)
	ReconcileInterval time.Duration
	// Минимальный возраст blob'а без карточки, после которого он удаляется
	OrphanGracePeriod time.Duration

	// --- SMTP ---

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
//
//nolint:funlen,gocyclo // линейный разбор переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("SS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SS_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("SS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SS_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.CORSOrigins = getEnvList("SS_CORS_ORIGINS", []string{"http://localhost:3000"})

	if cfg.HTTPReadTimeout, err = getEnvDuration("SS_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("SS_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("SS_HTTP_WRITE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("SS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("SS_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("SS_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SS_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("SS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("SS_DB_HOST", "localhost")
	cfg.DBPort, err = getEnvInt("SS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SS_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("SS_DB_NAME", "studyshare")
	cfg.DBUser = getEnvDefault("SS_DB_USER", "studyshare")
	cfg.DBPassword, err = getEnvRequired("SS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("SS_DB_SSL_MODE", "disable")
	switch cfg.DBSSLMode {
	case "disable", "require", "verify-ca", "verify-full":
	default:
		return nil, fmt.Errorf("SS_DB_SSL_MODE: недопустимое значение %q", cfg.DBSSLMode)
	}
	cfg.DBMaxConns, err = getEnvInt("SS_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("SS_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("SS_DB_MAX_CONNS: должно быть не меньше 1, получено %d", cfg.DBMaxConns)
	}

	// --- JWT ---

	cfg.JWTSecret, err = getEnvRequired("SS_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 16 {
		return nil, fmt.Errorf("SS_JWT_SECRET: длина секрета должна быть не меньше 16 байт")
	}
	if cfg.JWTTTL, err = getEnvDuration("SS_JWT_TTL", 30*24*time.Hour); err != nil {
		return nil, fmt.Errorf("SS_JWT_TTL: %w", err)
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("SS_JWT_TTL: значение должно быть > 0")
	}
	cfg.JWTIssuer = getEnvDefault("SS_JWT_ISSUER", "studyshare")
	if cfg.JWTLeeway, err = getEnvDuration("SS_JWT_LEEWAY", 30*time.Second); err != nil {
		return nil, fmt.Errorf("SS_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSURL = getEnvDefault("SS_JWKS_URL", "")
	if cfg.JWKSURL != "" {
		if _, err := url.ParseRequestURI(cfg.JWKSURL); err != nil {
			return nil, fmt.Errorf("SS_JWKS_URL: некорректный URL %q", cfg.JWKSURL)
		}
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("SS_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("SS_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.AllowAdminSignup, err = getEnvBool("SS_ALLOW_ADMIN_SIGNUP", false); err != nil {
		return nil, fmt.Errorf("SS_ALLOW_ADMIN_SIGNUP: %w", err)
	}

	// --- Хранилище ---

	cfg.StorageBackend = getEnvDefault("SS_STORAGE_BACKEND", StorageBackendDisk)
	cfg.DataDir = getEnvDefault("SS_DATA_DIR", "./uploads")
	cfg.S3Bucket = getEnvDefault("SS_S3_BUCKET", "")
	cfg.S3Region = getEnvDefault("SS_S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnvDefault("SS_S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnvDefault("SS_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvDefault("SS_S3_SECRET_KEY", "")
	cfg.S3Prefix = getEnvDefault("SS_S3_PREFIX", "uploads/")
	switch cfg.StorageBackend {
	case StorageBackendDisk:
	case StorageBackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("SS_S3_BUCKET: обязателен при SS_STORAGE_BACKEND=s3")
		}
	default:
		return nil, fmt.Errorf("SS_STORAGE_BACKEND: недопустимое значение %q, допустимые: disk, s3", cfg.StorageBackend)
	}

	// --- Политика загрузки ---

	cfg.MaxFileSize, err = getEnvInt64("SS_MAX_FILE_SIZE", 50*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("SS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("SS_MAX_FILE_SIZE: значение должно быть > 0")
	}
	cfg.AllowedTypes = getEnvList("SS_ALLOWED_TYPES", DefaultAllowedTypes)
	cfg.PublicBaseURL = strings.TrimRight(getEnvDefault("SS_PUBLIC_BASE_URL", "http://localhost:8080"), "/")
	if _, err := url.ParseRequestURI(cfg.PublicBaseURL); err != nil {
		return nil, fmt.Errorf("SS_PUBLIC_BASE_URL: некорректный URL %q", cfg.PublicBaseURL)
	}

	// --- Кэш ---

	if cfg.CacheSize, err = getEnvInt("SS_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("SS_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("SS_CACHE_SIZE: значение должно быть > 0")
	}
	if cfg.CacheTTL, err = getEnvDuration("SS_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("SS_CACHE_TTL: %w", err)
	}

	// --- Reconciliation ---

	if cfg.ReconcileInterval, err = getEnvDuration("SS_RECONCILE_INTERVAL", 6*time.Hour); err != nil {
		return nil, fmt.Errorf("SS_RECONCILE_INTERVAL: %w", err)
	}
	if cfg.OrphanGracePeriod, err = getEnvDuration("SS_ORPHAN_GRACE_PERIOD", time.Hour); err != nil {
		return nil, fmt.Errorf("SS_ORPHAN_GRACE_PERIOD: %w", err)
	}

	// --- SMTP ---

	cfg.SMTPHost = getEnvDefault("SS_SMTP_HOST", "")
	if cfg.SMTPPort, err = getEnvInt("SS_SMTP_PORT", 587); err != nil {
		return nil, fmt.Errorf("SS_SMTP_PORT: %w", err)
	}
	cfg.SMTPUser = getEnvDefault("SS_SMTP_USER", "")
	cfg.SMTPPassword = getEnvDefault("SS_SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvDefault("SS_SMTP_FROM", "StudyShare <noreply@studyshare.local>")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SS_DEPHEALTH_GROUP", "studyshare")
	if cfg.DephealthCheckInterval, err = getEnvDuration("SS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("SS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL без пароля.
// Используется для лейблов topologymetrics.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 из переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("длительность не может быть отрицательной: %q", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// getEnvList разбирает список через запятую. Пустые элементы отбрасываются.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var result []string
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
