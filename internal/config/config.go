// Пакет config — загрузка и валидация конфигурации Submission Portal
// из переменных окружения (префикс SP_).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды хранилищ.
const (
	RecordStorePostgres = "postgres"
	RecordStoreMemory   = "memory"

	BlobStoreFS     = "fs"
	BlobStoreMemory = "memory"
	BlobStoreB2     = "b2"
)

// Политики хранения blob при отклонении работы.
const (
	// RejectPolicyRetain — blob сохраняется, студент может загрузить новую версию
	RejectPolicyRetain = "retain"
	// RejectPolicyPurge — blob удаляется, поля файла в записи очищаются
	RejectPolicyPurge = "purge"
)

// Config содержит все параметры конфигурации Submission Portal.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище записей ---

	// Бэкенд записей: postgres, memory
	RecordStore string
	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Хранилище blob ---

	// Бэкенд blob: fs, memory, b2
	BlobStore string
	// Корневая директория файлов (для fs)
	DataDir string
	// Backblaze B2: account ID
	B2AccountID string
	// Backblaze B2: application key
	B2ApplicationKey string
	// Backblaze B2: имя bucket
	B2Bucket string

	// Директория журнала намерений (WAL)
	WALDir string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Политика хранения blob при отклонении: retain, purge
	RejectPolicy string

	// --- JWT ---

	// URL JWKS endpoint внешнего IdP
	JWTJWKSURL string
	// Ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// Допустимое отклонение времени при проверке exp/nbf
	JWTLeeway time.Duration

	// --- Кэш ---

	// Максимальное количество записей в кэше работ
	CacheSize int
	// Время жизни записи в кэше
	CacheTTL time.Duration

	// --- Начальные учётные записи ---

	// ID администратора (совпадает с sub в JWT)
	SeedAdminID string
	// Имя администратора
	SeedAdminName string
	// Email администратора
	SeedAdminEmail string

	// --- topologymetrics ---

	// Группа в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SP_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SP_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SP_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SP_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// SP_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SP_LOG_LEVEL: %w", err)
	}

	// SP_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище записей ---

	cfg.RecordStore = getEnvDefault("SP_RECORD_STORE", RecordStorePostgres)
	switch cfg.RecordStore {
	case RecordStorePostgres:
		if err := cfg.loadPostgres(); err != nil {
			return nil, err
		}
	case RecordStoreMemory:
	default:
		return nil, fmt.Errorf("SP_RECORD_STORE: недопустимое значение %q, допустимые: postgres, memory", cfg.RecordStore)
	}

	// --- Хранилище blob ---

	cfg.BlobStore = getEnvDefault("SP_BLOB_STORE", BlobStoreFS)
	switch cfg.BlobStore {
	case BlobStoreFS:
		cfg.DataDir = getEnvDefault("SP_DATA_DIR", "./data/blobs")
	case BlobStoreMemory:
	case BlobStoreB2:
		if cfg.B2AccountID, err = getEnvRequired("SP_B2_ACCOUNT_ID"); err != nil {
			return nil, err
		}
		if cfg.B2ApplicationKey, err = getEnvRequired("SP_B2_APPLICATION_KEY"); err != nil {
			return nil, err
		}
		if cfg.B2Bucket, err = getEnvRequired("SP_B2_BUCKET"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("SP_BLOB_STORE: недопустимое значение %q, допустимые: fs, memory, b2", cfg.BlobStore)
	}

	// SP_WAL_DIR — директория журнала намерений
	cfg.WALDir = getEnvDefault("SP_WAL_DIR", "./data/wal")

	// SP_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 100 МБ)
	cfg.MaxFileSize, err = getEnvInt64("SP_MAX_FILE_SIZE", 100<<20)
	if err != nil {
		return nil, fmt.Errorf("SP_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("SP_MAX_FILE_SIZE: значение должно быть положительным, получено %d", cfg.MaxFileSize)
	}

	// SP_REJECT_POLICY — политика хранения при отклонении (по умолчанию retain)
	cfg.RejectPolicy = getEnvDefault("SP_REJECT_POLICY", RejectPolicyRetain)
	if cfg.RejectPolicy != RejectPolicyRetain && cfg.RejectPolicy != RejectPolicyPurge {
		return nil, fmt.Errorf("SP_REJECT_POLICY: недопустимое значение %q, допустимые: retain, purge", cfg.RejectPolicy)
	}

	// --- JWT ---

	// SP_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("SP_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}
	cfg.JWTIssuer = getEnvDefault("SP_JWT_ISSUER", "")
	cfg.JWTLeeway, err = getEnvDuration("SP_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SP_JWT_LEEWAY: %w", err)
	}

	// --- Кэш ---

	cfg.CacheSize, err = getEnvInt("SP_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("SP_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("SP_CACHE_SIZE: значение должно быть >= 1, получено %d", cfg.CacheSize)
	}
	cfg.CacheTTL, err = getEnvDuration("SP_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SP_CACHE_TTL: %w", err)
	}

	// --- Начальные учётные записи ---

	cfg.SeedAdminID = getEnvDefault("SP_SEED_ADMIN_ID", "admin-001")
	cfg.SeedAdminName = getEnvDefault("SP_SEED_ADMIN_NAME", "Admin User")
	cfg.SeedAdminEmail = getEnvDefault("SP_SEED_ADMIN_EMAIL", "admin@example.com")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SP_DEPHEALTH_GROUP", "submission-portal")
	cfg.DephealthCheckInterval, err = getEnvDuration("SP_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// SP_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SP_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadPostgres читает параметры подключения к PostgreSQL.
func (c *Config) loadPostgres() error {
	var err error

	if c.DBHost, err = getEnvRequired("SP_DB_HOST"); err != nil {
		return err
	}
	c.DBPort, err = getEnvInt("SP_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("SP_DB_PORT: %w", err)
	}
	if c.DBName, err = getEnvRequired("SP_DB_NAME"); err != nil {
		return err
	}
	if c.DBUser, err = getEnvRequired("SP_DB_USER"); err != nil {
		return err
	}
	if c.DBPassword, err = getEnvRequired("SP_DB_PASSWORD"); err != nil {
		return err
	}

	c.DBSSLMode = getEnvDefault("SP_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[c.DBSSLMode] {
		return fmt.Errorf("SP_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", c.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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

// getEnvInt64 — то же, что getEnvInt, для размеров в байтах.
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
	return d, nil
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
