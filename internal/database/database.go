// Пакет database — хранилище записей в PostgreSQL: пул pgxpool,
// встроенные миграции golang-migrate и readiness-проверка.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/submission-portal/internal/config"
)

const (
	// connectTimeout — ограничение на первый ping при старте.
	connectTimeout = 10 * time.Second
	// readyTimeout — ограничение на ping в readiness probe.
	readyTimeout = 3 * time.Second
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect открывает пул подключений к хранилищу записей.
// Пул не возвращается, пока PostgreSQL не ответил на ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL %s:%d недоступен: %w", cfg.DBHost, cfg.DBPort, err)
	}

	logger.Info("Хранилище записей подключено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate приводит схему submissions/users к последней версии.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg))
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Схема БД актуальна")
	case err != nil:
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("чтение версии схемы: %w", verr)
	}
	if dirty {
		return fmt.Errorf("схема БД в состоянии dirty (версия %d), требуется ручное исправление", version)
	}

	logger.Info("Миграции применены", slog.Uint64("version", uint64(version)))
	return nil
}

// migrateURL — URL для драйвера pgx5 golang-migrate.
// Логин и пароль экранируются через url.UserPassword.
func migrateURL(cfg *config.Config) string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     cfg.DBHost + ":" + strconv.Itoa(cfg.DBPort),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {cfg.DBSSLMode}}.Encode(),
	}
	return u.String()
}

// ReadinessChecker — readiness-проверка хранилища записей.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// Name — имя проверки в ответе /health/ready.
func (c *ReadinessChecker) Name() string { return "postgresql" }

// CheckReady: fail, если PostgreSQL не отвечает; иначе ok с числом
// занятых соединений пула.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	stat := c.pool.Stat()
	return "ok", fmt.Sprintf("соединений: %d/%d", stat.AcquiredConns(), stat.MaxConns())
}
