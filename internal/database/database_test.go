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

	"github.com/bigkaa/submission-portal/internal/config"
)

// setupTestDB запускает PostgreSQL в контейнере и возвращает конфиг для него.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("portal_test"),
		postgres.WithUsername("portal"),
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

	t.Setenv("SP_DB_HOST", host)
	t.Setenv("SP_DB_PORT", port.Port())
	t.Setenv("SP_DB_NAME", "portal_test")
	t.Setenv("SP_DB_USER", "portal")
	t.Setenv("SP_DB_PASSWORD", "test-password")
	t.Setenv("SP_JWT_JWKS_URL", "http://localhost:8080/certs")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}

func TestConnectAndMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() ошибка: %v", err)
	}
	// Повторный запуск — ErrNoChange не считается ошибкой
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("повторный Migrate() ошибка: %v", err)
	}

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() ошибка: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"users", "submissions"} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("проверка таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("таблица %s не создана", table)
		}
	}

	checker := NewReadinessChecker(pool)
	if status, msg := checker.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %q (%s), ожидается ok", status, msg)
	}
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "обычные учётные данные",
			cfg: config.Config{
				DBHost: "db", DBPort: 5432, DBName: "portal",
				DBUser: "portal", DBPassword: "secret", DBSSLMode: "disable",
			},
			want: "pgx5://portal:secret@db:5432/portal?sslmode=disable",
		},
		{
			name: "спецсимволы в пароле",
			cfg: config.Config{
				DBHost: "db", DBPort: 6432, DBName: "portal",
				DBUser: "portal", DBPassword: "p@ss/word", DBSSLMode: "require",
			},
			want: "pgx5://portal:p%40ss%2Fword@db:6432/portal?sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := migrateURL(&tt.cfg); got != tt.want {
				t.Errorf("migrateURL() = %q, ожидается %q", got, tt.want)
			}
		})
	}
}
