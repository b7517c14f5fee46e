// Точка входа Submission Portal — приём и проверка работ студентов.
// Загружает конфигурацию, выбирает хранилище записей (PostgreSQL / память)
// и хранилище файлов (fs / память / B2), восстанавливает согласованность
// по журналу намерений, создаёт начальные учётные записи, запускает
// topologymetrics и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/submission-portal/internal/api/handlers"
	"github.com/bigkaa/submission-portal/internal/api/middleware"
	"github.com/bigkaa/submission-portal/internal/config"
	"github.com/bigkaa/submission-portal/internal/database"
	"github.com/bigkaa/submission-portal/internal/domain/model"
	"github.com/bigkaa/submission-portal/internal/repository"
	"github.com/bigkaa/submission-portal/internal/repository/memory"
	"github.com/bigkaa/submission-portal/internal/server"
	"github.com/bigkaa/submission-portal/internal/service"
	"github.com/bigkaa/submission-portal/internal/storage/blob"
	"github.com/bigkaa/submission-portal/internal/storage/blob/b2store"
	"github.com/bigkaa/submission-portal/internal/storage/blob/filestore"
	"github.com/bigkaa/submission-portal/internal/storage/blob/memstore"
	"github.com/bigkaa/submission-portal/internal/storage/wal"
)

const serviceID = "submission-portal"

func main() {
	if err := run(); err != nil {
		slog.Error("Submission Portal завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// recordStores — выбранные репозитории и ресурсы PostgreSQL (если есть).
type recordStores struct {
	submissions repository.SubmissionRepository
	users       repository.UserRepository
	checkers    []handlers.ReadinessChecker
	// pgDB — адаптер pgxpool → *sql.DB для topologymetrics; nil для memory
	pgDB    *sql.DB
	closeFn func()
}

func run() error {
	// 1. Конфигурация и логирование
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Submission Portal запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("record_store", cfg.RecordStore),
		slog.String("blob_store", cfg.BlobStore),
		slog.String("reject_policy", cfg.RejectPolicy),
	)

	ctx := context.Background()

	// 2. Хранилище записей
	records, err := openRecordStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer records.closeFn()

	// 3. Хранилище файлов
	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	// 4. Журнал намерений
	journal, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		return fmt.Errorf("инициализация WAL: %w", err)
	}

	// 5. Сервисы
	cache := service.NewSubmissionCache(cfg.CacheSize, cfg.CacheTTL)
	submissionsSvc := service.NewSubmissionService(
		records.submissions, blobs, journal, cache,
		service.SubmissionOptions{
			MaxFileSize:  cfg.MaxFileSize,
			RejectPolicy: cfg.RejectPolicy,
		},
		logger,
	)
	usersSvc := service.NewUserService(records.users, submissionsSvc, logger)

	// 6. Восстановление по журналу до приёма трафика
	recovery := service.NewRecoveryService(journal, records.submissions, blobs, logger)
	if _, err := recovery.Run(ctx); err != nil {
		return fmt.Errorf("восстановление по журналу: %w", err)
	}

	// 7. Начальные учётные записи
	seed := service.NewSeedService(records.users, []model.User{{
		ID:    cfg.SeedAdminID,
		Name:  cfg.SeedAdminName,
		Email: cfg.SeedAdminEmail,
		Role:  model.RoleAdmin,
	}}, logger)
	if _, err := seed.Run(ctx); err != nil {
		return fmt.Errorf("создание начальных учётных записей: %w", err)
	}

	// 8. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(cfg.JWTJWKSURL, cfg.JWTIssuer, cfg.JWTLeeway, logger)
	if err != nil {
		return fmt.Errorf("создание JWT middleware: %w", err)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 9. topologymetrics — мониторинг зависимостей
	checkers := records.checkers
	dephealthSvc, err := service.NewDephealthService(service.DephealthParams{
		ServiceID:     serviceID,
		Group:         cfg.DephealthGroup,
		DB:            records.pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		dephealthSvc = nil
	} else {
		checkers = append(checkers, dephealthSvc)
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. HTTP-сервер
	apiHandler := handlers.NewAPIHandler(submissionsSvc, usersSvc, cfg.MaxFileSize, logger)
	healthHandler := handlers.NewHealthHandler(checkers...)

	srv := server.New(cfg, logger, apiHandler, healthHandler, jwtAuth)
	runErr := srv.Run()

	// 11. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("Submission Portal остановлен")
	return nil
}

// openRecordStores выбирает хранилище записей по SP_RECORD_STORE.
// Для postgres применяет миграции и открывает пул соединений.
func openRecordStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*recordStores, error) {
	if cfg.RecordStore == config.RecordStoreMemory {
		logger.Warn("Хранилище записей в памяти: данные не переживут перезапуск")
		return &recordStores{
			submissions: memory.NewSubmissionRepository(),
			users:       memory.NewUserRepository(),
			closeFn:     func() {},
		}, nil
	}

	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return nil, fmt.Errorf("миграции БД: %w", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("подключение к PostgreSQL: %w", err)
	}

	// Проверка здоровья PostgreSQL через существующий пул соединений
	pgDB := stdlib.OpenDBFromPool(pool)

	return &recordStores{
		submissions: repository.NewSubmissionRepository(pool),
		users:       repository.NewUserRepository(pool),
		checkers:    []handlers.ReadinessChecker{database.NewReadinessChecker(pool)},
		pgDB:        pgDB,
		closeFn: func() {
			_ = pgDB.Close()
			pool.Close()
		},
	}, nil
}

// openBlobStore выбирает хранилище файлов по SP_BLOB_STORE.
func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobStore {
	case config.BlobStoreMemory:
		return memstore.New(), nil
	case config.BlobStoreB2:
		store, err := b2store.New(ctx, cfg.B2AccountID, cfg.B2ApplicationKey, cfg.B2Bucket)
		if err != nil {
			return nil, fmt.Errorf("подключение к Backblaze B2: %w", err)
		}
		return store, nil
	default:
		store, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("инициализация файлового хранилища: %w", err)
		}
		return store, nil
	}
}
