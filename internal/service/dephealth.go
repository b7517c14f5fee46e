// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Submission Portal мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (только для SP_RECORD_STORE=postgres)
//   - IdP — HTTP checker к JWKS endpoint
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для IdP
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthParams — параметры мониторинга зависимостей.
type DephealthParams struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (SP_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB из pgxpool (stdlib.OpenDBFromPool); nil — PostgreSQL не мониторится
	DB *sql.DB
	// PostgresURL — URL PostgreSQL для лейблов метрик
	PostgresURL string
	// JWKSURL — URL JWKS endpoint IdP
	JWKSURL string
	// CheckInterval — интервал проверки (SP_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
}

// DephealthService — мониторинг зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис с регистрацией метрик в глобальном registry.
func NewDephealthService(p DephealthParams, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(p, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(p DephealthParams, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(p, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(p DephealthParams, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP("idp-jwks",
			dephealth.FromURL(p.JWKSURL),
			dephealth.WithHTTPHealthPath(healthPathFromURL(p.JWKSURL)),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(true),
		),
	}
	if p.DB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(p.DB)),
			dephealth.FromURL(p.PostgresURL),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(true),
		))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(p.ServiceID, p.Group, opts...)
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

// Health возвращает состояние зависимостей: имя → true, если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// Name — имя проверки в ответе readiness.
func (ds *DephealthService) Name() string { return "dependencies" }

// CheckReady сводит состояние зависимостей для readiness probe.
// Недоступная зависимость даёт degraded: хранилище записей проверяется отдельно.
func (ds *DephealthService) CheckReady() (status, message string) {
	var down []string
	for name, ok := range ds.Health() {
		if !ok {
			down = append(down, name)
		}
	}
	if len(down) > 0 {
		sort.Strings(down)
		return "degraded", "недоступны: " + strings.Join(down, ", ")
	}
	return "ok", ""
}

// healthPathFromURL возвращает path JWKS URL для HTTP-проверки.
// У IdP (Keycloak) /health обычно доступен только на management-порту.
func healthPathFromURL(raw string) string {
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}
