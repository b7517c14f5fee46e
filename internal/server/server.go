// Пакет server — HTTP-сервер Submission Portal с graceful shutdown.
// Без TLS: TLS termination выполняется на ingress / API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/bigkaa/submission-portal/internal/api/errors"
	"github.com/bigkaa/submission-portal/internal/api/handlers"
	"github.com/bigkaa/submission-portal/internal/api/middleware"
	"github.com/bigkaa/submission-portal/internal/config"
)

// Server — HTTP-сервер портала.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
// jwtAuth — JWT middleware (nil — без аутентификации, только для тестов).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	api *handlers.APIHandler,
	health *handlers.HealthHandler,
	jwtAuth *middleware.JWTAuth,
) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, api, health, jwtAuth),
		ReadHeaderTimeout: 10 * time.Second,
		// Загрузка до SP_MAX_FILE_SIZE на медленном канале
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-маршрутизатор API.
func NewRouter(
	logger *slog.Logger,
	api *handlers.APIHandler,
	health *handlers.HealthHandler,
	jwtAuth *middleware.JWTAuth,
) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics опрашиваются Kubernetes напрямую, без токена
	if jwtAuth != nil {
		router.Use(jwtAuthWithExclusions(jwtAuth, "/health/", "/metrics"))
	}

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError, "Метод не поддерживается")
	})

	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/me", api.GetMe)

		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", api.ListSubmissions)
			r.Get("/me", api.GetMySubmission)
			r.Put("/me", api.PutMySubmission)
			r.Get("/{id}", api.GetSubmission)
			r.Get("/{id}/download", api.DownloadSubmission)
			r.Post("/{id}/review", api.ReviewSubmission)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", api.ListUsers)
			r.Post("/", api.RegisterUser)
			r.Get("/{id}", api.GetUser)
			r.Delete("/{id}", api.DeleteUser)
		})
	})

	return router
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			jwtMiddleware(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
