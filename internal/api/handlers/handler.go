// handler.go — HTTP-обработчики API портала.
// Делегируют запросы в сервисный слой; ошибки сервисов переводятся
// в HTTP-ответы в одном месте (writeServiceError).
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/submission-portal/internal/api/errors"
	"github.com/bigkaa/submission-portal/internal/api/middleware"
	"github.com/bigkaa/submission-portal/internal/domain/model"
	"github.com/bigkaa/submission-portal/internal/service"
)

// APIHandler — обработчик API портала.
type APIHandler struct {
	submissions *service.SubmissionService
	users       *service.UserService
	maxFileSize int64
	logger      *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
// maxFileSize — лимит размера файла (SP_MAX_FILE_SIZE), ограничивает тело загрузки.
func NewAPIHandler(
	submissions *service.SubmissionService,
	users *service.UserService,
	maxFileSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		submissions: submissions,
		users:       users,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// GetMe — GET /api/v1/me: пользователь портала, соответствующий токену.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(actor))
}

// actor сопоставляет subject из JWT с пользователем портала.
// Незарегистрированный субъект получает 403.
func (h *APIHandler) actor(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return nil, false
	}

	u, err := h.users.ResolveActor(r.Context(), subject)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.Forbidden(w, "Пользователь не зарегистрирован в портале")
			return nil, false
		}
		h.writeServiceError(w, err)
		return nil, false
	}
	return u, true
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// ErrForbidden проверяется раньше ErrValidation, так как оборачивает её.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		apierrors.InvalidTransition(w, err.Error())
	case errors.Is(err, service.ErrBlobWrite):
		h.logger.Error("Ошибка хранилища файлов", slog.String("error", err.Error()))
		apierrors.BlobWriteError(w, "Хранилище файлов недоступно")
	case errors.Is(err, service.ErrBlobDelete):
		h.logger.Error("Ошибка удаления из хранилища файлов", slog.String("error", err.Error()))
		apierrors.BlobDeleteError(w, "Хранилище файлов недоступно")
	case errors.Is(err, service.ErrRecordWrite):
		h.logger.Error("Ошибка хранилища записей", slog.String("error", err.Error()))
		apierrors.RecordWriteError(w, "Не удалось сохранить изменения")
	default:
		h.logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// formatTime — время в RFC 3339 (UTC).
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
