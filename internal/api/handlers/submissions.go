// submissions.go — обработчики работ студентов.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/submission-portal/internal/api/errors"
	"github.com/bigkaa/submission-portal/internal/domain/lifecycle"
	"github.com/bigkaa/submission-portal/internal/domain/model"
	"github.com/bigkaa/submission-portal/internal/service"
)

// multipartOverhead — запас на заголовки multipart сверх лимита файла.
const multipartOverhead = 1 << 20

// uploadField — имя поля multipart с файлом.
const uploadField = "file"

type submissionResponse struct {
	ID          string  `json:"id"`
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	FileName    *string `json:"file_name"`
	FileSize    *int64  `json:"file_size"`
	FileType    *string `json:"file_type"`
	Checksum    *string `json:"checksum"`
	HasFile     bool    `json:"has_file"`
	Status      string  `json:"status"`
	Feedback    *string `json:"feedback"`
	CreatedAt   string  `json:"created_at"`
	SubmittedAt string  `json:"submitted_at"`
	ReviewedBy  *string `json:"reviewed_by"`
	ReviewedAt  *string `json:"reviewed_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type submissionListResponse struct {
	Items []submissionResponse `json:"items"`
	Total int                  `json:"total"`
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Feedback string `json:"feedback"`
}

func toSubmissionResponse(s *model.Submission) submissionResponse {
	return submissionResponse{
		ID:          s.ID,
		StudentID:   s.StudentID,
		StudentName: s.StudentName,
		FileName:    s.FileName,
		FileSize:    s.FileSize,
		FileType:    s.FileType,
		Checksum:    s.Checksum,
		HasFile:     s.HasFile(),
		Status:      string(s.Status),
		Feedback:    s.Feedback,
		CreatedAt:   formatTime(s.CreatedAt),
		SubmittedAt: formatTime(s.SubmittedAt),
		ReviewedBy:  s.ReviewedBy,
		ReviewedAt:  formatTimePtr(s.ReviewedAt),
		UpdatedAt:   formatTime(s.UpdatedAt),
	}
}

// GetMySubmission — GET /api/v1/submissions/me.
func (h *APIHandler) GetMySubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if !actor.IsStudent() {
		apierrors.Forbidden(w, "Доступно только студентам")
		return
	}

	sub, found, err := h.submissions.GetForStudent(r.Context(), actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !found {
		apierrors.NotFound(w, "Работа ещё не загружена")
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

// PutMySubmission — PUT /api/v1/submissions/me (multipart, поле file).
// Файл передаётся в сервис потоком, без буферизации формы.
func (h *APIHandler) PutMySubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data: "+err.Error())
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			apierrors.ValidationError(w, fmt.Sprintf("Отсутствует поле %q с файлом", uploadField))
			return
		}
		if err != nil {
			apierrors.ValidationError(w, "Ошибка чтения multipart: "+err.Error())
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		sub, err := h.submissions.CreateOrReplace(r.Context(), actor, service.UploadParams{
			Reader:   part,
			FileName: part.FileName(),
			FileType: part.Header.Get("Content-Type"),
			Size:     -1,
		})
		_ = part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				apierrors.ValidationError(w, fmt.Sprintf("Размер запроса превышает лимит %d байт", maxErr.Limit))
				return
			}
			h.writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
		return
	}
}

// ListSubmissions — GET /api/v1/submissions?status=.
func (h *APIHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		apierrors.Forbidden(w, "Доступно только администраторам")
		return
	}

	var filter service.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := lifecycle.ParseStatus(raw)
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		filter.Status = &st
	}

	subs, err := h.submissions.ListAll(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]submissionResponse, 0, len(subs))
	for _, s := range subs {
		items = append(items, toSubmissionResponse(s))
	}
	writeJSON(w, http.StatusOK, submissionListResponse{Items: items, Total: len(items)})
}

// GetSubmission — GET /api/v1/submissions/{id}.
func (h *APIHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	sub, err := h.submissions.GetForActor(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

// DownloadSubmission — GET /api/v1/submissions/{id}/download.
func (h *APIHandler) DownloadSubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	sub, rc, err := h.submissions.Open(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer rc.Close()

	contentType := "application/octet-stream"
	if sub.FileType != nil && *sub.FileType != "" {
		contentType = *sub.FileType
	}
	w.Header().Set("Content-Type", contentType)
	if sub.FileName != nil {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": *sub.FileName}))
	}
	if sub.FileSize != nil {
		w.Header().Set("Content-Length", strconv.FormatInt(*sub.FileSize, 10))
	}
	if sub.Checksum != nil {
		w.Header().Set("X-Checksum-SHA256", *sub.Checksum)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Скачивание прервано",
			slog.String("submission_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}
}

// ReviewSubmission — POST /api/v1/submissions/{id}/review.
func (h *APIHandler) ReviewSubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	decision, err := lifecycle.ParseDecision(req.Decision)
	if err != nil {
		// Права проверяются раньше формата решения
		if !actor.IsAdmin() {
			apierrors.Forbidden(w, "Доступно только администраторам")
			return
		}
		apierrors.ValidationError(w, err.Error())
		return
	}

	sub, err := h.submissions.Review(r.Context(), actor, chi.URLParam(r, "id"), decision, req.Feedback)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}
