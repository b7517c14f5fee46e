// submissions.go — жизненный цикл работ студентов.
//
// Согласованность blob и записи обеспечивается фиксированным порядком:
// запись blob → upsert записи → удаление устаревшего blob. Если запись
// не сохранилась, новый blob удаляется (компенсация). Каждая операция
// с blob журналируется в WAL; незавершённые записи журнала разбирает
// RecoveryService при старте.
package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/submission-portal/internal/config"
	"github.com/bigkaa/submission-portal/internal/domain/lifecycle"
	"github.com/bigkaa/submission-portal/internal/domain/model"
	"github.com/bigkaa/submission-portal/internal/repository"
	"github.com/bigkaa/submission-portal/internal/storage/blob"
	"github.com/bigkaa/submission-portal/internal/storage/wal"
)

// rejectedPrefix — префикс имени файла отклонённой работы после purge.
const rejectedPrefix = "(Rejected) "

// defaultFileType — MIME-тип, если клиент его не передал.
const defaultFileType = "application/octet-stream"

// Journal — журнал намерений операций с blob.
type Journal interface {
	StartTransaction(op wal.OperationType, blobPath, studentID string) (*wal.Entry, error)
	Commit(txID string) error
	Rollback(txID string) error
}

// UploadParams — параметры загрузки файла работы.
type UploadParams struct {
	// Reader — содержимое файла
	Reader io.Reader
	// FileName — оригинальное имя файла
	FileName string
	// FileType — MIME-тип
	FileType string
	// Size — заявленный размер; < 0, если неизвестен
	Size int64
}

// SubmissionOptions — настройки сервиса работ.
type SubmissionOptions struct {
	// MaxFileSize — максимальный размер файла в байтах
	MaxFileSize int64
	// RejectPolicy — политика хранения blob при отклонении (retain, purge)
	RejectPolicy string
}

// ListFilter — фильтры списка работ.
type ListFilter struct {
	Status *lifecycle.Status
}

// SubmissionService — движок жизненного цикла работ.
type SubmissionService struct {
	subs    repository.SubmissionRepository
	blobs   blob.Store
	journal Journal
	cache   *SubmissionCache
	opts    SubmissionOptions
	now     func() time.Time
	logger  *slog.Logger
}

// NewSubmissionService создаёт сервис работ.
func NewSubmissionService(
	subs repository.SubmissionRepository,
	blobs blob.Store,
	journal Journal,
	cache *SubmissionCache,
	opts SubmissionOptions,
	logger *slog.Logger,
) *SubmissionService {
	if opts.RejectPolicy == "" {
		opts.RejectPolicy = config.RejectPolicyRetain
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 100 << 20
	}
	return &SubmissionService{
		subs:    subs,
		blobs:   blobs,
		journal: journal,
		cache:   cache,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "submission_service")),
	}
}

// CreateOrReplace загружает файл работы студента.
//
// Pipeline:
//  1. Проверка прав, непустого потока и размера
//  2. Чтение текущей работы (APPROVED — конечный статус)
//  3. WAL blob_put → запись blob с подсчётом SHA-256
//  4. Upsert записи (замена сбрасывает статус в PENDING)
//  5. При ошибке upsert — компенсирующее удаление нового blob
//  6. WAL commit → удаление предыдущего blob (best-effort)
//  7. Инвалидация кэша
func (s *SubmissionService) CreateOrReplace(ctx context.Context, student *model.User, p UploadParams) (*model.Submission, error) {
	sub, err := s.createOrReplace(ctx, student, p)
	uploadsTotal.WithLabelValues(uploadResult(err)).Inc()
	return sub, err
}

func (s *SubmissionService) createOrReplace(ctx context.Context, student *model.User, p UploadParams) (*model.Submission, error) {
	if !student.IsStudent() {
		return nil, fmt.Errorf("%w: загружать работы могут только студенты", ErrForbidden)
	}

	fileName := cleanFileName(p.FileName)
	if fileName == "" {
		return nil, fmt.Errorf("%w: имя файла обязательно", ErrValidation)
	}
	if p.Reader == nil || p.Size == 0 {
		return nil, fmt.Errorf("%w: файл пустой", ErrValidation)
	}
	if p.Size > s.opts.MaxFileSize {
		return nil, fmt.Errorf("%w: размер файла %d превышает лимит %d байт", ErrValidation, p.Size, s.opts.MaxFileSize)
	}

	// Пустой поток определяем до любых записей
	br := bufio.NewReader(p.Reader)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: файл пустой", ErrValidation)
		}
		return nil, fmt.Errorf("%w: ошибка чтения файла: %v", ErrValidation, err)
	}

	current, err := s.subs.GetByStudent(ctx, student.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("чтение текущей работы: %w", err)
	}
	from := lifecycle.StatusNone
	if current != nil {
		from = current.Status
	}
	if !lifecycle.CanUpload(from) {
		return nil, fmt.Errorf("%w: работа в статусе %s не может быть заменена", ErrInvalidTransition, from)
	}

	now := s.now()
	blobPath := blob.NewPath(student.ID, fileName, now)

	tx, err := s.journal.StartTransaction(wal.OpBlobPut, blobPath, student.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: журнал намерений недоступен: %w", ErrBlobWrite, err)
	}

	// Читаем на байт больше лимита, чтобы обнаружить превышение
	res, err := s.blobs.Put(ctx, blobPath, io.LimitReader(br, s.opts.MaxFileSize+1))
	if err != nil {
		s.discardBlob(ctx, tx.TransactionID, blobPath)
		return nil, fmt.Errorf("%w: %w", ErrBlobWrite, err)
	}
	if res.Size > s.opts.MaxFileSize {
		s.discardBlob(ctx, tx.TransactionID, blobPath)
		return nil, fmt.Errorf("%w: размер файла превышает лимит %d байт", ErrValidation, s.opts.MaxFileSize)
	}

	fileType := strings.TrimSpace(p.FileType)
	if fileType == "" {
		fileType = defaultFileType
	}

	sub, err := s.subs.Upsert(ctx, repository.UpsertParams{
		NewID:       uuid.New().String(),
		StudentID:   student.ID,
		StudentName: student.Name,
		File: model.FileUpdate{
			FileName: fileName,
			FileSize: res.Size,
			FileType: fileType,
			FilePath: res.Path,
			Checksum: res.Checksum,
		},
		SubmittedAt: now,
	})
	if err != nil {
		s.compensate(ctx, tx.TransactionID, blobPath, student.ID)
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: работа уже принята", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("%w: %v", ErrRecordWrite, err)
	}

	if err := s.journal.Commit(tx.TransactionID); err != nil {
		s.logger.Warn("Не удалось зафиксировать WAL-транзакцию загрузки",
			slog.String("tx_id", tx.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	if current != nil && current.HasFile() && *current.FilePath != res.Path {
		s.deleteStaleBlob(ctx, *current.FilePath, student.ID, "replace")
	}

	s.cache.Delete(student.ID)
	uploadBytesTotal.Add(float64(res.Size))

	s.logger.Info("Работа загружена",
		slog.String("submission_id", sub.ID),
		slog.String("student_id", student.ID),
		slog.String("file_name", fileName),
		slog.Int64("size", res.Size),
		slog.Bool("replaced", current != nil),
	)

	return sub, nil
}

// GetForStudent возвращает работу студента. Отсутствие работы — (nil, false, nil).
func (s *SubmissionService) GetForStudent(ctx context.Context, studentID string) (*model.Submission, bool, error) {
	if sub, ok := s.cache.Get(studentID); ok {
		return sub, true, nil
	}

	// Поколение снимается до чтения: изменение во время чтения
	// не даст положить в кэш устаревшую запись
	gen := s.cache.Generation(studentID)
	sub, err := s.subs.GetByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("получение работы студента: %w", err)
	}

	s.cache.SetIfCurrent(studentID, gen, sub)
	return sub, true, nil
}

// ListAll возвращает все работы, новые первыми. Для пустого результата — пустой срез.
func (s *SubmissionService) ListAll(ctx context.Context, filter ListFilter) ([]*model.Submission, error) {
	subs, err := s.subs.List(ctx, repository.SubmissionFilter{Status: filter.Status})
	if err != nil {
		return nil, fmt.Errorf("получение списка работ: %w", err)
	}
	if subs == nil {
		subs = []*model.Submission{}
	}
	return subs, nil
}

// Get возвращает работу по ID.
func (s *SubmissionService) Get(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: работа %s не найдена", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение работы: %w", err)
	}
	return sub, nil
}

// GetForActor возвращает работу, если actor — администратор или владелец.
func (s *SubmissionService) GetForActor(ctx context.Context, actor *model.User, id string) (*model.Submission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, sub) {
		return nil, fmt.Errorf("%w: работа принадлежит другому студенту", ErrForbidden)
	}
	return sub, nil
}

// Review применяет решение администратора к работе в статусе PENDING.
//
// Обновление условное (WHERE status = 'PENDING'), поэтому проигранная
// гонка двух проверяющих также даёт ErrInvalidTransition.
// При политике purge отклонённая работа теряет файл: сначала очищается
// запись, затем удаляется blob.
func (s *SubmissionService) Review(
	ctx context.Context,
	reviewer *model.User,
	id string,
	decision lifecycle.Decision,
	feedback string,
) (*model.Submission, error) {
	if !reviewer.IsAdmin() {
		return nil, fmt.Errorf("%w: проверять работы могут только администраторы", ErrForbidden)
	}
	if !lifecycle.IsValidDecision(decision) {
		return nil, fmt.Errorf("%w: недопустимое решение %q", ErrValidation, decision)
	}

	feedback = strings.TrimSpace(feedback)
	if lifecycle.RequiresFeedback(decision) && feedback == "" {
		return nil, fmt.Errorf("%w: для решения %s нужен комментарий", ErrValidation, decision)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	to, err := lifecycle.Apply(current.Status, decision)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}

	upd := model.ReviewUpdate{
		Status:     to,
		ReviewedBy: reviewer.ID,
		ReviewedAt: s.now(),
	}
	if lifecycle.RequiresFeedback(decision) {
		upd.Feedback = &feedback
	}

	purge := decision == lifecycle.DecisionReject &&
		s.opts.RejectPolicy == config.RejectPolicyPurge &&
		current.HasFile()
	if purge {
		name := rejectedPrefix
		if current.FileName != nil {
			name += *current.FileName
		}
		upd.PurgeFile = true
		upd.FileName = &name
	}

	sub, err := s.subs.UpdateReview(ctx, id, upd)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, fmt.Errorf("%w: работа уже проверена", ErrInvalidTransition)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: работа %s не найдена", ErrNotFound, id)
		default:
			return nil, fmt.Errorf("%w: %v", ErrRecordWrite, err)
		}
	}

	if purge {
		s.deleteStaleBlob(ctx, *current.FilePath, sub.StudentID, "purge")
	}

	s.cache.Delete(sub.StudentID)
	reviewsTotal.WithLabelValues(string(decision)).Inc()

	s.logger.Info("Работа проверена",
		slog.String("submission_id", sub.ID),
		slog.String("student_id", sub.StudentID),
		slog.String("decision", string(decision)),
		slog.String("status", string(sub.Status)),
		slog.String("reviewer", reviewer.ID),
		slog.Bool("purged", purge),
	)

	return sub, nil
}

// Open открывает файл работы для скачивания.
// Доступ — администраторам и владельцу работы.
// Вызывающий код обязан закрыть ReadCloser.
func (s *SubmissionService) Open(ctx context.Context, actor *model.User, id string) (*model.Submission, io.ReadCloser, error) {
	sub, err := s.GetForActor(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if !sub.HasFile() {
		return nil, nil, fmt.Errorf("%w: файл работы удалён", ErrNotFound)
	}

	rc, err := s.blobs.Open(ctx, *sub.FilePath)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			s.logger.Error("Запись ссылается на отсутствующий blob",
				slog.String("submission_id", sub.ID),
				slog.String("blob_path", *sub.FilePath),
			)
			return nil, nil, fmt.Errorf("%w: файл работы не найден в хранилище", ErrNotFound)
		}
		return nil, nil, fmt.Errorf("открытие файла работы: %w", err)
	}
	return sub, rc, nil
}

// DeleteForStudent удаляет работу студента: сначала запись, затем blob
// (best-effort). Отсутствие работы — (false, nil).
func (s *SubmissionService) DeleteForStudent(ctx context.Context, studentID string) (bool, error) {
	deleted, err := s.subs.DeleteByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRecordWrite, err)
	}

	s.cache.Delete(studentID)
	if deleted.HasFile() {
		s.deleteStaleBlob(ctx, *deleted.FilePath, studentID, "cascade")
	}

	s.logger.Info("Работа удалена",
		slog.String("submission_id", deleted.ID),
		slog.String("student_id", studentID),
	)
	return true, nil
}

// compensate удаляет blob, для которого не удалось сохранить запись.
// При ошибке удаления запись журнала остаётся pending для RecoveryService.
func (s *SubmissionService) compensate(ctx context.Context, txID, blobPath, studentID string) {
	ctx = context.WithoutCancel(ctx)

	if err := s.blobs.Delete(ctx, blobPath); err != nil {
		compensationsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Компенсирующее удаление blob не выполнено",
			slog.String("tx_id", txID),
			slog.String("blob_path", blobPath),
			slog.String("student_id", studentID),
			slog.String("error", err.Error()),
		)
		return
	}

	compensationsTotal.WithLabelValues("ok").Inc()
	if err := s.journal.Rollback(txID); err != nil {
		s.logger.Warn("Не удалось откатить WAL-транзакцию",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}

// discardBlob убирает blob после неудачной или отклонённой записи.
func (s *SubmissionService) discardBlob(ctx context.Context, txID, blobPath string) {
	ctx = context.WithoutCancel(ctx)

	if err := s.blobs.Delete(ctx, blobPath); err != nil {
		s.logger.Warn("Не удалось удалить частично записанный blob",
			slog.String("tx_id", txID),
			slog.String("blob_path", blobPath),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.journal.Rollback(txID); err != nil {
		s.logger.Warn("Не удалось откатить WAL-транзакцию",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}

// deleteStaleBlob удаляет blob, на который больше не ссылается запись.
// Ошибка не прерывает операцию: она логируется, а запись журнала
// остаётся pending для RecoveryService.
func (s *SubmissionService) deleteStaleBlob(ctx context.Context, blobPath, studentID, reason string) {
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.With(
		slog.String("blob_path", blobPath),
		slog.String("student_id", studentID),
		slog.String("reason", reason),
	)

	txID := ""
	tx, err := s.journal.StartTransaction(wal.OpBlobDelete, blobPath, studentID)
	if err != nil {
		logger.Warn("Не удалось записать намерение удаления в WAL", slog.String("error", err.Error()))
	} else {
		txID = tx.TransactionID
	}

	if err := s.blobs.Delete(ctx, blobPath); err != nil {
		blobCleanupTotal.WithLabelValues(reason, "failed").Inc()
		logger.Warn("Устаревший blob не удалён",
			slog.String("tx_id", txID),
			slog.String("error", fmt.Errorf("%w: %v", ErrBlobDelete, err).Error()),
		)
		return
	}

	blobCleanupTotal.WithLabelValues(reason, "ok").Inc()
	if txID != "" {
		if err := s.journal.Commit(txID); err != nil {
			logger.Warn("Не удалось зафиксировать WAL-транзакцию удаления",
				slog.String("tx_id", txID),
				slog.String("error", err.Error()),
			)
		}
	}
	logger.Debug("Устаревший blob удалён")
}

// canAccess — администратор видит все работы, студент только свою.
func canAccess(actor *model.User, sub *model.Submission) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor != nil && sub.StudentID == actor.ID
}

// cleanFileName оставляет только базовое имя файла без пути клиента.
func cleanFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// uploadResult — метка метрики загрузок по ошибке.
func uploadResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrBlobWrite):
		return "blob_error"
	case errors.Is(err, ErrRecordWrite):
		return "record_error"
	default:
		return "error"
	}
}
