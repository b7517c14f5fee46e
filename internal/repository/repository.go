// Пакет repository — слой доступа к записям о работах и пользователях.
// Интерфейсы репозиториев и реализация для PostgreSQL (чистый SQL через pgx).
// Реализация в памяти — в подпакете memory.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/submission-portal/internal/domain/lifecycle"
	"github.com/bigkaa/submission-portal/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrStatusConflict — условное обновление не применено: статус записи
	// не допускает операцию (например, работа уже проверена).
	ErrStatusConflict = errors.New("статус записи не допускает операцию")
)

// DBTX — интерфейс выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SubmissionRepository — хранилище записей о работах.
type SubmissionRepository interface {
	// GetByID возвращает работу по ID.
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	// GetByStudent возвращает работу студента.
	GetByStudent(ctx context.Context, studentID string) (*model.Submission, error)
	// List возвращает работы, новые первыми (created_at DESC, id ASC).
	List(ctx context.Context, filter SubmissionFilter) ([]*model.Submission, error)
	// Upsert атомарно создаёт работу студента или заменяет файл существующей:
	// статус сбрасывается в PENDING, комментарий и ревью очищаются,
	// ID и CreatedAt сохраняются. Для принятой (APPROVED) работы
	// возвращает ErrStatusConflict.
	Upsert(ctx context.Context, p UpsertParams) (*model.Submission, error)
	// UpdateReview условно (только из PENDING) применяет результат ревью.
	// ErrNotFound — работы нет, ErrStatusConflict — статус не PENDING.
	UpdateReview(ctx context.Context, id string, upd model.ReviewUpdate) (*model.Submission, error)
	// DeleteByStudent удаляет работу студента и возвращает удалённую запись.
	DeleteByStudent(ctx context.Context, studentID string) (*model.Submission, error)
	// ReferencesPath проверяет, ссылается ли какая-либо работа на blob.
	ReferencesPath(ctx context.Context, path string) (bool, error)
}

// SubmissionFilter — фильтры списка работ.
type SubmissionFilter struct {
	Status *lifecycle.Status
}

// UpsertParams — параметры загрузки файла работы.
type UpsertParams struct {
	// NewID — ID для новой записи (игнорируется при замене)
	NewID       string
	StudentID   string
	StudentName string
	File        model.FileUpdate
	// SubmittedAt — время загрузки (и CreatedAt для новой записи)
	SubmittedAt time.Time
}

// UserRepository — хранилище пользователей.
type UserRepository interface {
	// Create создаёт пользователя. ErrConflict — ID или email заняты.
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по ID.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// List возвращает пользователей, упорядоченных по имени.
	List(ctx context.Context) ([]*model.User, error)
	// Delete удаляет пользователя. ErrNotFound — пользователя нет.
	Delete(ctx context.Context, id string) error
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
