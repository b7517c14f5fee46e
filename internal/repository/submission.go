package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/submission-portal/internal/domain/model"
)

// submissionColumns — порядок колонок для scanSubmission.
const submissionColumns = `id, student_id, student_name, file_name, file_size, file_type,
	file_path, checksum, status, feedback, created_at, submitted_at,
	reviewed_by, reviewed_at, updated_at`

// submissionRepo — реализация SubmissionRepository для PostgreSQL.
type submissionRepo struct {
	db DBTX
}

// NewSubmissionRepository создаёт репозиторий работ.
func NewSubmissionRepository(db DBTX) SubmissionRepository {
	return &submissionRepo{db: db}
}

// scanSubmission читает строку в порядке submissionColumns.
func scanSubmission(row pgx.Row) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(
		&s.ID, &s.StudentID, &s.StudentName, &s.FileName, &s.FileSize, &s.FileType,
		&s.FilePath, &s.Checksum, &s.Status, &s.Feedback, &s.CreatedAt, &s.SubmittedAt,
		&s.ReviewedBy, &s.ReviewedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	// id — колонка UUID: строка другого формата не может существовать
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	s, err := scanSubmission(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения работы: %w", err)
	}
	return s, nil
}

func (r *submissionRepo) GetByStudent(ctx context.Context, studentID string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE student_id = $1`

	s, err := scanSubmission(r.db.QueryRow(ctx, query, studentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения работы студента: %w", err)
	}
	return s, nil
}

// buildSubmissionWhere строит WHERE-условие и аргументы для фильтрации работ.
func buildSubmissionWhere(filter SubmissionFilter, startArg int) (string, []any) {
	var conditions []string
	var args []any

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", startArg))
		args = append(args, string(*filter.Status))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *submissionRepo) List(ctx context.Context, filter SubmissionFilter) ([]*model.Submission, error) {
	where, args := buildSubmissionWhere(filter, 1)
	query := fmt.Sprintf(`SELECT %s FROM submissions %s ORDER BY created_at DESC, id ASC`,
		submissionColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка работ: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования работы: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *submissionRepo) Upsert(ctx context.Context, p UpsertParams) (*model.Submission, error) {
	// Конфликт по student_id превращает вставку в замену файла.
	// Принятая работа не обновляется: RETURNING не вернёт строк.
	query := `
		INSERT INTO submissions (id, student_id, student_name, file_name, file_size,
			file_type, file_path, checksum, status, created_at, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PENDING', $9, $9)
		ON CONFLICT (student_id) DO UPDATE SET
			student_name = EXCLUDED.student_name,
			file_name    = EXCLUDED.file_name,
			file_size    = EXCLUDED.file_size,
			file_type    = EXCLUDED.file_type,
			file_path    = EXCLUDED.file_path,
			checksum     = EXCLUDED.checksum,
			status       = 'PENDING',
			feedback     = NULL,
			submitted_at = EXCLUDED.submitted_at,
			reviewed_by  = NULL,
			reviewed_at  = NULL
		WHERE submissions.status <> 'APPROVED'
		RETURNING ` + submissionColumns

	s, err := scanSubmission(r.db.QueryRow(ctx, query,
		p.NewID, p.StudentID, p.StudentName,
		p.File.FileName, p.File.FileSize, p.File.FileType, p.File.FilePath, p.File.Checksum,
		p.SubmittedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: работа студента %s уже принята", ErrStatusConflict, p.StudentID)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: работа с ID %s уже существует", ErrConflict, p.NewID)
		}
		return nil, fmt.Errorf("ошибка сохранения работы: %w", err)
	}
	return s, nil
}

func (r *submissionRepo) UpdateReview(ctx context.Context, id string, upd model.ReviewUpdate) (*model.Submission, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	query := `
		UPDATE submissions SET
			status      = $2,
			feedback    = $3,
			reviewed_by = $4,
			reviewed_at = $5,
			file_name   = CASE WHEN $6::boolean THEN $7::varchar ELSE file_name END,
			file_size   = CASE WHEN $6::boolean THEN NULL ELSE file_size END,
			file_type   = CASE WHEN $6::boolean THEN NULL ELSE file_type END,
			file_path   = CASE WHEN $6::boolean THEN NULL ELSE file_path END,
			checksum    = CASE WHEN $6::boolean THEN NULL ELSE checksum END
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + submissionColumns

	s, err := scanSubmission(r.db.QueryRow(ctx, query,
		id, string(upd.Status), upd.Feedback, upd.ReviewedBy, upd.ReviewedAt,
		upd.PurgeFile, upd.FileName,
	))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка обновления работы: %w", err)
	}

	// Строка не обновлена: работы нет или статус уже не PENDING
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: работа %s в статусе %s", ErrStatusConflict, id, current.Status)
}

func (r *submissionRepo) DeleteByStudent(ctx context.Context, studentID string) (*model.Submission, error) {
	query := `DELETE FROM submissions WHERE student_id = $1 RETURNING ` + submissionColumns

	s, err := scanSubmission(r.db.QueryRow(ctx, query, studentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления работы: %w", err)
	}
	return s, nil
}

func (r *submissionRepo) ReferencesPath(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM submissions WHERE file_path = $1)`, path,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки ссылки на blob: %w", err)
	}
	return exists, nil
}
