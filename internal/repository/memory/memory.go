// Пакет memory — реализация репозиториев в памяти процесса
// (SP_RECORD_STORE=memory). Семантика совпадает с PostgreSQL-реализацией:
// уникальность студента и email, условные обновления, порядок списков.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/submission-portal/internal/domain/lifecycle"
	"github.com/bigkaa/submission-portal/internal/domain/model"
	"github.com/bigkaa/submission-portal/internal/repository"
)

// SubmissionRepository — работы в памяти.
// byStudent — индекс уникальности student_id.
type SubmissionRepository struct {
	mu        sync.RWMutex
	byID      map[string]*model.Submission
	byStudent map[string]string
	now       func() time.Time
}

var _ repository.SubmissionRepository = (*SubmissionRepository)(nil)

// NewSubmissionRepository создаёт пустой репозиторий работ.
func NewSubmissionRepository() *SubmissionRepository {
	return &SubmissionRepository{
		byID:      make(map[string]*model.Submission),
		byStudent: make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *SubmissionRepository) GetByID(_ context.Context, id string) (*model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *SubmissionRepository) GetByStudent(_ context.Context, studentID string) (*model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byStudent[studentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *SubmissionRepository) List(_ context.Context, filter repository.SubmissionFilter) ([]*model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Submission, 0, len(r.byID))
	for _, s := range r.byID {
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		result = append(result, s.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *SubmissionRepository) Upsert(_ context.Context, p repository.UpsertParams) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	f := p.File

	if id, ok := r.byStudent[p.StudentID]; ok {
		s := r.byID[id]
		if s.Status == lifecycle.StatusApproved {
			return nil, fmt.Errorf("%w: работа студента %s уже принята", repository.ErrStatusConflict, p.StudentID)
		}
		s.StudentName = p.StudentName
		s.FileName, s.FileSize, s.FileType = &f.FileName, &f.FileSize, &f.FileType
		s.FilePath, s.Checksum = &f.FilePath, &f.Checksum
		s.Status = lifecycle.StatusPending
		s.Feedback = nil
		s.SubmittedAt = p.SubmittedAt
		s.ReviewedBy, s.ReviewedAt = nil, nil
		s.UpdatedAt = now
		return s.Clone(), nil
	}

	if _, exists := r.byID[p.NewID]; exists {
		return nil, fmt.Errorf("%w: работа с ID %s уже существует", repository.ErrConflict, p.NewID)
	}

	s := &model.Submission{
		ID:          p.NewID,
		StudentID:   p.StudentID,
		StudentName: p.StudentName,
		FileName:    &f.FileName,
		FileSize:    &f.FileSize,
		FileType:    &f.FileType,
		FilePath:    &f.FilePath,
		Checksum:    &f.Checksum,
		Status:      lifecycle.StatusPending,
		CreatedAt:   p.SubmittedAt,
		SubmittedAt: p.SubmittedAt,
		UpdatedAt:   now,
	}
	r.byID[s.ID] = s
	r.byStudent[s.StudentID] = s.ID
	return s.Clone(), nil
}

func (r *SubmissionRepository) UpdateReview(_ context.Context, id string, upd model.ReviewUpdate) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.Status != lifecycle.StatusPending {
		return nil, fmt.Errorf("%w: работа %s в статусе %s", repository.ErrStatusConflict, id, s.Status)
	}

	s.Status = upd.Status
	s.Feedback = upd.Feedback
	reviewedBy, reviewedAt := upd.ReviewedBy, upd.ReviewedAt
	s.ReviewedBy, s.ReviewedAt = &reviewedBy, &reviewedAt
	if upd.PurgeFile {
		s.FileName = upd.FileName
		s.FileSize, s.FileType, s.FilePath, s.Checksum = nil, nil, nil, nil
	}
	s.UpdatedAt = r.now()
	return s.Clone(), nil
}

func (r *SubmissionRepository) DeleteByStudent(_ context.Context, studentID string) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byStudent[studentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s := r.byID[id]
	delete(r.byID, id)
	delete(r.byStudent, studentID)
	return s, nil
}

func (r *SubmissionRepository) ReferencesPath(_ context.Context, path string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.byID {
		if s.FilePath != nil && *s.FilePath == path {
			return true, nil
		}
	}
	return false, nil
}

// UserRepository — пользователи в памяти.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository создаёт пустой репозиторий пользователей.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*model.User)}
}

func (r *UserRepository) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return fmt.Errorf("%w: пользователь с таким ID или email уже существует", repository.ErrConflict)
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("%w: пользователь с таким ID или email уже существует", repository.ErrConflict)
		}
	}

	u.CreatedAt = time.Now().UTC()
	stored := *u
	r.users[u.ID] = &stored
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *UserRepository) List(_ context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		c := *u
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}
