// users.go — управление пользователями портала.
// Удаление студента каскадно удаляет его работу (запись и blob).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/submission-portal/internal/domain/model"
	"github.com/bigkaa/submission-portal/internal/repository"
)

// SubmissionCleaner — удаление работы студента при удалении пользователя.
type SubmissionCleaner interface {
	DeleteForStudent(ctx context.Context, studentID string) (bool, error)
}

// RegisterParams — параметры регистрации пользователя.
type RegisterParams struct {
	// ID — идентификатор (sub в IdP); пусто — сгенерировать
	ID    string
	Name  string
	Email string
	// Role — роль; пусто — STUDENT
	Role string
}

// UserService — сервис пользователей.
type UserService struct {
	users       repository.UserRepository
	submissions SubmissionCleaner
	logger      *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(
	users repository.UserRepository,
	submissions SubmissionCleaner,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:       users,
		submissions: submissions,
		logger:      logger.With(slog.String("component", "user_service")),
	}
}

// Register создаёт пользователя. Доступно только администраторам.
func (s *UserService) Register(ctx context.Context, actor *model.User, p RegisterParams) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: регистрировать пользователей могут только администраторы", ErrForbidden)
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: имя обязательно", ErrValidation)
	}

	email := strings.TrimSpace(p.Email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: некорректный email %q", ErrValidation, p.Email)
	}

	role := model.RoleStudent
	if strings.TrimSpace(p.Role) != "" {
		role, err = model.ParseRole(p.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = uuid.New().String()
	}

	u := &model.User{ID: id, Name: name, Email: email, Role: role}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: пользователь с email '%s' или ID '%s' уже существует", ErrConflict, email, id)
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
		slog.String("actor", actor.ID),
	)
	return u, nil
}

// Get возвращает пользователя по ID.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь %s не найден", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return u, nil
}

// List возвращает всех пользователей, упорядоченных по имени.
func (s *UserService) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка пользователей: %w", err)
	}
	return users, nil
}

// ResolveActor сопоставляет subject из JWT с пользователем портала.
func (s *UserService) ResolveActor(ctx context.Context, subject string) (*model.User, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: пустой subject", ErrNotFound)
	}
	return s.Get(ctx, subject)
}

// DeleteUser удаляет пользователя.
//
// Порядок: права → запрет самоудаления → существование → каскадное
// удаление работы студента → удаление записи пользователя. Если работа
// не удалена, пользователь остаётся.
func (s *UserService) DeleteUser(ctx context.Context, actor *model.User, userID string) (bool, error) {
	if !actor.IsAdmin() {
		return false, fmt.Errorf("%w: удалять пользователей могут только администраторы", ErrForbidden)
	}
	if actor.ID == userID {
		return false, fmt.Errorf("%w: нельзя удалить собственную учётную запись", ErrValidation)
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}

	if u.Role == model.RoleStudent {
		if _, err := s.submissions.DeleteForStudent(ctx, u.ID); err != nil {
			return false, fmt.Errorf("удаление работы студента %s: %w", u.ID, err)
		}
	}

	if err := s.users.Delete(ctx, u.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%w: пользователь %s не найден", ErrNotFound, userID)
		}
		return false, fmt.Errorf("%w: %v", ErrRecordWrite, err)
	}

	s.logger.Info("Пользователь удалён",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
		slog.String("actor", actor.ID),
	)
	return true, nil
}
