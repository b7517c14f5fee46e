// seed.go — создание начальных учётных записей при старте.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/submission-portal/internal/domain/model"
	"github.com/bigkaa/submission-portal/internal/repository"
)

// SeedService создаёт объявленные учётные записи, если их ещё нет.
// Запускается один раз при старте; повторный запуск ничего не меняет.
type SeedService struct {
	users    repository.UserRepository
	accounts []model.User
	logger   *slog.Logger
}

// NewSeedService создаёт сервис начальных учётных записей.
func NewSeedService(users repository.UserRepository, accounts []model.User, logger *slog.Logger) *SeedService {
	return &SeedService{
		users:    users,
		accounts: accounts,
		logger:   logger.With(slog.String("component", "seed")),
	}
}

// Run создаёт отсутствующие учётные записи. Возвращает число созданных.
func (s *SeedService) Run(ctx context.Context) (int, error) {
	created := 0
	for _, acc := range s.accounts {
		_, err := s.users.GetByID(ctx, acc.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return created, fmt.Errorf("проверка учётной записи %s: %w", acc.ID, err)
		}

		u := acc
		if err := s.users.Create(ctx, &u); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				// Email занят другим пользователем
				s.logger.Warn("Начальная учётная запись не создана: конфликт",
					slog.String("user_id", acc.ID),
					slog.String("email", acc.Email),
				)
				continue
			}
			return created, fmt.Errorf("создание учётной записи %s: %w", acc.ID, err)
		}

		created++
		s.logger.Info("Создана начальная учётная запись",
			slog.String("user_id", u.ID),
			slog.String("role", string(u.Role)),
		)
	}
	return created, nil
}
