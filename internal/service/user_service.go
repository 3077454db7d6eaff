package service

import (
	"context"

	"zapisnik/internal/domain"
	"zapisnik/internal/models"

	"github.com/rs/zerolog"
)

// UserService хранит пользователей и решает вопросы доступа.
// Списки админов и разрешённых задаются конфигом при старте.
type UserService struct {
	repo      domain.SlotRepository
	logger    *zerolog.Logger
	adminsMap map[int64]bool
	allowMap  map[int64]bool
}

func NewUserService(repo domain.SlotRepository, admins, allowList []int64, logger *zerolog.Logger) *UserService {
	adminsMap := make(map[int64]bool)
	for _, id := range admins {
		adminsMap[id] = true
	}

	allowMap := make(map[int64]bool)
	for _, id := range allowList {
		allowMap[id] = true
	}

	return &UserService{
		repo:      repo,
		logger:    logger,
		adminsMap: adminsMap,
		allowMap:  allowMap,
	}
}

// IsAuthorized: пустой allow_list означает открытый доступ; админы проходят всегда.
func (s *UserService) IsAuthorized(userID int64) bool {
	if s.adminsMap[userID] {
		return true
	}
	if len(s.allowMap) == 0 {
		return true
	}
	return s.allowMap[userID]
}

func (s *UserService) IsAdmin(userID int64) bool {
	return s.adminsMap[userID]
}

func (s *UserService) GetOrCreateUser(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error) {
	user := &models.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		IsAdmin:    s.IsAdmin(telegramID),
	}
	if err := s.repo.CreateOrUpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return s.repo.GetUserByTelegramID(ctx, telegramID)
}

func (s *UserService) UpdateUserActivity(ctx context.Context, telegramID int64) error {
	return s.repo.UpdateUserActivity(ctx, telegramID)
}

func (s *UserService) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.repo.GetUserByTelegramID(ctx, telegramID)
}
