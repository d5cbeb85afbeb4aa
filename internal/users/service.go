package users

import (
	"errors"
	"fmt"
	"time"

	"bib-resale/internal/logger"
	"bib-resale/internal/models"
)

var ErrInvalidUser = errors.New("user id and email are required")

type DBLayer interface {
	UpsertUser(user models.User) error
	GetUserByID(id string) (*models.User, error)
}

// UserService mirrors identity-provider accounts into the local users table.
// The marketplace never authenticates anyone itself; it only keeps profiles
// for display.
type UserService struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewUserService(db DBLayer, log *logger.Logger) *UserService {
	return &UserService{DB: db, Logger: log}
}

// SyncUser records a user pushed by the identity provider's webhook.
// Replays are idempotent: they refresh the profile instead of failing.
func (s *UserService) SyncUser(req models.UserSyncRequest) (*models.User, error) {
	if req.ID == "" || req.Email == "" {
		return nil, ErrInvalidUser
	}

	user := models.User{
		ID:        req.ID,
		Email:     req.Email,
		FullName:  req.FullName,
		CreatedAt: time.Now(),
	}
	if err := s.DB.UpsertUser(user); err != nil {
		return nil, fmt.Errorf("failed to sync user: %w", err)
	}

	s.Logger.Info("USER", fmt.Sprintf("Synced user %s", req.ID))
	return &user, nil
}

func (s *UserService) GetUser(id string) (*models.User, error) {
	return s.DB.GetUserByID(id)
}
