package users_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bib-resale/internal/logger"
	"bib-resale/internal/models"
	"bib-resale/internal/users"
)

// Mock implementations
type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) UpsertUser(user models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockDBLayer) GetUserByID(id string) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// Tests start here
func TestSyncUserUpserts(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := users.NewUserService(mockDB, logger.NewLogger())

	mockDB.On("UpsertUser", mock.MatchedBy(func(u models.User) bool {
		return u.ID == "user-1" && u.Email == "runner@example.com"
	})).Return(nil)

	user, err := svc.SyncUser(models.UserSyncRequest{
		ID:       "user-1",
		Email:    "runner@example.com",
		FullName: "Ada Runner",
	})

	require.NoError(t, err)
	assert.Equal(t, "Ada Runner", user.FullName)
	mockDB.AssertExpectations(t)
}

func TestSyncUserRejectsIncompletePayload(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := users.NewUserService(mockDB, logger.NewLogger())

	_, err := svc.SyncUser(models.UserSyncRequest{Email: "runner@example.com"})
	assert.ErrorIs(t, err, users.ErrInvalidUser)

	_, err = svc.SyncUser(models.UserSyncRequest{ID: "user-1"})
	assert.ErrorIs(t, err, users.ErrInvalidUser)

	mockDB.AssertNotCalled(t, "UpsertUser", mock.Anything)
}

func TestGetUser(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := users.NewUserService(mockDB, logger.NewLogger())

	mockDB.On("GetUserByID", "user-1").Return(&models.User{ID: "user-1", FullName: "Ada Runner"}, nil)

	user, err := svc.GetUser("user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Runner", user.FullName)
}
