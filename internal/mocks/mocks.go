package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"inbox-service/internal/models"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessagesForUser(ctx context.Context, userID string) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessagesBetween(ctx context.Context, userID string, otherID string) ([]models.Message, error) {
	args := m.Called(ctx, userID, otherID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, receiverID string, messageIDs []string) (int, error) {
	args := m.Called(ctx, receiverID, messageIDs)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) BackfillParticipants(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var user models.UserProfile
	if val := args.Get(0); val != nil {
		user = val.(models.UserProfile)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []string) ([]models.UserProfile, error) {
	args := m.Called(ctx, ids)
	var list []models.UserProfile
	if val := args.Get(0); val != nil {
		list = val.([]models.UserProfile)
	}
	return list, args.Error(1)
}

func (m *UserRepositoryMock) ListFollowed(ctx context.Context, userID string) ([]models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var list []models.UserProfile
	if val := args.Get(0); val != nil {
		list = val.([]models.UserProfile)
	}
	return list, args.Error(1)
}

type ObjectStoreMock struct {
	mock.Mock
}

func (m *ObjectStoreMock) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	args := m.Called(ctx, key, contentType, body)
	return args.String(0), args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) NotifyMessage(ctx context.Context, recipient models.UserProfile, sender models.UserProfile, msg models.Message) error {
	args := m.Called(ctx, recipient, sender, msg)
	return args.Error(0)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}
