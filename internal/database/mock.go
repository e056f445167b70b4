package database

import (
	"github.com/stretchr/testify/mock"
)

type MockGitTalkRepository struct {
	mock.Mock
}

func (m *MockGitTalkRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGitTalkRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGitTalkRepository) UpdateAvatar(userId, avatarUrl string) (User, error) {
	args := m.Called(userId, avatarUrl)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGitTalkRepository) GetAccountById(id string) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGitTalkRepository) GetAccountByLogin(login string) (User, error) {
	args := m.Called(login)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGitTalkRepository) GetAccountByGithubId(githubId string) (User, error) {
	args := m.Called(githubId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGitTalkRepository) CreateDMRoom(userA, userB string) (Room, error) {
	args := m.Called(userA, userB)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGitTalkRepository) CreateThreadRoom(contextUrl, userId string) (Room, error) {
	args := m.Called(contextUrl, userId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGitTalkRepository) AddParticipant(roomId, userId string) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockGitTalkRepository) GetDMRoom(userA, userB string) (Room, error) {
	args := m.Called(userA, userB)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGitTalkRepository) GetThreadRoomByContextUrl(contextUrl string) (Room, error) {
	args := m.Called(contextUrl)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGitTalkRepository) GetRoomWithParticipants(roomId string) (*Room, error) {
	args := m.Called(roomId)
	if room, ok := args.Get(0).(*Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGitTalkRepository) ListRoomsForUser(userId string) ([]RoomSummary, error) {
	args := m.Called(userId)
	return args.Get(0).([]RoomSummary), args.Error(1)
}
func (m *MockGitTalkRepository) CreateMessage(roomId, senderId, body string) (Message, error) {
	args := m.Called(roomId, senderId, body)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGitTalkRepository) ListMessages(roomId string) ([]Message, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Message), args.Error(1)
}
