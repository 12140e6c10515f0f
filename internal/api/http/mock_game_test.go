package http

import (
	"context"

	"github.com/immxrtalbeast/clipguess/internal/service"
	"github.com/stretchr/testify/mock"
)

type mockGame struct {
	mock.Mock
}

func (m *mockGame) CreateRoom(ctx context.Context, sessionID string, in service.ProfileInput) (*service.JoinResult, error) {
	args := m.Called(ctx, sessionID, in)
	res, _ := args.Get(0).(*service.JoinResult)
	return res, args.Error(1)
}

func (m *mockGame) JoinRoom(ctx context.Context, sessionID, code string, in service.ProfileInput) (*service.JoinResult, error) {
	args := m.Called(ctx, sessionID, code, in)
	res, _ := args.Get(0).(*service.JoinResult)
	return res, args.Error(1)
}

func (m *mockGame) CreateImportToken(ctx context.Context, sessionID, code string) (string, error) {
	args := m.Called(ctx, sessionID, code)
	return args.String(0), args.Error(1)
}

func (m *mockGame) ImportLikes(ctx context.Context, sessionID, code, text string) (int, error) {
	args := m.Called(ctx, sessionID, code, text)
	return args.Int(0), args.Error(1)
}

func (m *mockGame) ImportFromToken(ctx context.Context, token string, urls []string) (int, error) {
	args := m.Called(ctx, token, urls)
	return args.Int(0), args.Error(1)
}

func (m *mockGame) StartGame(ctx context.Context, sessionID, code string, totalRounds int) (int, error) {
	args := m.Called(ctx, sessionID, code, totalRounds)
	return args.Int(0), args.Error(1)
}

func (m *mockGame) PreloadDone(sessionID, code string) error {
	return m.Called(sessionID, code).Error(0)
}

func (m *mockGame) SubmitVote(sessionID, code, targetPlayerID string, roundIndex int) error {
	return m.Called(sessionID, code, targetPlayerID, roundIndex).Error(0)
}

func (m *mockGame) RequestNextRound(sessionID, code string) error {
	return m.Called(sessionID, code).Error(0)
}

func (m *mockGame) SkipRound(sessionID, code string) error {
	return m.Called(sessionID, code).Error(0)
}

func (m *mockGame) VideoPlayFailed(sessionID, code string, roundIndex int, videoURL string) {
	m.Called(sessionID, code, roundIndex, videoURL)
}

func (m *mockGame) Rejoin(ctx context.Context, sessionID, code, playerID string) (*service.RejoinResult, error) {
	args := m.Called(ctx, sessionID, code, playerID)
	res, _ := args.Get(0).(*service.RejoinResult)
	return res, args.Error(1)
}

func (m *mockGame) Leave(sessionID, code string) error {
	return m.Called(sessionID, code).Error(0)
}

func (m *mockGame) Disconnect(sessionID string) {
	m.Called(sessionID)
}
