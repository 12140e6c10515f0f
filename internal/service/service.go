package service

import (
	"context"

	"github.com/immxrtalbeast/clipguess/internal/domain"
)

type ProfileInput struct {
	Username     string
	ExternalName string
	AvatarURL    string
}

type JoinResult struct {
	Code     string              `json:"code"`
	PlayerID string              `json:"playerId"`
	Players  []domain.PlayerView `json:"players"`
}

type CurrentRound struct {
	RoundIndex  int    `json:"roundIndex"`
	TotalRounds int    `json:"totalRounds"`
	VideoURL    string `json:"videoUrl,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
}

type RejoinResult struct {
	PlayerID    string              `json:"playerId"`
	Players     []domain.PlayerView `json:"players"`
	Reconnected bool                `json:"reconnected"`
	IsHost      bool                `json:"isHost"`
	GameState   *CurrentRound       `json:"gameState"`
}

// GameInteractor is the command surface of the game, keyed by the caller's
// transport session.
type GameInteractor interface {
	CreateRoom(ctx context.Context, sessionID string, in ProfileInput) (*JoinResult, error)
	JoinRoom(ctx context.Context, sessionID, code string, in ProfileInput) (*JoinResult, error)
	CreateImportToken(ctx context.Context, sessionID, code string) (string, error)
	ImportLikes(ctx context.Context, sessionID, code, text string) (int, error)
	ImportFromToken(ctx context.Context, token string, urls []string) (int, error)
	StartGame(ctx context.Context, sessionID, code string, totalRounds int) (int, error)
	PreloadDone(sessionID, code string) error
	SubmitVote(sessionID, code, targetPlayerID string, roundIndex int) error
	RequestNextRound(sessionID, code string) error
	SkipRound(sessionID, code string) error
	VideoPlayFailed(sessionID, code string, roundIndex int, videoURL string)
	Rejoin(ctx context.Context, sessionID, code, playerID string) (*RejoinResult, error)
	Leave(sessionID, code string) error
	Disconnect(sessionID string)
}
