package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImportToken authorizes one out-of-band submission import for a player.
type ImportToken struct {
	Token     string    `json:"token"`
	RoomCode  string    `json:"room_code"`
	PlayerID  string    `json:"player_id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

func NewImportToken(roomCode, playerID, sessionID string, now time.Time) *ImportToken {
	return &ImportToken{
		Token:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		RoomCode:  roomCode,
		PlayerID:  playerID,
		SessionID: sessionID,
		CreatedAt: now,
	}
}
