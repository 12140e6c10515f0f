package domain

type EventType string

const (
	EventRoomUpdated     EventType = "room_updated"
	EventGamePreparing   EventType = "game_preparing"
	EventPreloadProgress EventType = "preload_progress"
	EventGameStarted     EventType = "game_started"
	EventNextRound       EventType = "next_round"
	EventStartReveal     EventType = "start_reveal"
	EventRevealWinner    EventType = "reveal_winner"
	EventGameOver        EventType = "game_over"
	EventHarvestDone     EventType = "harvest_done"
)

// Event is a server-to-client message. Payload is one of the *Payload types below.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type PlayerView struct {
	SessionID     string `json:"socketId,omitempty"`
	PlayerID      string `json:"playerId"`
	Username      string `json:"username"`
	ExternalName  string `json:"externalName"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	IsReady       bool   `json:"isReady"`
	Score         int    `json:"score"`
	Streak        int    `json:"streak"`
	IsHost        bool   `json:"isHost"`
	Connected     bool   `json:"connected"`
	PlayableCount *int   `json:"playableCount"`
}

type RoomUpdatedPayload struct {
	Players []PlayerView `json:"players"`
}

type GamePreparingPayload struct {
	RoundURLs    []string     `json:"roundUrls"`
	TotalRounds  int          `json:"totalRounds"`
	PreloadTotal int          `json:"preloadTotal"`
	Players      []PlayerView `json:"players"`
}

type PreloadProgressPayload struct {
	RoomCode string `json:"roomCode"`
	Loaded   int    `json:"loaded"`
	Total    int    `json:"total"`
}

type GameStartedPayload struct {
	Players     []PlayerView `json:"players"`
	TotalRounds int          `json:"totalRounds"`
}

type NextRoundPayload struct {
	RoundIndex  int          `json:"roundIndex"`
	TotalRounds int          `json:"totalRounds"`
	VideoURL    string       `json:"videoUrl"`
	OwnerID     string       `json:"ownerId"`
	Players     []PlayerView `json:"players"`
}

type StartRevealPayload struct {
	OwnerID    string `json:"ownerId"`
	RoundIndex int    `json:"roundIndex"`
}

type RoundScore struct {
	PlayerID        string `json:"playerId"`
	Username        string `json:"username"`
	Score           int    `json:"score"`
	Streak          int    `json:"streak"`
	PointsThisRound int    `json:"pointsThisRound"`
}

type RevealWinnerPayload struct {
	OwnerID      string       `json:"ownerId"`
	Scores       []RoundScore `json:"scores"`
	HasNextRound bool         `json:"hasNextRound"`
}

type FinalScore struct {
	PlayerID     string `json:"playerId"`
	Username     string `json:"username"`
	Score        int    `json:"score"`
	CorrectCount int    `json:"correctCount"`
	MaxStreak    int    `json:"maxStreak"`
}

type GameOverPayload struct {
	Scores      []FinalScore `json:"scores"`
	TotalRounds int          `json:"totalRounds"`
}

type HarvestDonePayload struct {
	Count int `json:"count"`
}
