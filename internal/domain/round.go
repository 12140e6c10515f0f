package domain

import (
	"regexp"
	"time"
)

// Round is one unit of gameplay: a video reference and the player who
// submitted it. The same shape describes spare submissions used for
// preload replacement.
type Round struct {
	ID        string `json:"id"`
	VideoURL  string `json:"video_url"`
	OwnerID   string `json:"owner_id"`
	Persisted bool   `json:"-"`
}

type Vote struct {
	TargetPlayerID string
	ResponseTime   time.Duration
}

// GameState exists while a room is preparing or playing.
type GameState struct {
	ID             string
	Rounds         []Round
	CurrentIndex   int
	Votes          map[string]Vote
	RoundStartTime time.Time
	// Resolved is set once the current round has been tallied and stays set
	// until the next round is broadcast.
	Resolved bool
}

func NewGameState(id string, rounds []Round) *GameState {
	return &GameState{
		ID:     id,
		Rounds: rounds,
		Votes:  make(map[string]Vote),
	}
}

func (g *GameState) CurrentRound() (Round, bool) {
	if g.CurrentIndex < 0 || g.CurrentIndex >= len(g.Rounds) {
		return Round{}, false
	}
	return g.Rounds[g.CurrentIndex], true
}

func (g *GameState) Finished() bool {
	return g.CurrentIndex >= len(g.Rounds)
}

func (g *GameState) HasNext() bool {
	return g.CurrentIndex+1 < len(g.Rounds)
}

var videoIDPattern = regexp.MustCompile(`/video/(\d+)`)

// VideoID extracts the platform video id from a video page URL.
func VideoID(videoURL string) string {
	m := videoIDPattern.FindStringSubmatch(videoURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
