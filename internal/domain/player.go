package domain

// Player is a room-scoped membership record. SessionID is empty while the
// player is disconnected but still a member of the room.
type Player struct {
	ID           string
	SessionID    string
	Username     string
	ExternalName string
	AvatarURL    string
	IsReady      bool
	Score        int
	Streak       int
	CorrectCount int
	MaxStreak    int
}

func NewPlayer(profile *Profile, sessionID string, avatarURL string) *Player {
	avatar := avatarURL
	if avatar == "" {
		avatar = profile.AvatarURL
	}
	return &Player{
		ID:           profile.ID,
		SessionID:    sessionID,
		Username:     profile.Username,
		ExternalName: profile.ExternalName,
		AvatarURL:    avatar,
	}
}

func (p *Player) Connected() bool {
	return p.SessionID != ""
}

// ResetStats clears per-game counters at game start.
func (p *Player) ResetStats() {
	p.Score = 0
	p.Streak = 0
	p.CorrectCount = 0
	p.MaxStreak = 0
}

// ApplyGuess updates streak and score for one resolved round and returns the
// points awarded. A correct guess extending the streak to n awards
// base + (n-1)*bonus; a miss resets the streak and awards nothing.
func (p *Player) ApplyGuess(correct bool, base, bonus int) int {
	if !correct {
		p.Streak = 0
		return 0
	}
	p.Streak++
	p.CorrectCount++
	if p.Streak > p.MaxStreak {
		p.MaxStreak = p.Streak
	}
	points := base + (p.Streak-1)*bonus
	p.Score += points
	return points
}
