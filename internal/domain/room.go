package domain

import (
	"sync"
	"time"
)

type RoomStatus string

const (
	RoomStatusLobby     RoomStatus = "lobby"
	RoomStatusPreparing RoomStatus = "preparing"
	RoomStatusPlaying   RoomStatus = "playing"
)

// Room is a game lobby addressed by a short human-enterable code.
// Every field is guarded by Mutex.
type Room struct {
	Mutex        sync.Mutex
	Code         string
	RecordID     string
	HostID       string
	Players      []*Player
	Status       RoomStatus
	Game         *GameState
	CreatedAt    time.Time
	LastActivity time.Time
}

// NewRoom constructs a lobby room.
func NewRoom(code string, now time.Time) *Room {
	return &Room{
		Code:         code,
		Players:      make([]*Player, 0, 4),
		Status:       RoomStatusLobby,
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (r *Room) Touch(now time.Time) {
	r.LastActivity = now
}

func (r *Room) IdleFor(now time.Time) time.Duration {
	return now.Sub(r.LastActivity)
}

func (r *Room) PlayerBySession(sessionID string) *Player {
	if sessionID == "" {
		return nil
	}
	for _, p := range r.Players {
		if p.SessionID == sessionID {
			return p
		}
	}
	return nil
}

func (r *Room) PlayerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) ConnectedPlayers() []*Player {
	res := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Connected() {
			res = append(res, p)
		}
	}
	return res
}

func (r *Room) SessionIDs() []string {
	res := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Connected() {
			res = append(res, p.SessionID)
		}
	}
	return res
}

func (r *Room) IsHost(p *Player) bool {
	return p != nil && p.ID == r.HostID
}

func (r *Room) PlayerIDs() []string {
	res := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		res = append(res, p.ID)
	}
	return res
}

// ReassignHost hands the host role to the first connected member when the
// current host is gone or disconnected. It reports whether the host changed.
func (r *Room) ReassignHost() bool {
	if host := r.PlayerByID(r.HostID); host != nil && host.Connected() {
		return false
	}
	for _, p := range r.Players {
		if p.Connected() {
			r.HostID = p.ID
			return true
		}
	}
	if len(r.Players) > 0 && r.PlayerByID(r.HostID) == nil {
		r.HostID = r.Players[0].ID
		return true
	}
	return false
}

func (r *Room) RemovePlayer(id string) bool {
	for i, p := range r.Players {
		if p.ID == id {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return true
		}
	}
	return false
}

// Roster renders the player list for clients. counts may be nil.
func (r *Room) Roster(counts map[string]int) []PlayerView {
	views := make([]PlayerView, 0, len(r.Players))
	for _, p := range r.Players {
		view := PlayerView{
			SessionID:    p.SessionID,
			PlayerID:     p.ID,
			Username:     p.Username,
			ExternalName: p.ExternalName,
			AvatarURL:    p.AvatarURL,
			IsReady:      p.IsReady,
			Score:        p.Score,
			Streak:       p.Streak,
			IsHost:       r.IsHost(p),
			Connected:    p.Connected(),
		}
		if counts != nil {
			if c, ok := counts[p.ID]; ok {
				c := c
				view.PlayableCount = &c
			}
		}
		views = append(views, view)
	}
	return views
}
