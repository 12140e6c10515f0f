package registry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/immxrtalbeast/clipguess/internal/domain"
)

const (
	CodeLength   = 6
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxCodeAttempts = 100
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrCodeExhausted = errors.New("could not allocate a room code")
)

// ExpireFunc releases per-room state held outside the registry. It is called
// with the room's mutex held.
type ExpireFunc func(room *domain.Room)

// Registry is the in-memory directory of active rooms.
type Registry struct {
	idleTTL time.Duration
	log     *slog.Logger
	now     func() time.Time
	intn    func(n int) int

	mu    sync.RWMutex
	rooms map[string]*domain.Room

	sweepMu sync.Mutex
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithRand(intn func(n int) int) Option {
	return func(r *Registry) { r.intn = intn }
}

func New(idleTTL time.Duration, log *slog.Logger, opts ...Option) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		idleTTL: idleTTL,
		log:     log,
		now:     time.Now,
		intn:    rand.IntN,
		rooms:   make(map[string]*domain.Room),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a fresh code and registers an empty lobby room under it.
func (r *Registry) Create() (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range maxCodeAttempts {
		code := r.generateCode()
		if _, taken := r.rooms[code]; taken {
			continue
		}
		room := domain.NewRoom(code, r.now())
		r.rooms[code] = room
		return room, nil
	}
	return nil, ErrCodeExhausted
}

func (r *Registry) generateCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for range CodeLength {
		b.WriteByte(CodeAlphabet[r.intn(len(CodeAlphabet))])
	}
	return b.String()
}

// NormalizeCode trims and upper-cases a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Registry) Get(code string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[NormalizeCode(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Delete removes room if it is still the one registered under its code.
func (r *Registry) Delete(room *domain.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.rooms[room.Code]; ok && current == room {
		delete(r.rooms, room.Code)
		return true
	}
	return false
}

// Touch marks player activity. The caller holds room.Mutex.
func (r *Registry) Touch(room *domain.Room) {
	room.Touch(r.now())
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) snapshot() []*domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Sweep removes every room idle for longer than the idle TTL and returns the
// codes it removed. Concurrent sweeps are serialized.
func (r *Registry) Sweep(now time.Time, onExpire ExpireFunc) []string {
	const op = "registry.sweep"

	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	var removed []string
	for _, room := range r.snapshot() {
		room.Mutex.Lock()
		if room.IdleFor(now) > r.idleTTL && r.Delete(room) {
			if onExpire != nil {
				onExpire(room)
			}
			removed = append(removed, room.Code)
		}
		room.Mutex.Unlock()
	}

	if len(removed) > 0 {
		r.log.Info("idle rooms removed",
			slog.String("op", op),
			slog.Int("count", len(removed)),
			slog.Any("rooms", removed),
		)
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration, onExpire ExpireFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now(), onExpire)
		}
	}
}
