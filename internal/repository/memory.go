package repository

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/clipguess/internal/domain"
)

type InMemoryPlayerRepository struct {
	mu      sync.RWMutex
	players map[string]*domain.Profile
}

func NewInMemoryPlayerRepository() *InMemoryPlayerRepository {
	return &InMemoryPlayerRepository{
		players: make(map[string]*domain.Profile),
	}
}

func (r *InMemoryPlayerRepository) GetOrCreate(ctx context.Context, username, externalName string) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	external := domain.NormalizeExternalName(externalName, username)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		if strings.EqualFold(p.ExternalName, external) || strings.EqualFold(p.Username, strings.TrimSpace(username)) {
			res := *p
			return &res, nil
		}
	}

	profile := domain.NewGuestProfile(username, externalName)
	r.players[profile.ID] = profile
	res := *profile
	return &res, nil
}

type memoryRoom struct {
	code    string
	members map[string]string
}

type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*memoryRoom
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms: make(map[string]*memoryRoom),
	}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.rooms[id] = &memoryRoom{code: code, members: make(map[string]string)}
	return id, nil
}

func (r *InMemoryRoomRepository) AddMember(ctx context.Context, roomID, playerID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.members[playerID] = sessionID
	return nil
}

func (r *InMemoryRoomRepository) Members(roomID string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	res := make(map[string]string, len(room.members))
	for k, v := range room.members {
		res[k] = v
	}
	return res
}

type memorySubmission struct {
	round        domain.Round
	externalID   string
	playCount    int
	lastPlayedAt *time.Time
	createdAt    time.Time
}

type InMemorySubmissionRepository struct {
	mu          sync.RWMutex
	submissions map[string]*memorySubmission
	externalIDs map[string]struct{}
	history     []playRecord
	now         func() time.Time
}

type playRecord struct {
	submissionID string
	roomCode     string
	playedAt     time.Time
}

func NewInMemorySubmissionRepository() *InMemorySubmissionRepository {
	return &InMemorySubmissionRepository{
		submissions: make(map[string]*memorySubmission),
		externalIDs: make(map[string]struct{}),
		now:         time.Now,
	}
}

func (r *InMemorySubmissionRepository) Save(ctx context.Context, ownerID string, urls []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	saved := 0
	for _, u := range urls {
		externalID := domain.VideoID(u)
		if externalID != "" {
			if _, dup := r.externalIDs[externalID]; dup {
				continue
			}
			r.externalIDs[externalID] = struct{}{}
		}
		id := uuid.NewString()
		r.submissions[id] = &memorySubmission{
			round:      domain.Round{ID: id, VideoURL: u, OwnerID: ownerID, Persisted: true},
			externalID: externalID,
			createdAt:  r.now(),
		}
		saved++
	}
	return saved, nil
}

func (r *InMemorySubmissionRepository) Eligible(ctx context.Context, ownerIDs []string, limit int) ([]domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ownerIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var fresh, all []*memorySubmission
	for _, s := range r.submissions {
		if _, ok := owners[s.round.OwnerID]; !ok {
			continue
		}
		all = append(all, s)
		if s.playCount == 0 {
			fresh = append(fresh, s)
		}
	}

	rand.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
	if len(fresh) > limit {
		fresh = fresh[:limit]
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.playCount != b.playCount {
			return a.playCount < b.playCount
		}
		switch {
		case a.lastPlayedAt == nil && b.lastPlayedAt == nil:
			return a.createdAt.Before(b.createdAt)
		case a.lastPlayedAt == nil:
			return true
		case b.lastPlayedAt == nil:
			return false
		}
		return a.lastPlayedAt.Before(*b.lastPlayedAt)
	})
	if len(all) > fallbackScanLimit {
		all = all[:fallbackScanLimit]
	}

	return mergeEligible(toRounds(fresh), toRounds(all), limit), nil
}

func toRounds(subs []*memorySubmission) []domain.Round {
	res := make([]domain.Round, 0, len(subs))
	for _, s := range subs {
		res = append(res, s.round)
	}
	return res
}

func (r *InMemorySubmissionRepository) MarkPlayed(ctx context.Context, submissionID, roomCode string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.submissions[submissionID]
	if !ok {
		return nil
	}
	now := r.now()
	s.playCount++
	s.lastPlayedAt = &now
	r.history = append(r.history, playRecord{submissionID: submissionID, roomCode: roomCode, playedAt: now})
	return nil
}

func (r *InMemorySubmissionRepository) PlayableCounts(ctx context.Context, ownerIDs []string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, s := range r.submissions {
		if _, ok := owners[s.round.OwnerID]; ok && s.playCount == 0 {
			counts[s.round.OwnerID]++
		}
	}
	return counts, nil
}

type memoryToken struct {
	token     domain.ImportToken
	expiresAt time.Time
}

type InMemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{
		tokens: make(map[string]memoryToken),
		now:    time.Now,
	}
}

func (s *InMemoryTokenStore) Put(ctx context.Context, token *domain.ImportToken, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cleanupLocked(now)
	s.tokens[token.Token] = memoryToken{token: *token, expiresAt: now.Add(ttl)}
	return nil
}

func (s *InMemoryTokenStore) Take(ctx context.Context, token string) (*domain.ImportToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked(s.now())
	t, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	delete(s.tokens, token)
	res := t.token
	return &res, nil
}

func (s *InMemoryTokenStore) cleanupLocked(now time.Time) {
	for k, t := range s.tokens {
		if !now.Before(t.expiresAt) {
			delete(s.tokens, k)
		}
	}
}
