package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/clipguess/internal/domain"
	"github.com/immxrtalbeast/clipguess/internal/preload"
	"github.com/immxrtalbeast/clipguess/internal/realtime"
	"github.com/immxrtalbeast/clipguess/internal/registry"
	"github.com/immxrtalbeast/clipguess/internal/repository"
	"github.com/immxrtalbeast/clipguess/lib/logger/sl"
)

const (
	maxUsernameLen    = 32
	backgroundTimeout = 10 * time.Second
)

type Config struct {
	MinRounds      int
	MaxRounds      int
	BasePoints     int
	StreakBonus    int
	RevealDelay    time.Duration
	NextRoundDelay time.Duration
	DedupeWindow   time.Duration
	MaxAvatarBytes int
	SparePoolExtra int
	ImportTokenTTL time.Duration
}

type Repositories struct {
	Players     repository.PlayerRepository
	Rooms       repository.RoomRepository
	Submissions repository.SubmissionRepository
	Tokens      repository.TokenStore
}

// Preloader is the slice of preload.Pipeline the game depends on.
type Preloader interface {
	Run(ctx context.Context, job preload.Job) preload.Report
}

// roomState is the per-room bookkeeping kept next to the registry. Fields are
// guarded by the owning room's Mutex.
type roomState struct {
	likes    map[string][]domain.Round
	played   map[string]struct{}
	counts   map[string]int
	starting bool

	sent      bool
	sentIndex int
	sentAt    time.Time

	timers        []Timer
	cancelPreload context.CancelFunc
}

func newRoomState() *roomState {
	return &roomState{
		likes:  make(map[string][]domain.Round),
		played: make(map[string]struct{}),
	}
}

func (st *roomState) stop() {
	for _, t := range st.timers {
		t.Stop()
	}
	st.timers = nil
	if st.cancelPreload != nil {
		st.cancelPreload()
		st.cancelPreload = nil
	}
}

var _ GameInteractor = (*GameService)(nil)

type GameService struct {
	cfg       Config
	log       *slog.Logger
	registry  *registry.Registry
	repos     Repositories
	publisher realtime.Publisher
	cache     *preload.Cache
	preloader Preloader
	scheduler Scheduler
	now       func() time.Time
	shuffle   func([]domain.Round)

	mu       sync.Mutex
	states   map[string]*roomState
	sessions map[string]map[string]struct{}

	playedMu sync.Mutex
	played   map[string]struct{}

	bg sync.WaitGroup
}

type Option func(*GameService)

func WithScheduler(s Scheduler) Option {
	return func(g *GameService) { g.scheduler = s }
}

func WithClock(now func() time.Time) Option {
	return func(g *GameService) { g.now = now }
}

func WithShuffle(shuffle func([]domain.Round)) Option {
	return func(g *GameService) { g.shuffle = shuffle }
}

func NewGameService(
	cfg Config,
	reg *registry.Registry,
	repos Repositories,
	publisher realtime.Publisher,
	cache *preload.Cache,
	preloader Preloader,
	log *slog.Logger,
	opts ...Option,
) *GameService {
	if log == nil {
		log = slog.Default()
	}
	s := &GameService{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		repos:     repos,
		publisher: publisher,
		cache:     cache,
		preloader: preloader,
		scheduler: realScheduler{},
		now:       time.Now,
		shuffle: func(rounds []domain.Round) {
			rand.Shuffle(len(rounds), func(i, j int) { rounds[i], rounds[j] = rounds[j], rounds[i] })
		},
		states:   make(map[string]*roomState),
		sessions: make(map[string]map[string]struct{}),
		played:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps idle rooms until ctx is done.
func (s *GameService) Run(ctx context.Context, interval time.Duration) {
	s.registry.Run(ctx, interval, s.ExpireRoom)
}

// Wait blocks until background persistence and preload runs have finished.
func (s *GameService) Wait() {
	s.bg.Wait()
}

// Shutdown stops every room's timers and preload run, then waits for
// background work to finish or ctx to expire.
func (s *GameService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	codes := make([]string, 0, len(s.states))
	for code := range s.states {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	for _, code := range codes {
		room, err := s.lockRoom(code)
		if err != nil {
			continue
		}
		s.stateLocked(room).stop()
		room.Mutex.Unlock()
	}

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpireRoom releases everything the service holds for room. The caller holds
// room.Mutex and has already removed the room from the registry.
func (s *GameService) ExpireRoom(room *domain.Room) {
	s.mu.Lock()
	st := s.states[room.Code]
	delete(s.states, room.Code)
	for _, p := range room.Players {
		if p.Connected() {
			s.untrackLocked(p.SessionID, room.Code)
		}
	}
	s.mu.Unlock()

	if st != nil {
		st.stop()
	}
	s.cache.Delete(room.Code)
	room.Game = nil
}

func (s *GameService) destroyLocked(room *domain.Room) {
	if s.registry.Delete(room) {
		s.ExpireRoom(room)
		s.log.Info("room destroyed", slog.String("room", room.Code))
	}
}

func (s *GameService) stateLocked(room *domain.Room) *roomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[room.Code]
	if !ok {
		st = newRoomState()
		s.states[room.Code] = st
	}
	return st
}

func (s *GameService) trackSession(sessionID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, ok := s.sessions[sessionID]
	if !ok {
		rooms = make(map[string]struct{})
		s.sessions[sessionID] = rooms
	}
	rooms[code] = struct{}{}
}

func (s *GameService) untrackSession(sessionID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.untrackLocked(sessionID, code)
}

func (s *GameService) untrackLocked(sessionID, code string) {
	rooms, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(rooms, code)
	if len(rooms) == 0 {
		delete(s.sessions, sessionID)
	}
}

func (s *GameService) takeSessionRooms(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	res := make([]string, 0, len(rooms))
	for code := range rooms {
		res = append(res, code)
	}
	return res
}

// lockRoom returns the live room registered under code with its Mutex held.
func (s *GameService) lockRoom(code string) (*domain.Room, error) {
	room, err := s.registry.Get(code)
	if err != nil {
		return nil, ErrRoomNotFound
	}
	room.Mutex.Lock()
	if !s.aliveLocked(room) {
		room.Mutex.Unlock()
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (s *GameService) aliveLocked(room *domain.Room) bool {
	current, err := s.registry.Get(room.Code)
	return err == nil && current == room
}

// lockGame is lockRoom for resumptions bound to one game.
func (s *GameService) lockGame(code, gameID string) (*domain.Room, bool) {
	room, err := s.lockRoom(code)
	if err != nil {
		return nil, false
	}
	if room.Game == nil || room.Game.ID != gameID {
		room.Mutex.Unlock()
		return nil, false
	}
	return room, true
}

func (s *GameService) background(f func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		f(ctx)
	}()
}

func (s *GameService) publishLocked(room *domain.Room, typ domain.EventType, payload any) {
	s.publisher.Publish(room.Code, room.SessionIDs(), domain.Event{Type: typ, Payload: payload})
}

func (s *GameService) rosterLocked(room *domain.Room) []domain.PlayerView {
	return room.Roster(s.stateLocked(room).counts)
}

func (s *GameService) roomUpdatedLocked(room *domain.Room) {
	s.publishLocked(room, domain.EventRoomUpdated, domain.RoomUpdatedPayload{Players: s.rosterLocked(room)})
}

// refreshCounts reloads per-player playable counts and re-announces the roster.
func (s *GameService) refreshCounts(code string) {
	const op = "service.game.refreshCounts"

	s.background(func(ctx context.Context) {
		room, err := s.lockRoom(code)
		if err != nil {
			return
		}
		ids := room.PlayerIDs()
		room.Mutex.Unlock()

		counts, err := s.repos.Submissions.PlayableCounts(ctx, ids)
		if err != nil {
			s.log.Warn("failed to load playable counts", slog.String("op", op), slog.String("room", code), sl.Err(err))
			return
		}

		room, err = s.lockRoom(code)
		if err != nil {
			return
		}
		defer room.Mutex.Unlock()
		s.stateLocked(room).counts = counts
		s.roomUpdatedLocked(room)
	})
}

func (s *GameService) validateProfile(in ProfileInput) (ProfileInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.ExternalName = strings.TrimSpace(in.ExternalName)
	in.AvatarURL = strings.TrimSpace(in.AvatarURL)

	if in.Username == "" {
		return in, ErrUsernameRequired
	}
	if len([]rune(in.Username)) > maxUsernameLen {
		return in, ErrInvalidInput.WithMessage("username too long")
	}
	if s.cfg.MaxAvatarBytes > 0 && len(in.AvatarURL) > s.cfg.MaxAvatarBytes {
		return in, ErrAvatarTooLarge
	}
	if !strings.HasPrefix(in.AvatarURL, "http://") &&
		!strings.HasPrefix(in.AvatarURL, "https://") &&
		!strings.HasPrefix(in.AvatarURL, "data:image/") {
		in.AvatarURL = ""
	}
	return in, nil
}

// profile resolves the durable identity, falling back to a guest profile
// when the store is unavailable.
func (s *GameService) profile(ctx context.Context, in ProfileInput, log *slog.Logger) *domain.Profile {
	profile, err := s.repos.Players.GetOrCreate(ctx, in.Username, in.ExternalName)
	if err != nil {
		log.Warn("failed to load player profile, using guest", sl.Err(err))
		return domain.NewGuestProfile(in.Username, in.ExternalName)
	}
	return profile
}

func (s *GameService) CreateRoom(ctx context.Context, sessionID string, in ProfileInput) (*JoinResult, error) {
	const op = "service.game.CreateRoom"
	log := s.log.With(slog.String("op", op), slog.String("session", sessionID))

	in, err := s.validateProfile(in)
	if err != nil {
		return nil, err
	}
	profile := s.profile(ctx, in, log)

	room, err := s.registry.Create()
	if err != nil {
		log.Error("failed to allocate room", sl.Err(err))
		return nil, ErrTryAgain
	}
	room.Mutex.Lock()
	defer room.Mutex.Unlock()

	recordID, err := s.repos.Rooms.Create(ctx, room.Code)
	if err != nil {
		s.registry.Delete(room)
		log.Error("failed to persist room", slog.String("room", room.Code), sl.Err(err))
		return nil, ErrTryAgain
	}
	room.RecordID = recordID

	player := domain.NewPlayer(profile, sessionID, in.AvatarURL)
	room.Players = append(room.Players, player)
	room.HostID = player.ID
	if err := s.repos.Rooms.AddMember(ctx, recordID, player.ID, sessionID); err != nil {
		log.Warn("failed to persist room member", slog.String("room", room.Code), sl.Err(err))
	}

	s.registry.Touch(room)
	s.trackSession(sessionID, room.Code)
	s.roomUpdatedLocked(room)
	s.refreshCounts(room.Code)

	log.Info("room created", slog.String("room", room.Code), slog.String("player", player.ID))

	return &JoinResult{Code: room.Code, PlayerID: player.ID, Players: s.rosterLocked(room)}, nil
}

func (s *GameService) JoinRoom(ctx context.Context, sessionID, code string, in ProfileInput) (*JoinResult, error) {
	const op = "service.game.JoinRoom"
	log := s.log.With(slog.String("op", op), slog.String("session", sessionID), slog.String("room", code))

	if registry.NormalizeCode(code) == "" {
		return nil, ErrInvalidInput.WithMessage("room code required")
	}
	in, err := s.validateProfile(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.Get(code); err != nil {
		return nil, ErrRoomNotFound
	}
	profile := s.profile(ctx, in, log)

	room, err := s.lockRoom(code)
	if err != nil {
		return nil, err
	}
	defer room.Mutex.Unlock()

	if room.Status != domain.RoomStatusLobby {
		return nil, ErrGameInProgress
	}

	player := room.PlayerByID(profile.ID)
	rebound := player != nil
	switch {
	case player != nil && player.Connected():
		return nil, ErrAlreadyInRoom
	case player != nil:
		player.SessionID = sessionID
	default:
		player = domain.NewPlayer(profile, sessionID, in.AvatarURL)
		room.Players = append(room.Players, player)
	}

	if room.RecordID != "" {
		if err := s.repos.Rooms.AddMember(ctx, room.RecordID, player.ID, sessionID); err != nil {
			if rebound {
				player.SessionID = ""
			} else {
				room.RemovePlayer(player.ID)
			}
			log.Error("failed to persist room member", sl.Err(err))
			return nil, ErrTryAgain
		}
	}

	room.ReassignHost()
	s.registry.Touch(room)
	s.trackSession(sessionID, room.Code)
	s.roomUpdatedLocked(room)
	s.refreshCounts(room.Code)

	log.Info("player joined", slog.String("player", player.ID))

	return &JoinResult{Code: room.Code, PlayerID: player.ID, Players: s.rosterLocked(room)}, nil
}

func (s *GameService) CreateImportToken(ctx context.Context, sessionID, code string) (string, error) {
	const op = "service.game.CreateImportToken"

	room, err := s.lockRoom(code)
	if err != nil {
		return "", err
	}
	me := room.PlayerBySession(sessionID)
	if me == nil {
		room.Mutex.Unlock()
		return "", ErrNotInRoom
	}
	token := domain.NewImportToken(room.Code, me.ID, sessionID, s.now())
	s.registry.Touch(room)
	room.Mutex.Unlock()

	if err := s.repos.Tokens.Put(ctx, token, s.cfg.ImportTokenTTL); err != nil {
		s.log.Error("failed to store import token", slog.String("op", op), slog.String("room", token.RoomCode), sl.Err(err))
		return "", ErrTryAgain
	}
	return token.Token, nil
}

var linkPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// ExtractVideoLinks returns the distinct video page links found in text.
func ExtractVideoLinks(text string) []string {
	return normalizeLinks(linkPattern.FindAllString(text, -1))
}

func normalizeLinks(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	res := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), ".,;)")
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		if !strings.Contains(u, "/video/") {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		res = append(res, u)
	}
	return res
}

func (s *GameService) ImportLikes(ctx context.Context, sessionID, code, text string) (int, error) {
	links := ExtractVideoLinks(text)
	if len(links) == 0 {
		return 0, ErrNoLinks
	}

	room, err := s.lockRoom(code)
	if err != nil {
		return 0, err
	}
	me := room.PlayerBySession(sessionID)
	if me == nil {
		room.Mutex.Unlock()
		return 0, ErrNotInRoom
	}
	s.storeLikesLocked(room, me, links)
	ownerID := me.ID
	room.Mutex.Unlock()

	s.persistLikes(room.Code, ownerID, links)
	return len(links), nil
}

func (s *GameService) ImportFromToken(ctx context.Context, token string, urls []string) (int, error) {
	const op = "service.game.ImportFromToken"

	links := normalizeLinks(urls)
	if len(links) == 0 {
		return 0, ErrNoLinks
	}

	tok, err := s.repos.Tokens.Take(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return 0, ErrInvalidToken
		}
		s.log.Error("failed to consume import token", slog.String("op", op), sl.Err(err))
		return 0, ErrTryAgain
	}

	room, err := s.lockRoom(tok.RoomCode)
	if err != nil {
		return 0, err
	}
	me := room.PlayerByID(tok.PlayerID)
	if me == nil {
		room.Mutex.Unlock()
		return 0, ErrNotInRoom
	}
	s.storeLikesLocked(room, me, links)

	recipient := me.SessionID
	if recipient == "" {
		recipient = tok.SessionID
	}
	s.publisher.Publish(room.Code, []string{recipient}, domain.Event{
		Type:    domain.EventHarvestDone,
		Payload: domain.HarvestDonePayload{Count: len(links)},
	})
	ownerID := me.ID
	room.Mutex.Unlock()

	s.persistLikes(room.Code, ownerID, links)

	s.log.Info("likes imported", slog.String("op", op), slog.String("room", tok.RoomCode), slog.Int("count", len(links)))
	return len(links), nil
}

// storeLikesLocked replaces the player's in-memory submissions for the room
// and marks the player ready.
func (s *GameService) storeLikesLocked(room *domain.Room, me *domain.Player, links []string) {
	rounds := make([]domain.Round, 0, len(links))
	for _, u := range links {
		rounds = append(rounds, domain.Round{ID: uuid.NewString(), VideoURL: u, OwnerID: me.ID})
	}
	s.stateLocked(room).likes[me.ID] = rounds
	me.IsReady = true
	s.registry.Touch(room)
	s.roomUpdatedLocked(room)
}

func (s *GameService) persistLikes(code, ownerID string, links []string) {
	const op = "service.game.persistLikes"

	s.background(func(ctx context.Context) {
		saved, err := s.repos.Submissions.Save(ctx, ownerID, links)
		if err != nil {
			s.log.Warn("failed to persist likes", slog.String("op", op), slog.String("player", ownerID), sl.Err(err))
			return
		}
		s.log.Debug("likes persisted", slog.String("op", op), slog.String("player", ownerID), slog.Int("new", saved))
		s.refreshCounts(code)
	})
}

func (s *GameService) Rejoin(ctx context.Context, sessionID, code, playerID string) (*RejoinResult, error) {
	const op = "service.game.Rejoin"

	room, err := s.lockRoom(code)
	if err != nil {
		return nil, err
	}
	defer room.Mutex.Unlock()

	p := room.PlayerByID(playerID)
	if p == nil {
		return nil, ErrNotInRoom.WithMessage("player not in this room")
	}
	if p.Connected() && p.SessionID != sessionID {
		return nil, ErrAlreadyConnected
	}
	p.SessionID = sessionID
	room.ReassignHost()
	s.registry.Touch(room)
	s.trackSession(sessionID, room.Code)

	res := &RejoinResult{
		PlayerID:    p.ID,
		Players:     s.rosterLocked(room),
		Reconnected: true,
		IsHost:      room.IsHost(p),
	}
	if game := room.Game; game != nil {
		res.GameState = &CurrentRound{RoundIndex: game.CurrentIndex, TotalRounds: len(game.Rounds)}
		if round, ok := game.CurrentRound(); ok {
			res.GameState.VideoURL = round.VideoURL
			res.GameState.OwnerID = round.OwnerID
		}
	}

	s.roomUpdatedLocked(room)
	if s.roundLiveLocked(room) {
		s.publishNextRoundLocked(room, []string{sessionID})
	}

	s.log.Info("player rejoined", slog.String("op", op), slog.String("room", room.Code), slog.String("player", p.ID))
	return res, nil
}

func (s *GameService) Leave(sessionID, code string) error {
	const op = "service.game.Leave"

	room, err := s.lockRoom(code)
	if err != nil {
		return err
	}
	defer room.Mutex.Unlock()

	p := room.PlayerBySession(sessionID)
	if p == nil {
		return ErrNotInRoom
	}
	room.RemovePlayer(p.ID)
	s.untrackSession(sessionID, room.Code)
	s.log.Info("player left", slog.String("op", op), slog.String("room", room.Code), slog.String("player", p.ID))

	if s.roundLiveLocked(room) && !room.Game.Resolved {
		if round, _ := room.Game.CurrentRound(); round.OwnerID == p.ID {
			s.skipDepartedLocked(room)
			s.advanceLocked(room)
		}
	}
	s.afterMembershipChangeLocked(room)
	return nil
}

// Disconnect detaches the session from every room it belongs to. Members stay
// in the room and may rejoin.
func (s *GameService) Disconnect(sessionID string) {
	const op = "service.game.Disconnect"

	for _, code := range s.takeSessionRooms(sessionID) {
		func() {
			room, err := s.lockRoom(code)
			if err != nil {
				return
			}
			defer room.Mutex.Unlock()

			p := room.PlayerBySession(sessionID)
			if p == nil {
				return
			}
			p.SessionID = ""
			s.log.Info("player disconnected", slog.String("op", op), slog.String("room", room.Code), slog.String("player", p.ID))

			s.afterMembershipChangeLocked(room)
		}()
	}
}

func (s *GameService) afterMembershipChangeLocked(room *domain.Room) {
	if len(room.ConnectedPlayers()) == 0 {
		s.destroyLocked(room)
		return
	}
	room.ReassignHost()
	s.roomUpdatedLocked(room)
	s.maybeResolveLocked(room)
}

func (s *GameService) VideoPlayFailed(sessionID, code string, roundIndex int, videoURL string) {
	s.log.Warn("client failed to play video",
		slog.String("op", "service.game.VideoPlayFailed"),
		slog.String("room", registry.NormalizeCode(code)),
		slog.String("session", sessionID),
		slog.Int("round", roundIndex),
		slog.String("url", videoURL),
	)
}
