package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/clipguess/internal/domain"
	"github.com/immxrtalbeast/clipguess/internal/preload"
	"github.com/immxrtalbeast/clipguess/lib/logger/sl"
)

const maxEligibleScan = 100

type PlayablePlayer struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	Playable int    `json:"playable"`
}

type NoEligibleDetails struct {
	Players        []PlayablePlayer `json:"players"`
	PlayableCounts map[string]int   `json:"playableCounts"`
}

func (s *GameService) clampRounds(requested int) int {
	if requested <= 0 {
		requested = s.cfg.MaxRounds
	}
	return max(s.cfg.MinRounds, min(requested, s.cfg.MaxRounds))
}

// playedKey identifies a video across persisted and in-memory submissions.
func playedKey(round domain.Round) string {
	if id := domain.VideoID(round.VideoURL); id != "" {
		return "video:" + id
	}
	return "url:" + round.VideoURL
}

func (s *GameService) unplayed(rounds []domain.Round) []domain.Round {
	s.playedMu.Lock()
	defer s.playedMu.Unlock()

	seen := make(map[string]struct{}, len(rounds))
	res := make([]domain.Round, 0, len(rounds))
	for _, r := range rounds {
		key := playedKey(r)
		if _, ok := s.played[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		res = append(res, r)
	}
	return res
}

// drawRounds picks the game's rounds from the durable store, falling back to
// the room's in-memory likes. Whatever is not drawn becomes the spare pool.
func (s *GameService) drawRounds(ctx context.Context, members []string, likes []domain.Round, total int, log *slog.Logger) (rounds, spare []domain.Round) {
	limit := min(maxEligibleScan, total+s.cfg.SparePoolExtra)

	pool, err := s.repos.Submissions.Eligible(ctx, members, limit)
	if err != nil {
		log.Warn("failed to load eligible submissions", sl.Err(err))
	}
	pool = s.unplayed(pool)
	if len(pool) == 0 {
		pool = s.unplayed(likes)
	}

	s.shuffle(pool)
	if len(pool) > limit {
		pool = pool[:limit]
	}
	n := min(total, len(pool))
	return pool[:n], pool[n:]
}

func (s *GameService) noEligible(ctx context.Context, members []string, names map[string]string, likes []domain.Round) *Error {
	counts, err := s.repos.Submissions.PlayableCounts(ctx, members)
	if err != nil {
		s.log.Warn("failed to load playable counts", slog.String("op", "service.game.noEligible"), sl.Err(err))
		counts = make(map[string]int)
	}
	inMemory := make(map[string]int)
	for _, r := range s.unplayed(likes) {
		inMemory[r.OwnerID]++
	}

	details := NoEligibleDetails{PlayableCounts: counts}
	parts := make([]string, 0, len(members))
	for _, id := range members {
		playable := max(counts[id], inMemory[id])
		details.Players = append(details.Players, PlayablePlayer{PlayerID: id, Username: names[id], Playable: playable})
		parts = append(parts, fmt.Sprintf("%s: %d", names[id], playable))
	}
	return ErrNoEligible.
		WithMessage("no eligible videos (" + strings.Join(parts, ", ") + ")").
		WithDetails(details)
}

// StartGame moves a lobby to preparing and hands the drawn rounds to the
// preloader. It returns the number of rounds in the game.
func (s *GameService) StartGame(ctx context.Context, sessionID, code string, totalRounds int) (int, error) {
	const op = "service.game.StartGame"
	log := s.log.With(slog.String("op", op), slog.String("room", code))

	room, err := s.lockRoom(code)
	if err != nil {
		return 0, err
	}
	me := room.PlayerBySession(sessionID)
	switch {
	case me == nil:
		room.Mutex.Unlock()
		return 0, ErrNotInRoom
	case !room.IsHost(me):
		room.Mutex.Unlock()
		return 0, ErrNotHost.WithMessage("only host can start")
	case room.Status != domain.RoomStatusLobby:
		room.Mutex.Unlock()
		return 0, ErrGameInProgress
	}
	st := s.stateLocked(room)
	if st.starting {
		room.Mutex.Unlock()
		return 0, ErrGameInProgress
	}
	st.starting = true
	members := room.PlayerIDs()
	names := make(map[string]string, len(room.Players))
	var likes []domain.Round
	for _, p := range room.Players {
		names[p.ID] = p.Username
		likes = append(likes, st.likes[p.ID]...)
	}
	s.registry.Touch(room)
	room.Mutex.Unlock()

	total := s.clampRounds(totalRounds)
	rounds, spare := s.drawRounds(ctx, members, likes, total, log)

	var failure *Error
	if len(rounds) == 0 {
		failure = s.noEligible(ctx, members, names, likes)
	}

	room.Mutex.Lock()
	defer room.Mutex.Unlock()

	if !s.aliveLocked(room) {
		return 0, ErrRoomNotFound
	}
	st.starting = false
	if failure != nil {
		log.Info("no eligible videos", slog.Any("details", failure.Details))
		return 0, failure
	}
	if room.Status != domain.RoomStatusLobby {
		return 0, ErrGameInProgress
	}

	for _, p := range room.Players {
		p.ResetStats()
	}
	game := domain.NewGameState(uuid.NewString(), rounds)
	room.Game = game
	room.Status = domain.RoomStatusPreparing
	st.sent = false

	entry := preload.NewEntry(len(rounds))
	if err := s.cache.SetPinned(room.Code, entry); err != nil {
		log.Warn("preload cache refused game, serving on demand", sl.Err(err))
	}

	urls := make([]string, 0, len(rounds))
	for _, r := range rounds {
		urls = append(urls, r.VideoURL)
	}
	s.publishLocked(room, domain.EventGamePreparing, domain.GamePreparingPayload{
		RoundURLs:    urls,
		TotalRounds:  len(rounds),
		PreloadTotal: len(rounds),
		Players:      s.rosterLocked(room),
	})

	preloadCtx, cancel := context.WithCancel(context.Background())
	st.cancelPreload = cancel
	job := preload.Job{
		RoomCode: room.Code,
		GameID:   game.ID,
		Rounds:   slices.Clone(rounds),
		Spare:    spare,
		Entry:    entry,
		Sink:     &gameSink{s: s, code: room.Code, gameID: game.ID},
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer cancel()
		report := s.preloader.Run(preloadCtx, job)
		s.log.Info("preload finished",
			slog.String("op", op),
			slog.String("room", job.RoomCode),
			slog.Int("total", report.Total),
			slog.Int("succeeded", report.Succeeded),
			slog.Int("failed", report.Failed),
			slog.Bool("cancelled", report.Cancelled),
		)
	}()

	log.Info("game preparing", slog.String("game", game.ID), slog.Int("rounds", len(rounds)), slog.Int("spare", len(spare)))
	return len(rounds), nil
}

// gameSink applies preload effects to the game it was started for.
type gameSink struct {
	s      *GameService
	code   string
	gameID string
}

func (g *gameSink) ReplaceRound(index int, round domain.Round) {
	room, ok := g.s.lockGame(g.code, g.gameID)
	if !ok {
		return
	}
	defer room.Mutex.Unlock()

	game := room.Game
	if index < 0 || index >= len(game.Rounds) {
		return
	}
	// Rounds already shown to players keep the video they were shown with.
	if room.Status == domain.RoomStatusPlaying && index <= game.CurrentIndex {
		return
	}
	game.Rounds[index] = round
}

func (g *gameSink) Progress(loaded, total int) {
	room, ok := g.s.lockGame(g.code, g.gameID)
	if !ok {
		return
	}
	defer room.Mutex.Unlock()

	g.s.publishLocked(room, domain.EventPreloadProgress, domain.PreloadProgressPayload{
		RoomCode: room.Code,
		Loaded:   loaded,
		Total:    total,
	})
}

func (g *gameSink) Ready() {
	room, ok := g.s.lockGame(g.code, g.gameID)
	if !ok {
		return
	}
	defer room.Mutex.Unlock()

	g.s.beginPlayingLocked(room)
}

func (s *GameService) beginPlayingLocked(room *domain.Room) {
	if room.Status != domain.RoomStatusPreparing || room.Game == nil {
		return
	}
	room.Status = domain.RoomStatusPlaying
	s.cache.Unpin(room.Code)
	s.publishLocked(room, domain.EventGameStarted, domain.GameStartedPayload{
		Players:     s.rosterLocked(room),
		TotalRounds: len(room.Game.Rounds),
	})
	s.advanceLocked(room)
}

// PreloadDone lets the host start playing before the preloader reports ready.
func (s *GameService) PreloadDone(sessionID, code string) error {
	room, err := s.lockRoom(code)
	if err != nil {
		return err
	}
	defer room.Mutex.Unlock()

	me := room.PlayerBySession(sessionID)
	switch {
	case me == nil:
		return ErrNotInRoom
	case !room.IsHost(me):
		return ErrNotHost
	case room.Status == domain.RoomStatusPlaying:
		return nil
	case room.Status != domain.RoomStatusPreparing:
		return ErrNoGame
	}
	s.beginPlayingLocked(room)
	return nil
}

func (s *GameService) RequestNextRound(sessionID, code string) error {
	room, err := s.lockRoom(code)
	if err != nil {
		return err
	}
	defer room.Mutex.Unlock()

	me := room.PlayerBySession(sessionID)
	switch {
	case me == nil:
		return ErrNotInRoom
	case !room.IsHost(me):
		return ErrNotHost
	case room.Status != domain.RoomStatusPlaying || room.Game == nil:
		return ErrNoGame
	}
	s.registry.Touch(room)
	s.advanceLocked(room)
	return nil
}

// SkipRound resolves the current round with the votes collected so far.
func (s *GameService) SkipRound(sessionID, code string) error {
	room, err := s.lockRoom(code)
	if err != nil {
		return err
	}
	defer room.Mutex.Unlock()

	me := room.PlayerBySession(sessionID)
	switch {
	case me == nil:
		return ErrNotInRoom
	case !room.IsHost(me):
		return ErrNotHost
	case !s.roundLiveLocked(room):
		return ErrNoGame
	}
	s.registry.Touch(room)
	if !room.Game.Resolved {
		s.resolveLocked(room)
	}
	return nil
}

// roundLiveLocked reports whether the current round has been broadcast.
func (s *GameService) roundLiveLocked(room *domain.Room) bool {
	game := room.Game
	if room.Status != domain.RoomStatusPlaying || game == nil || game.Finished() {
		return false
	}
	st := s.stateLocked(room)
	return st.sent && st.sentIndex == game.CurrentIndex
}

// advanceLocked broadcasts the round at CurrentIndex, or ends the game when
// every round has been played. A repeat for an index already broadcast within
// the dedupe window is dropped; later repeats re-send the round without
// touching its votes.
func (s *GameService) advanceLocked(room *domain.Room) {
	game := room.Game
	if game == nil || room.Status != domain.RoomStatusPlaying {
		return
	}
	st := s.stateLocked(room)
	now := s.now()

	if st.sent && st.sentIndex == game.CurrentIndex {
		if now.Sub(st.sentAt) < s.cfg.DedupeWindow || game.Resolved {
			return
		}
		st.sentAt = now
		s.publishNextRoundLocked(room, room.SessionIDs())
		return
	}

	s.skipDepartedLocked(room)
	st.sent, st.sentIndex, st.sentAt = true, game.CurrentIndex, now
	if game.Finished() {
		s.gameOverLocked(room)
		return
	}

	game.Votes = make(map[string]domain.Vote)
	game.Resolved = false
	game.RoundStartTime = now
	s.publishNextRoundLocked(room, room.SessionIDs())
}

// skipDepartedLocked moves CurrentIndex past rounds whose owner has left the
// room. Indexes stay stable so preloaded content keeps its slot.
func (s *GameService) skipDepartedLocked(room *domain.Room) {
	game := room.Game
	for !game.Finished() {
		round, _ := game.CurrentRound()
		if room.PlayerByID(round.OwnerID) != nil {
			return
		}
		game.CurrentIndex++
	}
}

func (s *GameService) publishNextRoundLocked(room *domain.Room, recipients []string) {
	game := room.Game
	round, ok := game.CurrentRound()
	if !ok {
		return
	}
	s.publisher.Publish(room.Code, recipients, domain.Event{
		Type: domain.EventNextRound,
		Payload: domain.NextRoundPayload{
			RoundIndex:  game.CurrentIndex,
			TotalRounds: len(game.Rounds),
			VideoURL:    round.VideoURL,
			OwnerID:     round.OwnerID,
			Players:     s.rosterLocked(room),
		},
	})
}

func (s *GameService) gameOverLocked(room *domain.Room) {
	game := room.Game

	players := slices.Clone(room.Players)
	sort.SliceStable(players, func(i, j int) bool { return players[i].Score > players[j].Score })
	scores := make([]domain.FinalScore, 0, len(players))
	for _, p := range players {
		scores = append(scores, domain.FinalScore{
			PlayerID:     p.ID,
			Username:     p.Username,
			Score:        p.Score,
			CorrectCount: p.CorrectCount,
			MaxStreak:    p.MaxStreak,
		})
	}
	s.publishLocked(room, domain.EventGameOver, domain.GameOverPayload{Scores: scores, TotalRounds: len(game.Rounds)})

	st := s.stateLocked(room)
	st.stop()
	st.sent = false
	clear(st.played)
	s.cache.Delete(room.Code)
	room.Game = nil
	room.Status = domain.RoomStatusLobby
	s.roomUpdatedLocked(room)

	s.log.Info("game over", slog.String("op", "service.game.gameOver"), slog.String("room", room.Code), slog.String("game", game.ID))
}

func (s *GameService) SubmitVote(sessionID, code, targetPlayerID string, roundIndex int) error {
	room, err := s.lockRoom(code)
	if err != nil {
		return err
	}
	defer room.Mutex.Unlock()

	voter := room.PlayerBySession(sessionID)
	if voter == nil {
		return ErrNotInRoom
	}
	if !s.roundLiveLocked(room) {
		return nil
	}
	game := room.Game
	if game.Resolved || roundIndex != game.CurrentIndex {
		return nil
	}
	round, _ := game.CurrentRound()
	if voter.ID == round.OwnerID && len(room.ConnectedPlayers()) > 1 {
		return nil
	}
	if _, voted := game.Votes[voter.ID]; voted {
		return nil
	}

	game.Votes[voter.ID] = domain.Vote{
		TargetPlayerID: targetPlayerID,
		ResponseTime:   s.now().Sub(game.RoundStartTime),
	}
	s.registry.Touch(room)
	s.maybeResolveLocked(room)
	return nil
}

// expectedVotersLocked is every connected member except the round owner, or
// the only connected member in solo play.
func (s *GameService) expectedVotersLocked(room *domain.Room, ownerID string) []*domain.Player {
	connected := room.ConnectedPlayers()
	if len(connected) == 1 {
		return connected
	}
	return slices.DeleteFunc(connected, func(p *domain.Player) bool { return p.ID == ownerID })
}

func (s *GameService) maybeResolveLocked(room *domain.Room) {
	if !s.roundLiveLocked(room) || room.Game.Resolved {
		return
	}
	game := room.Game
	round, _ := game.CurrentRound()
	voters := s.expectedVotersLocked(room, round.OwnerID)
	if len(voters) == 0 {
		return
	}
	for _, p := range voters {
		if _, ok := game.Votes[p.ID]; !ok {
			return
		}
	}
	s.resolveLocked(room)
}

func (s *GameService) resolveLocked(room *domain.Room) {
	game := room.Game
	game.Resolved = true
	round, _ := game.CurrentRound()

	expected := make(map[string]struct{})
	for _, p := range s.expectedVotersLocked(room, round.OwnerID) {
		expected[p.ID] = struct{}{}
	}
	points := make(map[string]int, len(room.Players))
	for _, p := range room.Players {
		vote, voted := game.Votes[p.ID]
		if _, ok := expected[p.ID]; !voted && !ok {
			continue
		}
		points[p.ID] = p.ApplyGuess(voted && vote.TargetPlayerID == round.OwnerID, s.cfg.BasePoints, s.cfg.StreakBonus)
	}

	st := s.stateLocked(room)
	s.markPlayed(room.Code, st, round)

	s.publishLocked(room, domain.EventStartReveal, domain.StartRevealPayload{
		OwnerID:    round.OwnerID,
		RoundIndex: game.CurrentIndex,
	})

	code, gameID, index := room.Code, game.ID, game.CurrentIndex
	st.timers = append(st.timers, s.scheduler.AfterFunc(s.cfg.RevealDelay, func() {
		s.reveal(code, gameID, index, points)
	}))
}

func (s *GameService) reveal(code, gameID string, index int, points map[string]int) {
	room, ok := s.lockGame(code, gameID)
	if !ok {
		return
	}
	defer room.Mutex.Unlock()

	game := room.Game
	if game.CurrentIndex != index || !game.Resolved {
		return
	}
	round, _ := game.CurrentRound()
	scores := make([]domain.RoundScore, 0, len(room.Players))
	for _, p := range room.Players {
		scores = append(scores, domain.RoundScore{
			PlayerID:        p.ID,
			Username:        p.Username,
			Score:           p.Score,
			Streak:          p.Streak,
			PointsThisRound: points[p.ID],
		})
	}
	s.publishLocked(room, domain.EventRevealWinner, domain.RevealWinnerPayload{
		OwnerID:      round.OwnerID,
		Scores:       scores,
		HasNextRound: game.HasNext(),
	})
	game.CurrentIndex++

	next := game.CurrentIndex
	st := s.stateLocked(room)
	st.timers = append(st.timers, s.scheduler.AfterFunc(s.cfg.NextRoundDelay, func() {
		s.nextRound(code, gameID, next)
	}))
}

func (s *GameService) nextRound(code, gameID string, index int) {
	room, ok := s.lockGame(code, gameID)
	if !ok {
		return
	}
	defer room.Mutex.Unlock()

	if room.Game.CurrentIndex != index {
		return
	}
	s.advanceLocked(room)
}

// markPlayed records round as played for the room and process-wide, and
// writes play history once per video.
func (s *GameService) markPlayed(code string, st *roomState, round domain.Round) {
	const op = "service.game.markPlayed"

	key := playedKey(round)
	if _, ok := st.played[key]; ok {
		return
	}
	st.played[key] = struct{}{}

	s.playedMu.Lock()
	_, seen := s.played[key]
	s.played[key] = struct{}{}
	s.playedMu.Unlock()

	if seen || !round.Persisted {
		return
	}
	s.background(func(ctx context.Context) {
		if err := s.repos.Submissions.MarkPlayed(ctx, round.ID, code); err != nil {
			s.log.Warn("failed to record play history",
				slog.String("op", op),
				slog.String("room", code),
				slog.String("submission", round.ID),
				sl.Err(err),
			)
		}
	})
}
