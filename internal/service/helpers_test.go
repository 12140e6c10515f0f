package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/immxrtalbeast/clipguess/internal/domain"
	"github.com/immxrtalbeast/clipguess/internal/extract"
	"github.com/immxrtalbeast/clipguess/internal/preload"
	"github.com/immxrtalbeast/clipguess/internal/registry"
	"github.com/immxrtalbeast/clipguess/internal/repository"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualScheduler runs timers only when the test fires them.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{f: f}
	s.pending = append(s.pending, t)
	return t
}

// Fire runs the timers scheduled so far and returns how many ran.
func (s *manualScheduler) Fire() int {
	s.mu.Lock()
	due := s.pending
	s.pending = nil
	s.mu.Unlock()

	ran := 0
	for _, t := range due {
		if t.stopped {
			continue
		}
		t.f()
		ran++
	}
	return ran
}

type recordedEvent struct {
	room       string
	recipients []string
	event      domain.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(roomCode string, recipients []string, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{
		room:       roomCode,
		recipients: append([]string(nil), recipients...),
		event:      event,
	})
}

func (p *recordingPublisher) ofType(typ domain.EventType) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var res []recordedEvent
	for _, e := range p.events {
		if e.event.Type == typ {
			res = append(res, e)
		}
	}
	return res
}

func (p *recordingPublisher) last(t *testing.T, typ domain.EventType) recordedEvent {
	t.Helper()
	events := p.ofType(typ)
	require.NotEmpty(t, events, "no %s event", typ)
	return events[len(events)-1]
}

// fakePreloader marks every round ready and reports Ready unless hold is set.
type fakePreloader struct {
	mu   sync.Mutex
	jobs []preload.Job
	hold bool
}

func (f *fakePreloader) Run(_ context.Context, job preload.Job) preload.Report {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	hold := f.hold
	f.mu.Unlock()

	total := len(job.Rounds)
	for i, r := range job.Rounds {
		job.Entry.Store(i, r.VideoURL, &extract.Content{Data: []byte(r.VideoURL), ContentType: extract.DefaultContentType})
		job.Sink.Progress(i+1, total)
	}
	if !hold {
		job.Sink.Ready()
	}
	return preload.Report{Total: total, Succeeded: total}
}

func (f *fakePreloader) lastJob(t *testing.T) preload.Job {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.jobs)
	return f.jobs[len(f.jobs)-1]
}

type harness struct {
	svc       *GameService
	reg       *registry.Registry
	pub       *recordingPublisher
	sched     *manualScheduler
	clock     *testClock
	cache     *preload.Cache
	preloader *fakePreloader
	subs      *repository.InMemorySubmissionRepository
	ctx       context.Context
}

func testConfig() Config {
	return Config{
		MinRounds:      1,
		MaxRounds:      10,
		BasePoints:     100,
		StreakBonus:    50,
		RevealDelay:    2500 * time.Millisecond,
		NextRoundDelay: 1500 * time.Millisecond,
		DedupeWindow:   2500 * time.Millisecond,
		MaxAvatarBytes: 1000,
		SparePoolExtra: 5,
		ImportTokenTTL: 15 * time.Minute,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		reg:       registry.New(time.Hour, log, registry.WithClock(clock.Now)),
		pub:       &recordingPublisher{},
		sched:     &manualScheduler{},
		clock:     clock,
		cache:     preload.NewCache(5, log),
		preloader: &fakePreloader{},
		subs:      repository.NewInMemorySubmissionRepository(),
		ctx:       context.Background(),
	}
	h.svc = NewGameService(
		testConfig(),
		h.reg,
		Repositories{
			Players:     repository.NewInMemoryPlayerRepository(),
			Rooms:       repository.NewInMemoryRoomRepository(),
			Submissions: h.subs,
			Tokens:      repository.NewInMemoryTokenStore(),
		},
		h.pub,
		h.cache,
		h.preloader,
		log,
		WithScheduler(h.sched),
		WithClock(clock.Now),
		WithShuffle(func([]domain.Round) {}),
	)
	t.Cleanup(h.svc.Wait)
	return h
}

func (h *harness) create(t *testing.T, sessionID, username string) (code, playerID string) {
	t.Helper()
	res, err := h.svc.CreateRoom(h.ctx, sessionID, ProfileInput{Username: username})
	require.NoError(t, err)
	return res.Code, res.PlayerID
}

func (h *harness) join(t *testing.T, sessionID, code, username string) string {
	t.Helper()
	res, err := h.svc.JoinRoom(h.ctx, sessionID, code, ProfileInput{Username: username})
	require.NoError(t, err)
	return res.PlayerID
}

func (h *harness) importLinks(t *testing.T, sessionID, code string, links ...string) {
	t.Helper()
	text := ""
	for _, l := range links {
		text += l + "\n"
	}
	_, err := h.svc.ImportLikes(h.ctx, sessionID, code, text)
	require.NoError(t, err)
	h.svc.Wait()
}

func (h *harness) start(t *testing.T, sessionID, code string, rounds int) int {
	t.Helper()
	n, err := h.svc.StartGame(h.ctx, sessionID, code, rounds)
	require.NoError(t, err)
	h.svc.Wait()
	return n
}

// room runs f with the room locked.
func (h *harness) room(t *testing.T, code string, f func(room *domain.Room)) {
	t.Helper()
	room, err := h.reg.Get(code)
	require.NoError(t, err)
	room.Mutex.Lock()
	defer room.Mutex.Unlock()
	f(room)
}

// revealAndAdvance fires the reveal timer and then the next-round timer.
func (h *harness) revealAndAdvance(t *testing.T) {
	t.Helper()
	require.Equal(t, 1, h.sched.Fire(), "reveal timer")
	require.Equal(t, 1, h.sched.Fire(), "next round timer")
}

func videoURL(owner string, id int) string {
	return "https://www.tiktok.com/@" + owner + "/video/" + strconv.Itoa(id)
}
