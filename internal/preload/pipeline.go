package preload

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/immxrtalbeast/clipguess/internal/domain"
	"github.com/immxrtalbeast/clipguess/internal/extract"
	"github.com/immxrtalbeast/clipguess/lib/logger/sl"
)

// Fetcher is the slice of extract.Pool the pipeline depends on.
type Fetcher interface {
	Fetch(ctx context.Context, ref string, timeout time.Duration) extract.Result
}

// Sink receives the pipeline's effects on the owning game. Calls may come
// from several workers concurrently.
type Sink interface {
	ReplaceRound(index int, round domain.Round)
	Progress(loaded, total int)
	Ready()
}

type Config struct {
	Workers         int
	MinBeforeStart  int
	MaxReplacements int
	VideoTimeout    time.Duration
}

type Job struct {
	RoomCode string
	GameID   string
	Rounds   []domain.Round
	Spare    []domain.Round
	Entry    *Entry
	Sink     Sink
}

type Report struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled bool
	Rounds    []RoundJob
}

type Pipeline struct {
	fetcher Fetcher
	cfg     Config
	log     *slog.Logger
	intn    func(n int) int
}

func NewPipeline(fetcher Fetcher, cfg Config, log *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxReplacements < 0 {
		cfg.MaxReplacements = 0
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = 120 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		fetcher: fetcher,
		cfg:     cfg,
		log:     log,
		intn:    rand.IntN,
	}
}

// Run preloads every round of job and blocks until all round jobs reached a
// terminal state or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, job Job) Report {
	const op = "preload.pipeline.run"
	log := p.log.With(
		slog.String("op", op),
		slog.String("room", job.RoomCode),
		slog.String("game_id", job.GameID),
	)

	total := len(job.Rounds)
	run := &run{
		pipeline:       p,
		job:            job,
		rounds:         newRoundSet(job.Rounds),
		minBeforeStart: min(p.cfg.MinBeforeStart, total),
		jobs:           make([]RoundJob, total),
		log:            log,
	}
	for i, r := range job.Rounds {
		run.jobs[i] = RoundJob{Index: i, Round: r, State: StatePending}
	}

	if total == 0 {
		job.Sink.Ready()
		return Report{}
	}
	if run.minBeforeStart <= 0 {
		run.markReady()
	}

	started := time.Now()
	next := make(chan int)
	go func() {
		defer close(next)
		for i := range total {
			select {
			case next <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for range min(p.cfg.Workers, total) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				run.process(ctx, i)
			}
		}()
	}
	wg.Wait()

	report := Report{Total: total, Rounds: run.jobs, Cancelled: ctx.Err() != nil}
	for _, j := range run.jobs {
		switch j.State {
		case StateSucceeded:
			report.Succeeded++
		case StateFailed:
			report.Failed++
		}
	}

	log.Info("preload finished",
		slog.Int("total", total),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Bool("cancelled", report.Cancelled),
		slog.Duration("elapsed", time.Since(started)),
	)
	return report
}

type run struct {
	pipeline       *Pipeline
	job            Job
	rounds         *roundSet
	minBeforeStart int
	log            *slog.Logger

	mu        sync.Mutex
	jobs      []RoundJob
	completed int
	ready     bool
}

func (r *run) process(ctx context.Context, index int) {
	r.mu.Lock()
	rj := r.jobs[index]
	r.mu.Unlock()

	started := time.Now()
	content := r.drive(ctx, &rj)
	if ctx.Err() != nil {
		return
	}

	if content != nil {
		r.job.Entry.Store(index, rj.Round.VideoURL, content)
		r.log.Debug("round preloaded",
			slog.Int("round", index+1),
			slog.Int("attempts", rj.Attempts),
			slog.Duration("elapsed", time.Since(started)),
		)
	} else {
		r.job.Entry.Fail(index, rj.Round.VideoURL)
		r.log.Warn("round preload failed",
			slog.Int("round", index+1),
			slog.Int("attempts", rj.Attempts),
			slog.Int("substitutions", rj.Substitutions),
			slog.String("url", rj.Round.VideoURL),
		)
	}

	// Sink calls stay under mu so progress is reported in order.
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[index] = rj
	r.completed++
	r.job.Sink.Progress(r.completed, len(r.jobs))
	if !r.ready && r.completed >= r.minBeforeStart {
		r.ready = true
		r.job.Sink.Ready()
	}
}

func (r *run) markReady() {
	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
	r.job.Sink.Ready()
}

// drive steps one round job through its states until it is terminal.
func (r *run) drive(ctx context.Context, rj *RoundJob) *extract.Content {
	p := r.pipeline
	for !rj.State.Terminal() {
		if ctx.Err() != nil {
			rj.State = StateFailed
			return nil
		}

		switch rj.State {
		case StatePending, StateRetrying:
			if content := r.attempt(ctx, rj); content != nil {
				rj.State = StateSucceeded
				return content
			}
			r.rounds.markTried(rj.Round)
			switch {
			case rj.State == StatePending && rj.Index < r.minBeforeStart:
				rj.State = StateRetrying
			case p.cfg.MaxReplacements > 0 && len(r.job.Spare) > 0:
				rj.State = StateSubstituting
			default:
				rj.State = StateFailed
			}

		case StateSubstituting:
			if rj.Substitutions >= p.cfg.MaxReplacements {
				rj.State = StateFailed
				continue
			}
			pick, ok := r.rounds.claim(rj.Index, r.job.Spare, p.intn)
			if !ok {
				rj.State = StateFailed
				continue
			}
			rj.Substitutions++
			rj.Round = pick
			if ctx.Err() == nil {
				r.job.Sink.ReplaceRound(rj.Index, pick)
			}
			r.log.Info("round replaced from spare pool",
				slog.Int("round", rj.Index+1),
				slog.String("replacement_id", pick.ID),
			)
			if content := r.attempt(ctx, rj); content != nil {
				rj.State = StateSucceeded
				return content
			}
			r.rounds.markTried(pick)
		}
	}
	return nil
}

func (r *run) attempt(ctx context.Context, rj *RoundJob) *extract.Content {
	rj.Attempts++
	res := r.pipeline.fetcher.Fetch(ctx, rj.Round.VideoURL, r.pipeline.cfg.VideoTimeout)
	if !res.OK() {
		r.log.Debug("preload attempt failed",
			slog.Int("round", rj.Index+1),
			slog.Int("attempt", rj.Attempts),
			sl.Err(res.Err),
		)
		return nil
	}
	return res.Content
}
