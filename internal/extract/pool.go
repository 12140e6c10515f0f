package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/clipguess/lib/logger/sl"
)

type job struct {
	ctx  context.Context
	ref  string
	done chan Result
}

// Pool runs extractions through a FIFO queue with at most limit jobs in
// flight. The queue is unbounded and no submission is ever dropped.
type Pool struct {
	extractor Extractor
	limit     int
	log       *slog.Logger

	mu      sync.Mutex
	queue   []*job
	running int
}

type Stats struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Limit   int `json:"limit"`
}

func NewPool(extractor Extractor, limit int, log *slog.Logger) *Pool {
	if limit <= 0 {
		limit = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		extractor: extractor,
		limit:     limit,
		log:       log,
	}
}

// Submit enqueues ref and returns a channel that receives exactly one Result.
// ctx is handed to the extractor; a job whose ctx is already done when it
// reaches the head of the queue settles immediately with ctx's error.
func (p *Pool) Submit(ctx context.Context, ref string) <-chan Result {
	j := &job{ctx: ctx, ref: ref, done: make(chan Result, 1)}

	p.mu.Lock()
	p.queue = append(p.queue, j)
	p.dispatchLocked()
	p.mu.Unlock()

	return j.done
}

// Fetch submits ref and waits at most timeout for the result. Expiry is
// reported as ErrTimeout; the job keeps its slot until the extractor returns.
func (p *Pool) Fetch(ctx context.Context, ref string, timeout time.Duration) Result {
	const op = "extract.pool.fetch"

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case res := <-p.Submit(ctx, ref):
		return res
	case <-ctx.Done():
		p.log.Debug("extraction abandoned",
			slog.String("op", op),
			slog.String("ref", ref),
			sl.Err(ctx.Err()),
		)
		return Result{Err: fmt.Errorf("%s: %w", op, ErrTimeout)}
	}
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{Queued: len(p.queue), Running: p.running, Limit: p.limit}
}

func (p *Pool) dispatchLocked() {
	for p.running < p.limit && len(p.queue) > 0 {
		j := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.running++
		go p.run(j)
	}
}

func (p *Pool) run(j *job) {
	res := p.extract(j)

	p.mu.Lock()
	p.running--
	p.dispatchLocked()
	p.mu.Unlock()

	j.done <- res
}

func (p *Pool) extract(j *job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("extractor panic: %v", r)}
		}
	}()

	if err := j.ctx.Err(); err != nil {
		return Result{Err: err}
	}

	content, err := p.extractor.Extract(j.ctx, j.ref)
	if err != nil {
		return Result{Err: err}
	}
	if content == nil || len(content.Data) == 0 {
		return Result{Err: ErrEmptyContent}
	}
	if content.ContentType == "" {
		content.ContentType = DefaultContentType
	}
	return Result{Content: content}
}
