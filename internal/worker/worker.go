package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/metrics"
	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

var (
	ErrPoolClosed = errors.New("worker pool closed")
	ErrQueueFull  = errors.New("worker queue full")
)

// Handler executes one report job.
type Handler func(ctx context.Context, job models.ReportJob) error

type Config struct {
	Concurrency int
	QueueSize   int
	JobTimeout  time.Duration // zero disables the per-job deadline
	// CancelGrace bounds how long Shutdown waits for cancelled jobs to return once its
	// context has expired. Jobs still running after it are abandoned.
	CancelGrace time.Duration
}

const defaultCancelGrace = 5 * time.Second

// Pool runs report jobs on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	cfg    Config
	queue  chan models.ReportJob
	logger zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(cfg Config, logger zerolog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = defaultCancelGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:    cfg,
		queue:  make(chan models.ReportJob, cfg.QueueSize),
		logger: logger.With().Str("component", "worker_pool").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers. It must be called once, before jobs are scheduled.
func (p *Pool) Start(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i, handler)
	}
	p.logger.Info().Int("workers", p.cfg.Concurrency).Int("queue_size", p.cfg.QueueSize).Msg("worker pool started")
}

// Schedule queues the job without blocking.
func (p *Pool) Schedule(_ context.Context, job models.ReportJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- job:
		metrics.ReportQueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued and running ones. When ctx expires
// first, running jobs are cancelled and given CancelGrace to return before ctx's error
// is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		grace := time.NewTimer(p.cfg.CancelGrace)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			p.logger.Warn().Dur("grace", p.cfg.CancelGrace).Msg("abandoning report jobs that ignored cancellation")
		}
		return ctx.Err()
	}
}

func (p *Pool) worker(id int, handler Handler) {
	defer p.wg.Done()
	log := p.logger.With().Int("worker", id).Logger()

	for job := range p.queue {
		metrics.ReportQueueDepth.Dec()
		p.run(log, handler, job)
	}
}

func (p *Pool) run(log zerolog.Logger, handler Handler, job models.ReportJob) {
	ctx := p.ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("job_id", job.ID).Msg("report job panicked")
		}
	}()

	started := time.Now()
	if err := handler(ctx, job); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Dur("elapsed", time.Since(started)).Msg("report job finished with error")
		return
	}
	log.Debug().Str("job_id", job.ID).Dur("elapsed", time.Since(started)).Msg("report job finished")
}
