// Package scheduler owns job admission and execution: a fixed worker pool
// drains an unbounded FIFO queue, so at most MaxConcurrentJobs transcription
// pipelines run at once while everything else waits in pending.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skillsenselab/scribed/audio"
	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/job"
	"github.com/skillsenselab/scribed/logger"
	"github.com/skillsenselab/scribed/transcription"
)

// Config configures the scheduler.
type Config struct {
	// MaxConcurrentJobs is the worker pool size.
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"`
	// StuckJobTimeout fails processing jobs whose worker disappeared.
	StuckJobTimeout time.Duration `mapstructure:"stuck_job_timeout"`
	// ReconcileInterval is how often the stuck-job sweep runs.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	// RetentionAge is how long preprocessed audio files are kept.
	RetentionAge time.Duration `mapstructure:"retention_age"`
	// RetentionInterval is how often the retention sweep runs.
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 2
	}
	if c.StuckJobTimeout <= 0 {
		c.StuckJobTimeout = 2 * time.Hour
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = time.Minute
	}
	if c.RetentionAge <= 0 {
		c.RetentionAge = 24 * time.Hour
	}
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = time.Hour
	}
}

// Processor runs the transcription pipeline for one job. Implemented by
// Coordinator; narrowed to an interface so scheduler tests can stub it.
type Processor interface {
	Process(ctx context.Context, j job.Job) (*transcription.Result, error)
}

// Scheduler admits jobs and runs them over a fixed worker pool.
type Scheduler struct {
	cfg     Config
	store   *job.Store
	proc    Processor
	workDir string
	log     *logger.Logger
	met     *meters

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	cancels map[string]context.CancelFunc
	closed  bool

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	bgWG    sync.WaitGroup
}

// New creates a scheduler. workDir is the preprocessed-audio directory
// swept by the retention janitor; empty disables the sweep.
func New(cfg Config, store *job.Store, proc Processor, workDir string) *Scheduler {
	cfg.ApplyDefaults()
	ctx, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:     cfg,
		store:   store,
		proc:    proc,
		workDir: workDir,
		log:     logger.WithComponent("scheduler"),
		met:     newMeters(),
		cancels: make(map[string]context.CancelFunc),
		baseCtx: ctx,
		stop:    stop,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker pool and background sweeps.
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.bgWG.Add(2)
	go s.reconcileLoop()
	go s.retentionLoop()

	s.log.Info("Scheduler started", map[string]interface{}{
		"workers": s.cfg.MaxConcurrentJobs,
	})
}

// Submit enqueues a pending job for execution. Admission never blocks;
// the queue is unbounded and drained in FIFO order.
func (s *Scheduler) Submit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Internal(fmt.Errorf("scheduler is shutting down"))
	}
	s.queue = append(s.queue, id)
	s.met.admitted(s.baseCtx)
	s.met.queueDepth(s.baseCtx, 1)
	s.cond.Signal()
	return nil
}

// Cancel aborts a job. A queued job is failed immediately with CANCELED;
// a running job has its context canceled and fails once the worker
// observes the cancellation. Terminal jobs cannot be canceled.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	for i, qid := range s.queue {
		if qid == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.met.queueDepth(s.baseCtx, -1)
			s.mu.Unlock()
			// A queued job is still pending; route it through processing
			// so it lands in the failed terminal state.
			if err := s.store.Start(id); err != nil {
				return err
			}
			if err := s.store.Fail(id, errors.Canceled()); err != nil {
				return err
			}
			s.met.canceled(s.baseCtx)
			return nil
		}
	}
	cancel, running := s.cancels[id]
	s.mu.Unlock()

	if running {
		cancel()
		return nil
	}
	j, err := s.store.Get(id)
	if err != nil {
		return err
	}
	return errors.InvalidState(id, string(j.Status), "cancel")
}

// Shutdown stops admission and waits for in-flight jobs. When ctx
// expires before they finish, running jobs are canceled and the wait
// resumes until the workers exit.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.stop()
		<-done
	}
	s.stop()
	s.bgWG.Wait()
	s.log.Info("Scheduler stopped")
	return err
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		id, ok := s.next()
		if !ok {
			return
		}
		s.run(id)
	}
}

// next blocks until a job is queued or the scheduler shuts down.
func (s *Scheduler) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return "", false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	s.met.queueDepth(s.baseCtx, -1)
	return id, true
}

// run executes one job end to end. A processor panic is contained to
// the job: it fails with INTERNAL_ERROR and the worker survives.
func (s *Scheduler) run(id string) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
		cancel()
	}()

	j, err := s.store.Get(id)
	if err != nil {
		s.log.Warn("Queued job vanished", map[string]interface{}{
			logger.FieldJobID: id,
		})
		return
	}
	if err := s.store.Start(id); err != nil {
		s.log.Warn("Cannot start job", map[string]interface{}{
			logger.FieldJobID: id,
			logger.FieldError: err.Error(),
		})
		return
	}

	result, procErr := s.process(ctx, j)
	if procErr != nil {
		appErr, ok := errors.AsAppError(procErr)
		if !ok {
			appErr = errors.Internal(procErr)
		}
		if ctx.Err() != nil {
			appErr = errors.Canceled()
		}
		if err := s.store.Fail(id, appErr); err != nil {
			s.log.Error("Failed to record job failure", logger.ErrorFields("fail", err))
		}
		if appErr.Code == errors.ErrCodeCanceled {
			s.met.canceled(s.baseCtx)
		} else {
			s.met.failed(s.baseCtx, string(appErr.Code))
		}
		return
	}

	if err := s.store.Complete(id, result); err != nil {
		s.log.Error("Failed to record job completion", logger.ErrorFields("complete", err))
		return
	}
	s.met.completed(s.baseCtx)
}

func (s *Scheduler) process(ctx context.Context, j job.Job) (result *transcription.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Job processor panicked", map[string]interface{}{
				logger.FieldJobID: j.ID,
				"panic":           fmt.Sprintf("%v", r),
			})
			result = nil
			err = errors.Internal(fmt.Errorf("processor panic: %v", r))
		}
	}()
	return s.proc.Process(ctx, j)
}

// reconcileLoop fails processing jobs that no worker owns. A job can be
// orphaned by a worker crash; without the sweep it would show processing
// forever.
func (s *Scheduler) reconcileLoop() {
	defer s.bgWG.Done()
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-ticker.C:
			s.reconcile()
		}
	}
}

func (s *Scheduler) reconcile() {
	for _, j := range s.store.Processing() {
		s.mu.Lock()
		_, owned := s.cancels[j.ID]
		s.mu.Unlock()
		if owned {
			continue
		}
		if j.StartedAt == nil || time.Since(*j.StartedAt) < s.cfg.StuckJobTimeout {
			continue
		}
		s.log.Warn("Reconciling orphaned job", map[string]interface{}{
			logger.FieldJobID: j.ID,
			"started_at":      j.StartedAt,
		})
		if err := s.store.Fail(j.ID, errors.Internal(fmt.Errorf("job orphaned by worker"))); err == nil {
			s.met.failed(s.baseCtx, string(errors.ErrCodeInternal))
		}
	}
}

// retentionLoop deletes preprocessed audio files past the retention age.
func (s *Scheduler) retentionLoop() {
	defer s.bgWG.Done()
	if s.workDir == "" {
		return
	}
	ticker := time.NewTicker(s.cfg.RetentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-ticker.C:
			if n := audio.CleanupOld(s.workDir, s.cfg.RetentionAge); n > 0 {
				s.log.Info("Retention sweep removed files", map[string]interface{}{
					"removed": n,
				})
			}
		}
	}
}
