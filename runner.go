package modregistry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// StepExecutor performs the real-world action behind one job step, such
// as applying a schema or seeding default configuration. Implementations
// must be idempotent per step: the runner guarantees at-least-once
// execution, and only the step ledger guarantees at-most-once observable
// effect when the action itself tolerates re-execution.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, job *InstallationJob, stepName string) error
}

// StepExecutorFunc adapts a function to the StepExecutor interface.
type StepExecutorFunc func(ctx context.Context, job *InstallationJob, stepName string) error

// ExecuteStep implements StepExecutor.
func (f StepExecutorFunc) ExecuteStep(ctx context.Context, job *InstallationJob, stepName string) error {
	return f(ctx, job, stepName)
}

// UnfinishedJobLister lists jobs that have not reached Completed or
// Failed. The runner's sweep uses it to find stalled work; stores that
// cannot enumerate jobs may omit it, disabling the sweep.
type UnfinishedJobLister interface {
	ListUnfinishedJobs(ctx context.Context) ([]*InstallationJob, error)
}

// JobRunner executes installation jobs on a worker pool. For each claimed
// job it walks the remaining (not yet completed) steps in order, invokes
// the StepExecutor for the step's real-world action, and reports the
// outcome back through the RegistryService. Because step completion
// recording is idempotent, the same job may safely be enqueued more than
// once or picked up by a second runner after a crash.
//
// A cron-driven sweep periodically re-queues jobs that were created but
// never picked up and fails jobs stuck in Running past the stall
// deadline, per the runner's (not the job tracker's) timeout policy.
type JobRunner struct {
	service      *RegistryService
	jobs         InstallationJobRepository
	executor     StepExecutor
	lister       UnfinishedJobLister
	logger       Logger
	clock        Clock
	workerC      int
	queueSize    int
	stallTimeout time.Duration
	sweepSpec    string

	queue         chan JobID
	cronScheduler *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
	started       bool
}

// JobRunnerOption configures a JobRunner.
type JobRunnerOption func(*JobRunner)

// WithWorkerCount sets the number of workers.
func WithWorkerCount(count int) JobRunnerOption {
	return func(r *JobRunner) {
		if count > 0 {
			r.workerC = count
		}
	}
}

// WithQueueSize sets the job queue size.
func WithQueueSize(size int) JobRunnerOption {
	return func(r *JobRunner) {
		if size > 0 {
			r.queueSize = size
		}
	}
}

// WithStallTimeout sets how long a job may sit in Running before the
// sweep declares it stalled.
func WithStallTimeout(timeout time.Duration) JobRunnerOption {
	return func(r *JobRunner) {
		if timeout > 0 {
			r.stallTimeout = timeout
		}
	}
}

// WithSweepSchedule sets the cron expression driving the sweep.
func WithSweepSchedule(spec string) JobRunnerOption {
	return func(r *JobRunner) {
		if spec != "" {
			r.sweepSpec = spec
		}
	}
}

// WithUnfinishedJobLister enables the sweep by supplying a job lister.
func WithUnfinishedJobLister(lister UnfinishedJobLister) JobRunnerOption {
	return func(r *JobRunner) {
		r.lister = lister
	}
}

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(logger Logger) JobRunnerOption {
	return func(r *JobRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunnerClock overrides the runner's clock for tests.
func WithRunnerClock(clock Clock) JobRunnerOption {
	return func(r *JobRunner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewJobRunner creates a runner that drives jobs through the given
// service and performs step actions with the given executor.
func NewJobRunner(service *RegistryService, jobs InstallationJobRepository, executor StepExecutor, opts ...JobRunnerOption) *JobRunner {
	r := &JobRunner{
		service:      service,
		jobs:         jobs,
		executor:     executor,
		logger:       NoopLogger{},
		clock:        SystemClock{},
		workerC:      5,
		queueSize:    100,
		stallTimeout: 10 * time.Minute,
		sweepSpec:    "@every 1m",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the worker pool and, when a job lister is configured,
// the cron sweep. Starting an already started runner is a no-op.
func (r *JobRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	r.logger.Info("Starting job runner", "workers", r.workerC, "queueSize", r.queueSize)
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.queue = make(chan JobID, r.queueSize)

	for i := 0; i < r.workerC; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	if r.lister != nil {
		r.cronScheduler = cron.New()
		if _, err := r.cronScheduler.AddFunc(r.sweepSpec, r.sweep); err != nil {
			r.cancel()
			return fmt.Errorf("invalid sweep schedule %q: %w", r.sweepSpec, err)
		}
		r.cronScheduler.Start()
	}

	r.started = true
	return nil
}

// Stop shuts the runner down, waiting for in-flight jobs to finish.
func (r *JobRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}

	r.logger.Info("Stopping job runner")
	if r.cronScheduler != nil {
		<-r.cronScheduler.Stop().Done()
	}
	r.cancel()
	r.wg.Wait()
	r.started = false
}

// Enqueue hands a job to the worker pool. It blocks when the queue is
// full and fails once the runner is stopped.
func (r *JobRunner) Enqueue(jobID JobID) error {
	r.mu.Lock()
	queue, ctx := r.queue, r.ctx
	r.mu.Unlock()

	if queue == nil {
		return fmt.Errorf("%w: runner not started", ErrInvalidTransition)
	}
	select {
	case queue <- jobID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runner stopped: %w", ctx.Err())
	}
}

func (r *JobRunner) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case jobID := <-r.queue:
			if err := r.runJob(r.ctx, jobID); err != nil {
				r.logger.Error("Job execution failed", "worker", id, "job", jobID, "error", err)
			}
		}
	}
}

// runJob walks the job's remaining steps in declaration order. Steps
// already recorded as completed are skipped, which is what makes resuming
// a partially executed job after a crash or retry safe.
func (r *JobRunner) runJob(ctx context.Context, jobID JobID) error {
	job, err := r.jobs.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job lookup failed: %w", err)
	}
	if job == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status() == JobStatusCompleted || job.Status() == JobStatusFailed {
		r.logger.Debug("Skipping finished job", "job", jobID, "status", job.Status())
		return nil
	}

	for _, step := range job.RemainingSteps() {
		if err := r.executor.ExecuteStep(ctx, job, step); err != nil {
			if stepErr := r.service.FailJobStep(ctx, jobID, step, err.Error()); stepErr != nil {
				return stepErr
			}
			return r.service.FailJob(ctx, jobID, fmt.Sprintf("step %s failed: %v", step, err))
		}
		if err := r.service.AdvanceJobStep(ctx, jobID, step); err != nil {
			return err
		}
	}

	return r.service.CompleteJob(ctx, jobID)
}

// sweep re-queues jobs that were created but never picked up and fails
// jobs stuck in Running longer than the stall timeout. The stalled step's
// failure is recorded first so the failure picture names the step that
// never finished.
func (r *JobRunner) sweep() {
	ctx := r.ctx
	unfinished, err := r.lister.ListUnfinishedJobs(ctx)
	if err != nil {
		r.logger.Error("Job sweep listing failed", "error", err)
		return
	}

	now := r.clock.Now()
	for _, job := range unfinished {
		switch job.Status() {
		case JobStatusCreated:
			if err := r.Enqueue(job.ID()); err != nil {
				r.logger.Warn("Failed to re-queue job", "job", job.ID(), "error", err)
			}
		case JobStatusRunning:
			if now.Sub(job.StartedAt()) < r.stallTimeout {
				continue
			}
			remaining := job.RemainingSteps()
			if len(remaining) > 0 {
				if err := r.service.FailJobStep(ctx, job.ID(), remaining[0], "stalled past runner deadline"); err != nil {
					r.logger.Error("Failed to record stalled step", "job", job.ID(), "error", err)
					continue
				}
			}
			if err := r.service.FailJob(ctx, job.ID(), "stalled past runner deadline"); err != nil {
				r.logger.Error("Failed to fail stalled job", "job", job.ID(), "error", err)
			}
		}
	}
}
