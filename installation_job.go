package modregistry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// JobID is the opaque identity of an installation job.
type JobID string

// JobType identifies the kind of work an installation job performs.
type JobType string

// Installation job types.
const (
	JobTypeInstall   JobType = "install"
	JobTypeUninstall JobType = "uninstall"
	JobTypeUpgrade   JobType = "upgrade"
)

// JobStatus is the overall status of an installation job.
type JobStatus string

// Installation job statuses.
const (
	JobStatusCreated   JobStatus = "created"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// StepCompletion records one completed step of a job.
type StepCompletion struct {
	StepName    string
	CompletedAt time.Time
}

// InstallationJob is an idempotent, step-tracked unit of work that drives
// a TenantModuleRecord from requested to installed or failed.
//
// Rather than preserving executor call-stack state across crashes, the
// job keeps an explicit ledger of declared step names and per-step
// completion timestamps. Any worker can resume the job by asking for
// RemainingSteps; the resumption point is derived from the ledger, never
// stored separately. Recording the same step twice is a no-op, which
// makes at-least-once dispatch of the same job to multiple workers safe
// as long as each step's underlying side effect is itself idempotent.
//
// The ledger and status are guarded by an internal mutex: workers share
// the same job instance when the store hands out live references, and
// duplicate dispatch must stay safe under true concurrency, not just
// under interleaved sequential calls.
//
// Jobs are retained after completion as audit records and never
// destroyed.
type InstallationJob struct {
	id          JobID
	tenantID    TenantID
	moduleID    ModuleID
	jobType     JobType
	steps       []string
	requestedBy string

	mu         sync.Mutex
	completed  map[string]time.Time
	failures   map[string]string
	status     JobStatus
	startedAt  time.Time
	finishedAt time.Time
}

// NewInstallationJob creates a job in Created status with the given
// ordered step declarations.
func NewInstallationJob(id JobID, tenantID TenantID, moduleID ModuleID, jobType JobType, steps []string, requestedBy string) *InstallationJob {
	declared := make([]string, len(steps))
	copy(declared, steps)
	return &InstallationJob{
		id:          id,
		tenantID:    tenantID,
		moduleID:    moduleID,
		jobType:     jobType,
		steps:       declared,
		completed:   make(map[string]time.Time),
		failures:    make(map[string]string),
		status:      JobStatusCreated,
		requestedBy: requestedBy,
	}
}

// ID returns the job identity.
func (j *InstallationJob) ID() JobID { return j.id }

// TenantID returns the tenant the job installs for.
func (j *InstallationJob) TenantID() TenantID { return j.tenantID }

// ModuleID returns the catalog module the job installs.
func (j *InstallationJob) ModuleID() ModuleID { return j.moduleID }

// Type returns the job type.
func (j *InstallationJob) Type() JobType { return j.jobType }

// Status returns the job's overall status.
func (j *InstallationJob) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// RequestedBy returns the actor that requested the job.
func (j *InstallationJob) RequestedBy() string { return j.requestedBy }

// StartedAt returns when the job entered Running, zero if never started.
func (j *InstallationJob) StartedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

// FinishedAt returns when the job reached Completed or Failed, zero while
// unfinished.
func (j *InstallationJob) FinishedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt
}

// Steps returns the declared step names in execution order.
func (j *InstallationJob) Steps() []string {
	steps := make([]string, len(j.steps))
	copy(steps, j.steps)
	return steps
}

// CompletedSteps returns the completion ledger in step declaration order.
func (j *InstallationJob) CompletedSteps() []StepCompletion {
	j.mu.Lock()
	defer j.mu.Unlock()

	completions := make([]StepCompletion, 0, len(j.completed))
	for _, step := range j.steps {
		if at, ok := j.completed[step]; ok {
			completions = append(completions, StepCompletion{StepName: step, CompletedAt: at})
		}
	}
	return completions
}

// RemainingSteps returns declared steps without a completion record, in
// declaration order. This is the derived resumption point for executors
// picking the job up after a crash or retry.
func (j *InstallationJob) RemainingSteps() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.remainingLocked()
}

func (j *InstallationJob) remainingLocked() []string {
	var remaining []string
	for _, step := range j.steps {
		if _, done := j.completed[step]; !done {
			remaining = append(remaining, step)
		}
	}
	return remaining
}

// FailedSteps returns step names with a recorded failure, sorted for
// stable reporting.
func (j *InstallationJob) FailedSteps() map[string]string {
	j.mu.Lock()
	defer j.mu.Unlock()

	failures := make(map[string]string, len(j.failures))
	for step, reason := range j.failures {
		failures[step] = reason
	}
	return failures
}

// StepCompleted reports whether the named step has a completion record.
func (j *InstallationJob) StepCompleted(stepName string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, done := j.completed[stepName]
	return done
}

// Start transitions the job from Created to Running. Starting a job that
// is already Running is a no-op, keeping the original start time, so two
// workers claiming the same job do not trip over each other. Starting a
// finished job fails with ErrInvalidTransition.
func (j *InstallationJob) Start(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status == JobStatusRunning {
		return nil
	}
	if j.status != JobStatusCreated {
		return fmt.Errorf("%w: cannot start job in status %s", ErrInvalidTransition, j.status)
	}
	j.status = JobStatusRunning
	j.startedAt = now
	return nil
}

// RecordStepCompletion marks the named step completed at the given time.
// Recording an already-completed step is a no-op, preserving the original
// timestamp, so concurrent duplicate dispatch of a step is harmless. A
// step name the job never declared fails with ErrUnknownJobStep.
// Completion recording never advances the overall status; call Complete
// once every declared step is recorded.
func (j *InstallationJob) RecordStepCompletion(stepName string, now time.Time) error {
	if !j.declaresStep(stepName) {
		return fmt.Errorf("%w: %q", ErrUnknownJobStep, stepName)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, done := j.completed[stepName]; done {
		return nil
	}
	j.completed[stepName] = now
	delete(j.failures, stepName)
	return nil
}

// RecordStepFailure stores a failure reason against the named step. It
// deliberately does not fail the whole job: independent steps may still
// be attempted, and the full failure picture stays visible for diagnosis.
// Any recorded failure blocks Complete until the step is retried
// successfully. A step name the job never declared fails with
// ErrUnknownJobStep.
func (j *InstallationJob) RecordStepFailure(stepName, reason string) error {
	if !j.declaresStep(stepName) {
		return fmt.Errorf("%w: %q", ErrUnknownJobStep, stepName)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, done := j.completed[stepName]; done {
		// A completed step cannot also be failed.
		return nil
	}
	j.failures[stepName] = reason
	return nil
}

// Complete transitions the job from Running to Completed. It fails with
// ErrStepsIncomplete unless every declared step has a completion record,
// and with ErrFailedStepsPresent if any step has a failure recorded.
// Completing an already Completed job is a no-op, so duplicate dispatch
// of a finished job stays harmless.
func (j *InstallationJob) Complete(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status == JobStatusCompleted {
		return nil
	}
	if j.status != JobStatusRunning {
		return fmt.Errorf("%w: cannot complete job in status %s", ErrInvalidTransition, j.status)
	}
	if len(j.failures) > 0 {
		return fmt.Errorf("%w: %v", ErrFailedStepsPresent, sortedKeys(j.failures))
	}
	if remaining := j.remainingLocked(); len(remaining) > 0 {
		return fmt.Errorf("%w: %v", ErrStepsIncomplete, remaining)
	}
	j.status = JobStatusCompleted
	j.finishedAt = now
	return nil
}

// MarkFailed transitions the job from Running to Failed. The completion
// ledger is preserved so a later Retry resumes from the derived
// resumption point. Failing an already Failed job is a no-op.
func (j *InstallationJob) MarkFailed(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status == JobStatusFailed {
		return nil
	}
	if j.status != JobStatusRunning {
		return fmt.Errorf("%w: cannot fail job in status %s", ErrInvalidTransition, j.status)
	}
	j.status = JobStatusFailed
	j.finishedAt = now
	return nil
}

// Retry transitions the job from Failed back to Running without clearing
// previously completed steps, so the executor only re-attempts steps not
// yet recorded as completed. Failure marks are cleared so the retried
// steps get a clean slate.
func (j *InstallationJob) Retry(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != JobStatusFailed {
		return fmt.Errorf("%w: cannot retry job in status %s", ErrInvalidTransition, j.status)
	}
	j.status = JobStatusRunning
	j.failures = make(map[string]string)
	j.finishedAt = time.Time{}
	j.startedAt = now
	return nil
}

func (j *InstallationJob) declaresStep(stepName string) bool {
	for _, step := range j.steps {
		if step == stepName {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
