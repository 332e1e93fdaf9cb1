package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
	"github.com/aliuyar1234/orderflow/pkg/shared/retry"
)

// Handler executes one task type. Returning a recoverable error
// re-schedules the task; a non-recoverable error (or exhausted
// attempts) completes it on the queue and passes it to the FailureSink.
type Handler func(ctx context.Context, task Task) error

// FailureSink receives poison tasks after their terminal failure.
type FailureSink interface {
	OnTaskFailed(ctx context.Context, task Task, cause error)
}

// Backoff policy: exponential with jitter, capped at 10 minutes.
const (
	backoffBase = 5 * time.Second
	backoffCap  = 10 * time.Minute
)

// Orchestrator runs a pool of workers over a Queue.
type Orchestrator struct {
	queue        Queue
	handlers     map[TaskType]Handler
	failures     FailureSink
	concurrency  int
	pollInterval time.Duration
	log          *logrus.Logger
	now          func() time.Time

	wg sync.WaitGroup
}

// NewOrchestrator builds an Orchestrator. failures may be nil.
func NewOrchestrator(queue Queue, concurrency int, pollInterval time.Duration, failures FailureSink, logger *logrus.Logger) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 4
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Orchestrator{
		queue:        queue,
		handlers:     make(map[TaskType]Handler),
		failures:     failures,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		log:          logger,
		now:          time.Now,
	}
}

// Register installs the handler for a task type. Registering twice
// replaces the previous handler.
func (o *Orchestrator) Register(taskType TaskType, handler Handler) {
	o.handlers[taskType] = handler
}

// Run starts the worker pool and blocks until ctx is done and all
// in-flight tasks finish.
func (o *Orchestrator) Run(ctx context.Context) {
	for i := 0; i < o.concurrency; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}
	o.wg.Wait()
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := o.queue.Dequeue(ctx)
		if err != nil {
			o.log.WithError(err).Warn("task dequeue failed")
			o.sleep(ctx, o.pollInterval)
			continue
		}
		if task == nil {
			o.sleep(ctx, o.pollInterval)
			continue
		}

		o.execute(ctx, *task)
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (o *Orchestrator) execute(ctx context.Context, task Task) {
	started := o.now()
	fields := logrus.Fields{
		"component": "worker",
		"task_type": string(task.Type),
		"task_id":   task.ID.String(),
		"tenant_id": task.TenantID.String(),
		"attempt":   task.Attempts + 1,
	}

	handler, ok := o.handlers[task.Type]
	if !ok {
		o.log.WithFields(fields).Error("no handler registered for task type")
		o.fail(ctx, task, fmt.Errorf("no handler for task type %s", task.Type))
		return
	}

	task.Attempts++
	err := o.run(ctx, handler, task)
	duration := o.now().Sub(started)

	if err == nil {
		if completeErr := o.queue.Complete(ctx, task); completeErr != nil {
			o.log.WithFields(fields).WithError(completeErr).Warn("task completion bookkeeping failed")
		}
		metrics.RecordTask(string(task.Type), "success", duration)
		o.log.WithFields(fields).WithField("duration_ms", duration.Milliseconds()).Debug("task succeeded")
		return
	}

	task.LastError = err.Error()

	if !isRecoverable(err) {
		o.log.WithFields(fields).WithError(err).Error("task failed with non-recoverable error")
		metrics.RecordTask(string(task.Type), "failed", duration)
		o.fail(ctx, task, err)
		return
	}

	if task.Attempts >= task.MaxAttempts {
		o.log.WithFields(fields).WithError(err).Error("task failed after retry exhaustion")
		metrics.RecordTask(string(task.Type), "exhausted", duration)
		o.fail(ctx, task, err)
		return
	}

	delay := backoffDelay(task.Attempts)
	runAt := o.now().UTC().Add(delay)
	if retryErr := o.queue.Retry(ctx, task, runAt); retryErr != nil {
		o.log.WithFields(fields).WithError(retryErr).Error("task re-schedule failed")
		o.fail(ctx, task, err)
		return
	}
	metrics.RecordTask(string(task.Type), "retried", duration)
	o.log.WithFields(fields).WithError(err).WithField("retry_in", delay.String()).Warn("task retrying")
}

func (o *Orchestrator) run(ctx context.Context, handler Handler, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return handler(ctx, task)
}

func (o *Orchestrator) fail(ctx context.Context, task Task, cause error) {
	if completeErr := o.queue.Complete(ctx, task); completeErr != nil {
		o.log.WithError(completeErr).Warn("poison task cleanup failed")
	}
	if o.failures != nil {
		o.failures.OnTaskFailed(ctx, task, cause)
	}
}

// isRecoverable classifies handler errors. Provider-transient and
// infrastructure errors retry; auth, invalid input, and state errors
// fail immediately.
func isRecoverable(err error) bool {
	switch apperrors.GetType(err) {
	case apperrors.ErrorTypeLLMTimeout, apperrors.ErrorTypeLLMRateLimit,
		apperrors.ErrorTypeLLMServiceUnavailable, apperrors.ErrorTypeStorageUnavailable,
		apperrors.ErrorTypeDropzoneWriteFailed, apperrors.ErrorTypeDatabase:
		return true
	case apperrors.ErrorTypeLLMAuthFailed, apperrors.ErrorTypeSftpAuthFailed,
		apperrors.ErrorTypeInvalidFile, apperrors.ErrorTypeUnsupportedMimeType,
		apperrors.ErrorTypeEmptyFile, apperrors.ErrorTypeFileTooLarge,
		apperrors.ErrorTypeIllegalStateTransition, apperrors.ErrorTypeVersionConflict,
		apperrors.ErrorTypeNotFound, apperrors.ErrorTypeBudgetExceeded:
		return false
	}
	return retry.IsRetryableError(err)
}

// backoffDelay computes the exponential backoff with jitter for the
// given attempt number (1-based).
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
			break
		}
	}
	if delay > backoffCap {
		delay = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
