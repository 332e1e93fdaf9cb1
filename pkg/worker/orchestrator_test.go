package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
)

type failureRecorder struct {
	mu    sync.Mutex
	tasks []Task
}

func (f *failureRecorder) OnTaskFailed(ctx context.Context, task Task, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
}

func (f *failureRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func runOrchestrator(t *testing.T, queue Queue, failures FailureSink, register func(*Orchestrator), wait time.Duration) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	o := NewOrchestrator(queue, 2, 10*time.Millisecond, failures, logger)
	register(o)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	o.Run(ctx)
}

func dueTask(t *testing.T, taskType TaskType) Task {
	t.Helper()
	task, err := NewTask(uuid.New(), taskType, nil)
	require.NoError(t, err)
	task.RunAt = time.Now().UTC().Add(-time.Second)
	return task
}

func TestOrchestratorExecutesTasks(t *testing.T) {
	queue := NewMemoryQueue()
	ctx := context.Background()

	var mu sync.Mutex
	var seen []uuid.UUID

	require.NoError(t, queue.Enqueue(ctx, dueTask(t, TaskExtractDocument)))
	require.NoError(t, queue.Enqueue(ctx, dueTask(t, TaskExtractDocument)))

	runOrchestrator(t, queue, nil, func(o *Orchestrator) {
		o.Register(TaskExtractDocument, func(ctx context.Context, task Task) error {
			mu.Lock()
			seen = append(seen, task.ID)
			mu.Unlock()
			return nil
		})
	}, 300*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2)
	assert.Equal(t, 0, queue.Len())
}

func TestOrchestratorRetriesRecoverableErrors(t *testing.T) {
	queue := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, dueTask(t, TaskExportDraft)))

	var mu sync.Mutex
	attempts := 0

	// Note: the first retry backs off ~5s, so within the test window
	// we only observe the initial attempt plus the re-schedule.
	runOrchestrator(t, queue, nil, func(o *Orchestrator) {
		o.Register(TaskExportDraft, func(ctx context.Context, task Task) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return apperrors.New(apperrors.ErrorTypeStorageUnavailable, "flaky backend")
		})
	}, 300*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, queue.Len(), "the task must be re-scheduled, not dropped")
}

func TestOrchestratorFailsFastOnNonRecoverableErrors(t *testing.T) {
	queue := NewMemoryQueue()
	ctx := context.Background()
	failures := &failureRecorder{}
	require.NoError(t, queue.Enqueue(ctx, dueTask(t, TaskExtractDocument)))

	var mu sync.Mutex
	attempts := 0

	runOrchestrator(t, queue, failures, func(o *Orchestrator) {
		o.Register(TaskExtractDocument, func(ctx context.Context, task Task) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return apperrors.New(apperrors.ErrorTypeUnsupportedMimeType, "no extractor")
		})
	}, 300*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts, "non-recoverable errors never retry")
	assert.Equal(t, 0, queue.Len())
	assert.Equal(t, 1, failures.count())
}

func TestOrchestratorMarksPoisonAfterExhaustion(t *testing.T) {
	queue := NewMemoryQueue()
	ctx := context.Background()
	failures := &failureRecorder{}

	task := dueTask(t, TaskExportDraft)
	task.Attempts = 2 // one attempt left
	require.NoError(t, queue.Enqueue(ctx, task))

	runOrchestrator(t, queue, failures, func(o *Orchestrator) {
		o.Register(TaskExportDraft, func(ctx context.Context, task Task) error {
			return apperrors.New(apperrors.ErrorTypeStorageUnavailable, "still flaky")
		})
	}, 300*time.Millisecond)

	assert.Equal(t, 1, failures.count())
	assert.Equal(t, 0, queue.Len())
}

func TestOrchestratorRecoversFromHandlerPanics(t *testing.T) {
	queue := NewMemoryQueue()
	ctx := context.Background()
	failures := &failureRecorder{}

	task := dueTask(t, TaskPollAcks)
	task.Attempts = 2
	require.NoError(t, queue.Enqueue(ctx, task))

	runOrchestrator(t, queue, failures, func(o *Orchestrator) {
		o.Register(TaskPollAcks, func(ctx context.Context, task Task) error {
			panic("boom")
		})
	}, 300*time.Millisecond)

	assert.Equal(t, 1, failures.count(), "a panicking handler becomes a failed task, not a dead worker")
}

func TestOrchestratorHandlesUnknownTaskTypes(t *testing.T) {
	queue := NewMemoryQueue()
	ctx := context.Background()
	failures := &failureRecorder{}
	require.NoError(t, queue.Enqueue(ctx, dueTask(t, TaskType("mystery"))))

	runOrchestrator(t, queue, failures, func(o *Orchestrator) {}, 300*time.Millisecond)

	assert.Equal(t, 1, failures.count())
	assert.Equal(t, 0, queue.Len())
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, isRecoverable(apperrors.New(apperrors.ErrorTypeLLMTimeout, "t")))
	assert.True(t, isRecoverable(apperrors.New(apperrors.ErrorTypeLLMRateLimit, "r")))
	assert.True(t, isRecoverable(apperrors.New(apperrors.ErrorTypeDatabase, "d")))
	assert.True(t, isRecoverable(errors.New("connection refused")))

	assert.False(t, isRecoverable(apperrors.New(apperrors.ErrorTypeLLMAuthFailed, "a")))
	assert.False(t, isRecoverable(apperrors.New(apperrors.ErrorTypeVersionConflict, "v")))
	assert.False(t, isRecoverable(apperrors.New(apperrors.ErrorTypeBudgetExceeded, "b")))
	assert.False(t, isRecoverable(errors.New("some business failure")))
}

func TestBackoffDelayCapsAtTenMinutes(t *testing.T) {
	for attempt := 1; attempt <= 12; attempt++ {
		delay := backoffDelay(attempt)
		assert.LessOrEqual(t, delay, backoffCap+backoffCap/4, "attempt %d", attempt)
		assert.Greater(t, delay, time.Duration(0))
	}
}
