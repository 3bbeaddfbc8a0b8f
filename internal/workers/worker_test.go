package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
)

type failure struct {
	msg   string
	retry bool
}

type fakeQueue struct {
	mu        sync.Mutex
	tasks     []taskqueue.ClaimedTask
	invalid   map[string]bool
	completed []string
	failed    map[string]failure
	extended  int
}

func newFakeQueue(tasks ...taskqueue.ClaimedTask) *fakeQueue {
	return &fakeQueue{tasks: tasks, invalid: map[string]bool{}, failed: map[string]failure{}}
}

func (q *fakeQueue) ClaimTasks(_ context.Context, in taskqueue.ClaimTasksInput) taskqueue.ClaimTasksResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := in.MaxTasks
	if n > len(q.tasks) {
		n = len(q.tasks)
	}
	out := q.tasks[:n]
	q.tasks = q.tasks[n:]
	return taskqueue.ClaimTasksResult{Tasks: out}
}

func (q *fakeQueue) ValidatePayload(task taskqueue.ClaimedTask) error {
	if q.invalid[task.ID] {
		return errors.New("schema mismatch")
	}
	return nil
}

func (q *fakeQueue) ExtendLease(context.Context, string, time.Duration) error {
	q.mu.Lock()
	q.extended++
	q.mu.Unlock()
	return nil
}

func (q *fakeQueue) CompleteTask(_ context.Context, id string, _ interface{}) error {
	q.mu.Lock()
	q.completed = append(q.completed, id)
	q.mu.Unlock()
	return nil
}

func (q *fakeQueue) FailTask(_ context.Context, id, msg string, retry bool) (bool, error) {
	q.mu.Lock()
	q.failed[id] = failure{msg, retry}
	q.mu.Unlock()
	return retry, nil
}

func TestProcessOnceOutcomes(t *testing.T) {
	q := newFakeQueue(
		taskqueue.ClaimedTask{ID: "ok", TaskType: "a", Payload: []byte(`{}`)},
		taskqueue.ClaimedTask{ID: "boom", TaskType: "a", Payload: []byte(`{"fail":true}`)},
		taskqueue.ClaimedTask{ID: "bad-input", TaskType: "b", Payload: []byte(`{}`)},
		taskqueue.ClaimedTask{ID: "orphan", TaskType: "c", Payload: []byte(`{}`)},
		taskqueue.ClaimedTask{ID: "schema", TaskType: "a", Payload: []byte(`{}`)},
		taskqueue.ClaimedTask{ID: "panic", TaskType: "p", Payload: []byte(`{}`)},
	)
	q.invalid["schema"] = true

	w := New(q, WorkerConfig{WorkerID: "test", TaskTypes: []string{"a", "b", "c", "p"}, MaxTasks: 10})
	w.RegisterHandler("a", func(_ context.Context, payload []byte) error {
		if string(payload) == `{"fail":true}` {
			return errors.New("download failed")
		}
		return nil
	})
	w.RegisterHandler("b", func(context.Context, []byte) error {
		return apperrors.Validation("unknown area")
	})
	w.RegisterHandler("p", func(context.Context, []byte) error {
		panic("nil raster")
	})

	n := w.ProcessOnce(context.Background(), "test-0")
	assert.Equal(t, 6, n)

	assert.Equal(t, []string{"ok"}, q.completed)
	assert.Equal(t, failure{"download failed", true}, q.failed["boom"])
	assert.False(t, q.failed["bad-input"].retry)
	assert.Equal(t, failure{"no handler registered", false}, q.failed["orphan"])
	assert.False(t, q.failed["schema"].retry)
	assert.Contains(t, q.failed["panic"].msg, "nil raster")
	assert.True(t, q.failed["panic"].retry)

	assert.Equal(t, 0, w.ProcessOnce(context.Background(), "test-0"))
}

func TestHeartbeatExtendsLease(t *testing.T) {
	q := newFakeQueue(taskqueue.ClaimedTask{ID: "slow", TaskType: "a", Payload: []byte(`{}`)})
	w := New(q, WorkerConfig{WorkerID: "test", TaskTypes: []string{"a"}, Lease: 30 * time.Millisecond})
	w.RegisterHandler("a", func(context.Context, []byte) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})

	w.ProcessOnce(context.Background(), "test-0")
	q.mu.Lock()
	defer q.mu.Unlock()
	assert.GreaterOrEqual(t, q.extended, 2)
	assert.Equal(t, []string{"slow"}, q.completed)
}

func TestStartStop(t *testing.T) {
	q := newFakeQueue(taskqueue.ClaimedTask{ID: "t1", TaskType: "a", Payload: []byte(`{}`)})
	done := make(chan struct{})
	w := New(q, WorkerConfig{WorkerID: "test", TaskTypes: []string{"a"}, NumWorkers: 2, PollDelay: 5 * time.Millisecond})
	w.RegisterHandler("a", func(context.Context, []byte) error {
		close(done)
		return nil
	})

	w.Start(context.Background())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "task was never processed")
	}
	w.Stop()
	w.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, []string{"t1"}, q.completed)
}
