package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"leadcrm/utils"
)

var (
	ErrQueueFull    = errors.New("task queue is full")
	ErrQueueStopped = errors.New("task queue is stopped")
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// TaskFunc is the body of a task. Returning an error marks the task failed.
type TaskFunc func(ctx context.Context, t *Task) error

// TaskSnapshot is a point-in-time copy of a task's state
type TaskSnapshot struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Status     TaskStatus  `json:"status"`
	Percent    int         `json:"percent"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Task is a handle on a unit of background work
type Task struct {
	mu    sync.Mutex
	snap  TaskSnapshot
	err   error
	fn    TaskFunc
	done  chan struct{}
	queue *TaskQueue
}

func (t *Task) ID() string { return t.snap.ID }

// Snapshot returns a copy of the current state
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Done is closed once the task has finished
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done, returning the task's error
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetProgress records done out of total with a status message
func (t *Task) SetProgress(done, total int, message string) {
	percent := 100
	if total > 0 {
		percent = done * 100 / total
	}
	t.update(func(s *TaskSnapshot) {
		s.Percent = percent
		s.Message = message
	})
}

// SetResult attaches a JSON-serialisable result to the task
func (t *Task) SetResult(v interface{}) {
	t.update(func(s *TaskSnapshot) { s.Result = v })
}

func (t *Task) update(fn func(*TaskSnapshot)) {
	t.mu.Lock()
	fn(&t.snap)
	snap := t.snap
	t.mu.Unlock()
	if t.queue != nil {
		t.queue.publish(snap)
	}
}

// TaskQueue runs submitted tasks on a fixed pool of goroutines
type TaskQueue struct {
	workers   int
	queue     chan *Task
	retention time.Duration
	logger    *logrus.Entry

	mu      sync.RWMutex
	tasks   map[string]*Task
	stopped bool

	subMu sync.Mutex
	subs  map[chan TaskSnapshot]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewTaskQueue(workers, size int) *TaskQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 100
	}
	return &TaskQueue{
		workers:   workers,
		queue:     make(chan *Task, size),
		retention: time.Hour,
		logger:    utils.GetLogger("worker").WithField("component", "task_queue"),
		tasks:     make(map[string]*Task),
		subs:      make(map[chan TaskSnapshot]struct{}),
	}
}

// Start launches the workers. Tasks run under a context derived from ctx,
// not from the request that submitted them.
func (q *TaskQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-q.queue:
					if ctx.Err() != nil {
						t.finish(ErrQueueStopped)
						return
					}
					q.run(ctx, t)
				}
			}
		}()
	}
	q.logger.WithField("workers", q.workers).Info("Task queue started")
}

// Stop cancels running tasks and waits for the workers to exit. Tasks still
// queued fail with ErrQueueStopped so their waiters are released.
func (q *TaskQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()

	dropped := 0
drain:
	for {
		select {
		case t := <-q.queue:
			t.finish(ErrQueueStopped)
			dropped++
		default:
			break drain
		}
	}
	q.logger.WithField("dropped", dropped).Info("Task queue stopped")
}

func newTask(name string, fn TaskFunc, q *TaskQueue) *Task {
	return &Task{
		snap: TaskSnapshot{
			ID:        uuid.NewString(),
			Name:      name,
			Status:    TaskPending,
			CreatedAt: time.Now().UTC(),
		},
		fn:    fn,
		done:  make(chan struct{}),
		queue: q,
	}
}

// Submit enqueues fn and returns its handle without waiting for it to run
func (q *TaskQueue) Submit(name string, fn TaskFunc) (*Task, error) {
	t := newTask(name, fn, q)

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil, ErrQueueStopped
	}
	q.pruneLocked()
	select {
	case q.queue <- t:
		q.tasks[t.snap.ID] = t
	default:
		q.mu.Unlock()
		return nil, ErrQueueFull
	}
	q.mu.Unlock()

	q.publish(t.Snapshot())
	return t, nil
}

func (q *TaskQueue) Get(id string) (*Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.tasks[id]
	return t, ok
}

// List returns snapshots of retained tasks, newest first
func (q *TaskQueue) List() []TaskSnapshot {
	q.mu.RLock()
	out := make([]TaskSnapshot, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.Snapshot())
	}
	q.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Subscribe streams task updates until cancel is called. Updates are dropped
// for a subscriber that falls behind.
func (q *TaskQueue) Subscribe() (<-chan TaskSnapshot, func()) {
	ch := make(chan TaskSnapshot, 32)
	q.subMu.Lock()
	q.subs[ch] = struct{}{}
	q.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.subMu.Lock()
			delete(q.subs, ch)
			q.subMu.Unlock()
			close(ch)
		})
	}
}

func (q *TaskQueue) publish(s TaskSnapshot) {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	for ch := range q.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (q *TaskQueue) pruneLocked() {
	cutoff := time.Now().Add(-q.retention)
	for id, t := range q.tasks {
		s := t.Snapshot()
		if s.FinishedAt != nil && s.FinishedAt.Before(cutoff) {
			delete(q.tasks, id)
		}
	}
}

func (q *TaskQueue) run(ctx context.Context, t *Task) {
	t.execute(ctx, q.logger)
}

func (t *Task) execute(ctx context.Context, logger *logrus.Entry) {
	log := logger.WithFields(logrus.Fields{"task_id": t.snap.ID, "task": t.snap.Name})

	started := time.Now().UTC()
	t.update(func(s *TaskSnapshot) {
		s.Status = TaskRunning
		s.StartedAt = &started
	})

	err := t.invoke(ctx, log)
	snap := t.finish(err)

	if err != nil {
		utils.LogError("task_failed", err, map[string]interface{}{
			"task_id": snap.ID,
			"task":    snap.Name,
		})
		return
	}
	log.WithField("duration", snap.FinishedAt.Sub(started).Round(time.Millisecond).String()).Debug("Task finished")
}

// finish records the outcome, releases waiters and publishes the final state
func (t *Task) finish(err error) TaskSnapshot {
	finished := time.Now().UTC()
	t.mu.Lock()
	t.err = err
	t.snap.FinishedAt = &finished
	if err != nil {
		t.snap.Status = TaskFailed
		t.snap.Error = err.Error()
	} else {
		t.snap.Status = TaskSucceeded
		t.snap.Percent = 100
	}
	snap := t.snap
	t.mu.Unlock()
	close(t.done)
	if t.queue != nil {
		t.queue.publish(snap)
	}
	return snap
}

func (t *Task) invoke(ctx context.Context, log *logrus.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Error("Task panicked")
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.fn(ctx, t)
}

// InlineRunner runs each submitted task to completion before Submit
// returns. It backs the CLI and tests where no queue is running.
type InlineRunner struct {
	Ctx context.Context
}

func (r InlineRunner) Submit(name string, fn TaskFunc) (*Task, error) {
	ctx := r.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	t := newTask(name, fn, nil)
	t.execute(ctx, utils.GetLogger("worker").WithField("component", "inline_runner"))
	return t, nil
}
