// Copyright 2025 The Archimedes Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Status is the lifecycle state of a task. A task moves strictly forward:
// pending, running, then exactly one terminal state. Cancelling a pending
// task skips running entirely.
type Status string

const (
	// StatusPending means the task is created but not yet running,
	// usually because it is waiting on the admission gate.
	StatusPending Status = "pending"

	// StatusRunning means the task's work function is executing.
	StatusRunning Status = "running"

	// StatusCompleted means the work returned nil.
	StatusCompleted Status = "completed"

	// StatusFailed means the work returned an error or panicked.
	StatusFailed Status = "failed"

	// StatusCancelled means the task's context was cancelled before the
	// work finished.
	StatusCancelled Status = "cancelled"

	// StatusTimedOut means the task's per-spawn timeout expired.
	StatusTimedOut Status = "timed-out"
)

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}

	return false
}

// Work is the function a task runs. It must honor ctx: cancellation and
// timeouts are delivered through it and nothing else interrupts the work.
type Work func(ctx context.Context) error

// Info is a point-in-time snapshot of one task.
type Info struct {
	ID          string
	Name        string
	Status      Status
	CreatedAt   time.Time
	StartedAt   time.Time // zero until the task starts running
	CompletedAt time.Time // zero until the task reaches a terminal state
	Retries     int
	Error       string
}

// Stats counts finished tasks by terminal state. Pending and running tasks
// are not counted anywhere.
type Stats struct {
	Completed uint64
	Failed    uint64
	Cancelled uint64
	TimedOut  uint64
}

// task is the tracked state behind a Handle.
type task struct {
	mu   sync.Mutex
	info Info
	err  error

	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) snapshot() Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.info
}

func (t *task) setRunning() {
	t.mu.Lock()
	t.info.Status = StatusRunning
	t.info.StartedAt = time.Now()
	t.mu.Unlock()
}

func (t *task) bumpRetries() {
	t.mu.Lock()
	t.info.Retries++
	t.mu.Unlock()
}

// settle records the terminal state and releases joiners. Called exactly
// once, by the task's own runner goroutine.
func (t *task) settle(status Status, err error) {
	t.mu.Lock()
	t.info.Status = status
	t.info.CompletedAt = time.Now()
	if err != nil {
		t.err = err
		t.info.Error = err.Error()
	}
	t.mu.Unlock()

	close(t.done)
}

func (t *task) joinErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.err
}

// Handle follows one spawned task.
type Handle struct {
	t *task
}

// ID returns the task id.
func (h *Handle) ID() string { return h.t.info.ID }

// Info returns a snapshot of the task's current state.
func (h *Handle) Info() Info { return h.t.snapshot() }

// Done returns a channel closed when the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.t.done }

// Cancel asks the task to stop. A pending task is released without ever
// running; running work sees its context cancelled. Cancel does not wait.
func (h *Handle) Cancel() { h.t.cancel() }

// Join blocks until the task finishes and returns the work's error, or
// returns ctx's error if the wait itself is cut short. Join never cancels
// the task.
func (h *Handle) Join(ctx context.Context) error {
	select {
	case <-h.t.done:
		return h.t.joinErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawner launches and tracks background tasks.
type Spawner struct {
	logger *slog.Logger
	sem    *semaphore.Weighted

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
	stopped    atomic.Bool

	mu    sync.RWMutex
	tasks map[string]*task

	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	timedOut  atomic.Uint64
}

// SpawnerOption configures a Spawner.
type SpawnerOption func(*Spawner)

// WithMaxConcurrent caps how many tasks run at once. Tasks over the cap
// wait in the pending state. Zero or negative means unlimited.
func WithMaxConcurrent(n int) SpawnerOption {
	return func(s *Spawner) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithSpawnerLogger sets the logger for task lifecycle events. Without it
// the spawner is silent.
func WithSpawnerLogger(logger *slog.Logger) SpawnerOption {
	return func(s *Spawner) { s.logger = logger }
}

// NewSpawner builds a Spawner.
func NewSpawner(opts ...SpawnerOption) *Spawner {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Spawner{
		baseCtx:    ctx,
		cancelBase: cancel,
		tasks:      make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SpawnOption configures one spawn.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	timeout time.Duration
	retries int
}

// WithTimeout bounds the task's total run time, retries and the wait for
// admission included. On expiry the task's context is cancelled and the
// task finishes timed-out.
func WithTimeout(d time.Duration) SpawnOption {
	return func(c *spawnConfig) { c.timeout = d }
}

// WithRetries reruns failing work up to n extra times. Retries stop as
// soon as the task's context is cancelled or times out.
func WithRetries(n int) SpawnOption {
	return func(c *spawnConfig) {
		if n > 0 {
			c.retries = n
		}
	}
}

// Spawn launches work as a tracked task and returns a handle to it. The
// task starts pending and runs as soon as the admission gate lets it
// through.
func (s *Spawner) Spawn(name string, work Work, opts ...SpawnOption) (*Handle, error) {
	if work == nil {
		return nil, fmt.Errorf("tasks: nil work for %q", name)
	}
	if s.stopped.Load() {
		return nil, errors.New("tasks: spawner is stopped")
	}

	var cfg spawnConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &task{
		info: Info{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Name:      name,
			Status:    StatusPending,
			CreatedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.tasks[t.info.ID] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, t, work, cfg)

	return &Handle{t: t}, nil
}

// SpawnDetached launches fire-and-forget work. The task is still tracked
// and counted; there is just no handle to join.
func (s *Spawner) SpawnDetached(name string, work Work, opts ...SpawnOption) error {
	_, err := s.Spawn(name, work, opts...)

	return err
}

func (s *Spawner) run(ctx context.Context, t *task, work Work, cfg spawnConfig) {
	defer s.wg.Done()

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.finish(ctx, t, err)

			return
		}
		defer s.sem.Release(1)
	}

	t.setRunning()

	var err error
	for attempt := 0; ; attempt++ {
		err = s.invoke(ctx, work)
		if err == nil || attempt >= cfg.retries || ctx.Err() != nil {
			break
		}
		t.bumpRetries()
	}

	s.finish(ctx, t, err)
}

// invoke runs work once, converting a panic into an error so one bad task
// cannot take the process down.
func (s *Spawner) invoke(ctx context.Context, work Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()

	return work(ctx)
}

// finish classifies and records the terminal state. When work returned an
// error, the context decides between failed, cancelled, and timed-out.
func (s *Spawner) finish(ctx context.Context, t *task, err error) {
	var status Status
	switch {
	case err == nil:
		status = StatusCompleted
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = StatusTimedOut
	case errors.Is(ctx.Err(), context.Canceled):
		status = StatusCancelled
	default:
		status = StatusFailed
	}

	t.settle(status, err)

	switch status {
	case StatusCompleted:
		s.completed.Add(1)
	case StatusFailed:
		s.failed.Add(1)
	case StatusCancelled:
		s.cancelled.Add(1)
	case StatusTimedOut:
		s.timedOut.Add(1)
	}

	info := t.snapshot()
	args := []any{
		slog.String("task", info.Name),
		slog.String("task_id", info.ID),
		slog.String("status", string(status)),
	}
	if info.Error != "" {
		args = append(args, slog.String("error", info.Error))
	}
	switch status {
	case StatusFailed, StatusTimedOut:
		s.logWarn("task finished", args...)
	default:
		s.logDebug("task finished", args...)
	}
}

// Get returns a snapshot of the task with the given id.
func (s *Spawner) Get(id string) (Info, bool) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return Info{}, false
	}

	return t.snapshot(), true
}

// List returns snapshots of every tracked task, oldest first. UUIDv7 ids
// sort in creation order.
func (s *Spawner) List() []Info {
	s.mu.RLock()
	out := make([]Info, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Stats returns the terminal-state counters.
func (s *Spawner) Stats() Stats {
	return Stats{
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Cancelled: s.cancelled.Load(),
		TimedOut:  s.timedOut.Load(),
	}
}

// Prune drops finished tasks whose terminal state is older than keep and
// returns how many were dropped. Pending and running tasks are never
// pruned.
func (s *Spawner) Prune(keep time.Duration) int {
	cutoff := time.Now().Add(-keep)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, t := range s.tasks {
		info := t.snapshot()
		if info.Status.Terminal() && info.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}

	return n
}

// Stop rejects new spawns and waits for in-flight tasks to finish. If ctx
// expires first, every remaining task has its context cancelled and Stop
// returns ctx's error without waiting further. Stop is idempotent.
func (s *Spawner) Stop(ctx context.Context) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelBase()
		return nil
	case <-ctx.Done():
		s.cancelBase()
		return ctx.Err()
	}
}

func (s *Spawner) logWarn(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg, args...)
}

func (s *Spawner) logDebug(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Debug(msg, args...)
}
