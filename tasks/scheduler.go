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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// cronParser accepts the six-field form: second, minute, hour, day of
// month, month, day of week. The seconds field is not optional; five-field
// expressions are rejected.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// JobStatus is the lifecycle state of a scheduled job.
type JobStatus string

const (
	// JobScheduled means the job fires at its next cron boundary.
	JobScheduled JobStatus = "scheduled"

	// JobCancelled means the job was unregistered. It stays listed but
	// never fires again.
	JobCancelled JobStatus = "cancelled"
)

// Job is a point-in-time snapshot of one scheduled job.
type Job struct {
	ID      string
	Name    string
	Spec    string
	Status  JobStatus
	LastRun time.Time // zero until the first fire
	NextRun time.Time // zero once cancelled
}

// job is the live record behind a Job snapshot. Guarded by the scheduler
// mutex.
type job struct {
	id       string
	name     string
	spec     string
	schedule cron.Schedule
	work     Work

	status  JobStatus
	lastRun time.Time
	nextRun time.Time
}

func (j *job) snapshot() Job {
	return Job{
		ID:      j.id,
		Name:    j.name,
		Spec:    j.spec,
		Status:  j.status,
		LastRun: j.lastRun,
		NextRun: j.nextRun,
	}
}

// Scheduler fires recurring jobs from six-field cron expressions. The loop
// ticks once per second, and due callbacks run through the Spawner, so a
// slow job delays nothing but itself. At most one loop runs at a time;
// Stop followed by Start resumes the surviving jobs.
type Scheduler struct {
	spawner *Spawner
	logger  *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*job
	stopCh chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger for fire and rejection events.
// Without it the scheduler is silent.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler builds a scheduler that runs job callbacks through spawner.
func NewScheduler(spawner *Spawner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		spawner: spawner,
		jobs:    make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register adds a job and returns its id. The expression must have exactly
// six fields; the first fire is the next matching instant after now.
func (s *Scheduler) Register(name, spec string, work Work) (string, error) {
	if work == nil {
		return "", fmt.Errorf("tasks: nil work for job %q", name)
	}
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return "", fmt.Errorf("tasks: parse cron %q: %w", spec, err)
	}

	j := &job{
		id:       uuid.Must(uuid.NewV7()).String(),
		name:     name,
		spec:     spec,
		schedule: schedule,
		work:     work,
		status:   JobScheduled,
		nextRun:  schedule.Next(time.Now()),
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	return j.id, nil
}

// Unregister cancels the job: it stops firing and its callback and
// schedule are released. The record stays visible in List with status
// cancelled until the scheduler itself is discarded.
func (s *Scheduler) Unregister(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("tasks: job %s not found", id)
	}
	j.status = JobCancelled
	j.work = nil
	j.schedule = nil
	j.nextRun = time.Time{}

	return nil
}

// RunNow fires the job immediately through the Spawner, independent of its
// schedule. The cron boundary fires are unaffected.
func (s *Scheduler) RunNow(id string) (*Handle, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("tasks: job %s not found", id)
	}
	if j.status == JobCancelled {
		s.mu.Unlock()
		return nil, fmt.Errorf("tasks: job %s is cancelled", id)
	}
	name, work := j.name, j.work
	j.lastRun = time.Now()
	s.mu.Unlock()

	return s.spawner.Spawn(name, work)
}

// List returns snapshots of every job, oldest first. UUIDv7 ids sort in
// registration order.
func (s *Scheduler) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.snapshot())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })

	return out
}

// Start spins the tick loop. It errors if the loop is already running;
// Stop followed by Start is allowed.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return errors.New("tasks: scheduler already started")
	}
	s.stopCh = make(chan struct{})
	go s.loop(s.stopCh)

	return nil
}

// Stop ends the tick loop. Jobs keep their schedules and resume on the
// next Start; callbacks already in flight belong to the Spawner and are
// not touched. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *Scheduler) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

// fireDue spawns every job whose fire time has arrived and advances it to
// the following boundary. Fires missed while the loop was stopped collapse
// into one. Spawning happens outside the lock so admission waits cannot
// block Register or List.
func (s *Scheduler) fireDue(now time.Time) {
	type firing struct {
		name string
		work Work
	}

	s.mu.Lock()
	var due []firing
	for _, j := range s.jobs {
		if j.status != JobScheduled || j.nextRun.After(now) {
			continue
		}
		due = append(due, firing{name: j.name, work: j.work})
		j.lastRun = now
		j.nextRun = j.schedule.Next(now)
	}
	s.mu.Unlock()

	for _, f := range due {
		if err := s.spawner.SpawnDetached(f.name, f.work); err != nil {
			s.logWarn("job fire rejected",
				slog.String("job", f.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logDebug("job fired", slog.String("job", f.name))
	}
}

func (s *Scheduler) logWarn(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg, args...)
}

func (s *Scheduler) logDebug(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Debug(msg, args...)
}
