// Package scheduling drives the manager's periodic loops on cron
// expressions or fixed intervals.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduledAction identifies a type of scheduled action.
type ScheduledAction string

const (
	ActionHealthCheck       ScheduledAction = "health_check"
	ActionMetricsCollect    ScheduledAction = "metrics_collect"
	ActionSnapshotRetention ScheduledAction = "snapshot_retention"
)

// DefaultTaskTimeout bounds a single run when the task sets no timeout.
const DefaultTaskTimeout = time.Minute

// ScheduledTask defines a recurring task.
type ScheduledTask struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" OR duration "30s"
	Action   ScheduledAction
	Timeout  time.Duration
}

// TaskInfo describes a registered task for status output.
type TaskInfo struct {
	Name    string
	Action  ScheduledAction
	NextRun time.Time
}

type entry struct {
	id   cron.EntryID
	task ScheduledTask
}

// Scheduler runs registered actions on their schedules. A run that is still
// going when the next tick arrives causes that tick to be skipped, so one
// loop never overlaps itself.
type Scheduler struct {
	cron    *cron.Cron
	actions map[ScheduledAction]func(ctx context.Context) error
	entries []entry
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger}))),
		actions: make(map[ScheduledAction]func(ctx context.Context) error),
		logger:  logger,
	}
}

// RegisterAction registers a handler for a scheduled action type.
func (s *Scheduler) RegisterAction(action ScheduledAction, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask adds a scheduled task. The schedule can be a cron expression or a duration string.
func (s *Scheduler) AddTask(task ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %q for task %q", task.Action, task.Name)
	}

	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	taskName := task.Name
	logger := s.logger

	id := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		if ctx == nil || ctx.Err() != nil {
			logger.Debug("scheduler stopped, skipping task", "task", taskName)
			return
		}

		taskCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		if err := fn(taskCtx); err != nil {
			logger.Warn("scheduled task failed",
				"task", taskName,
				"error", err,
				"duration", time.Since(start))
			return
		}
		logger.Debug("scheduled task completed",
			"task", taskName,
			"duration", time.Since(start))
	}))
	s.entries = append(s.entries, entry{id: id, task: task})

	logger.Info("task added to scheduler", "name", task.Name, "schedule", task.Schedule, "action", string(task.Action))
	return nil
}

// Tasks lists registered tasks with their next run time. NextRun is zero
// until the scheduler has started.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	entries := slices.Clone(s.entries)
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, TaskInfo{
			Name:    e.task.Name,
			Action:  e.task.Action,
			NextRun: s.cron.Entry(e.id).Next,
		})
	}
	return out
}

// Start begins running the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	s.mu.Unlock()

	// Jobs take s.mu to read the context, so wait without holding it.
	<-s.cron.Stop().Done()
	return nil
}

// parseSchedule tries to parse a schedule string as a cron expression first,
// then falls back to time.ParseDuration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return &constantDelay{delay: dur}, nil
}

// ParseSchedule exposes schedule parsing for config validation.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	return parseSchedule(schedule)
}

// constantDelay implements cron.Schedule for a fixed interval.
// Unlike cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d *constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
