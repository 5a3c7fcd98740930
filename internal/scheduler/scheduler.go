// Package scheduler implements a cron-subset task
// scheduler driving memcore's daily maintenance (recluster, prune, vector
// TTL cleanup, vacuum) on a single background tick loop.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// tickInterval is how often run_daemon wakes to check task schedules.
const tickInterval = 60 * time.Second

// staleAfter marks a task stale at startup if it has never run or its
// last run finished more than this long ago.
const staleAfter = 24 * time.Hour

// Handler performs one task's work and reports its own success.
type Handler func(ctx context.Context) (message string, details string, err error)

// Task pairs a name and cron schedule with the handler that runs it.
type Task struct {
	Name     string
	Schedule *Schedule
	Run      Handler
}

// Scheduler runs a fixed set of Tasks against a persisted last_runs
// state file.
type Scheduler struct {
	tasks []Task
	state *state
	log   *slog.Logger
}

// New builds a Scheduler. statePath is where last_runs persists as JSON;
// an empty path disables persistence (state is kept in memory only).
func New(tasks []Task, statePath string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{tasks: tasks, state: loadState(statePath), log: log}
}

// ShouldRun reports whether a task is due: every schedule field matches
// now, and the task has not already run within now's minute.
func ShouldRun(sched *Schedule, lastRun *TaskRun, now time.Time) bool {
	if !sched.Matches(now) {
		return false
	}
	if lastRun == nil {
		return true
	}
	return !sameMinute(lastRun.Start, now)
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

// RunTask locates the named task, runs its handler, and records the
// result. Handler errors become a failed TaskRun rather than propagating:
// a broken maintenance task must never bring down the daemon loop.
func (s *Scheduler) RunTask(ctx context.Context, name string) TaskRun {
	var task *Task
	for i := range s.tasks {
		if s.tasks[i].Name == name {
			task = &s.tasks[i]
			break
		}
	}
	if task == nil {
		run := TaskRun{Start: time.Now(), End: time.Now(), Success: false, Message: "unknown task: " + name}
		_ = s.state.record(name, run)
		return run
	}

	start := time.Now()
	message, details, err := task.Run(ctx)
	run := TaskRun{Start: start, End: time.Now(), Success: err == nil, Details: details}
	if err != nil {
		run.Message = err.Error()
		s.log.Warn("maintenance task failed", slog.String("task", name), slog.String("error", err.Error()))
	} else {
		run.Message = message
		s.log.Info("maintenance task completed", slog.String("task", name), slog.Duration("elapsed", run.End.Sub(start)))
	}

	if err := s.state.record(name, run); err != nil {
		s.log.Warn("failed to persist task state", slog.String("task", name), slog.String("error", err.Error()))
	}
	return run
}

// RunDaemon ticks every 60s, running every task whose schedule matches
// the tick, until ctx is cancelled. At startup it fires any stale task
// (never run, or last run more than 24h ago) in the background so a
// machine that was off at its usual maintenance window still catches up.
func (s *Scheduler) RunDaemon(ctx context.Context) {
	s.fireStaleTasks(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runDueTasks(ctx, now)
		}
	}
}

func (s *Scheduler) runDueTasks(ctx context.Context, now time.Time) {
	for _, task := range s.tasks {
		lastRun, ok := s.state.get(task.Name)
		var lastRunPtr *TaskRun
		if ok {
			lastRunPtr = &lastRun
		}
		if ShouldRun(task.Schedule, lastRunPtr, now) {
			s.RunTask(ctx, task.Name)
		}
	}
}

func (s *Scheduler) fireStaleTasks(ctx context.Context) {
	now := time.Now()
	for _, task := range s.tasks {
		lastRun, ok := s.state.get(task.Name)
		if ok && now.Sub(lastRun.End) < staleAfter {
			continue
		}
		go s.RunTask(ctx, task.Name)
	}
}
