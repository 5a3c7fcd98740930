package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(newDiscardWriter(), nil))
}

type discardWriter struct{}

func newDiscardWriter() *discardWriter { return &discardWriter{} }
func (*discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func mustSchedule(t *testing.T, expr string) *Schedule {
	t.Helper()
	sched, err := ParseSchedule(expr)
	require.NoError(t, err)
	return sched
}

func TestShouldRunFalseWhenScheduleDoesNotMatch(t *testing.T) {
	sched := mustSchedule(t, "0 3 * * *")
	now := time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)

	assert.False(t, ShouldRun(sched, nil, now))
}

func TestShouldRunTrueWhenMatchesAndNeverRun(t *testing.T) {
	sched := mustSchedule(t, "0 3 * * *")
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)

	assert.True(t, ShouldRun(sched, nil, now))
}

func TestShouldRunFalseWhenAlreadyRanThisMinute(t *testing.T) {
	sched := mustSchedule(t, "0 3 * * *")
	now := time.Date(2026, 1, 1, 3, 0, 30, 0, time.UTC)
	last := TaskRun{Start: time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)}

	assert.False(t, ShouldRun(sched, &last, now))
}

func TestShouldRunTrueWhenMatchesAgainNextDay(t *testing.T) {
	sched := mustSchedule(t, "0 3 * * *")
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	last := TaskRun{Start: time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)}

	assert.True(t, ShouldRun(sched, &last, now))
}

func TestRunTaskRecordsSuccessAndMessage(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	tasks := []Task{{
		Name:     "ok-task",
		Schedule: mustSchedule(t, "* * * * *"),
		Run: func(ctx context.Context) (string, string, error) {
			return "did the thing", "detail", nil
		},
	}}
	s := New(tasks, statePath, discardLogger())

	run := s.RunTask(context.Background(), "ok-task")

	assert.True(t, run.Success)
	assert.Equal(t, "did the thing", run.Message)
	assert.Equal(t, "detail", run.Details)
}

func TestRunTaskRecordsFailureWithoutPropagatingError(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	tasks := []Task{{
		Name:     "bad-task",
		Schedule: mustSchedule(t, "* * * * *"),
		Run: func(ctx context.Context) (string, string, error) {
			return "", "", errors.New("boom")
		},
	}}
	s := New(tasks, statePath, discardLogger())

	run := s.RunTask(context.Background(), "bad-task")

	assert.False(t, run.Success)
	assert.Equal(t, "boom", run.Message)
}

func TestRunTaskUnknownNameRecordsFailure(t *testing.T) {
	s := New(nil, "", discardLogger())

	run := s.RunTask(context.Background(), "nonexistent")

	assert.False(t, run.Success)
	assert.Contains(t, run.Message, "unknown task")
}

func TestRunTaskPersistsStateAcrossSchedulerInstances(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	tasks := []Task{{
		Name:     "persisted",
		Schedule: mustSchedule(t, "* * * * *"),
		Run: func(ctx context.Context) (string, string, error) {
			return "done", "", nil
		},
	}}
	s1 := New(tasks, statePath, discardLogger())
	s1.RunTask(context.Background(), "persisted")

	s2 := New(tasks, statePath, discardLogger())
	last, ok := s2.state.get("persisted")
	require.True(t, ok)
	assert.True(t, last.Success)
}

func TestFireStaleTasksRunsNeverRunTask(t *testing.T) {
	var calls int32
	tasks := []Task{{
		Name:     "stale",
		Schedule: mustSchedule(t, "0 3 * * *"),
		Run: func(ctx context.Context) (string, string, error) {
			atomic.AddInt32(&calls, 1)
			return "ran", "", nil
		},
	}}
	s := New(tasks, "", discardLogger())

	s.fireStaleTasks(context.Background())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
}

func TestFireStaleTasksSkipsRecentlyRunTask(t *testing.T) {
	var calls int32
	tasks := []Task{{
		Name:     "fresh",
		Schedule: mustSchedule(t, "0 3 * * *"),
		Run: func(ctx context.Context) (string, string, error) {
			atomic.AddInt32(&calls, 1)
			return "ran", "", nil
		},
	}}
	s := New(tasks, "", discardLogger())
	s.state.record("fresh", TaskRun{Start: time.Now(), End: time.Now(), Success: true})

	s.fireStaleTasks(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRunDueTasksRunsOnlyMatchingSchedules(t *testing.T) {
	var mu sync.Mutex
	var ran []string
	record := func(name string) Handler {
		return func(ctx context.Context) (string, string, error) {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
			return "ok", "", nil
		}
	}
	tasks := []Task{
		{Name: "every-minute", Schedule: mustSchedule(t, "* * * * *"), Run: record("every-minute")},
		{Name: "three-am-only", Schedule: mustSchedule(t, "0 3 * * *"), Run: record("three-am-only")},
	}
	s := New(tasks, "", discardLogger())

	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	s.runDueTasks(context.Background(), now)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"every-minute", "three-am-only"}, ran)
}

func TestRunDaemonStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(nil, "", discardLogger())

	done := make(chan struct{})
	go func() {
		s.RunDaemon(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunDaemon did not return after context cancellation")
	}
}
