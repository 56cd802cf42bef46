package engine_test

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/lock"
	"taskline/internal/repo"
)

func TestCompletedAtInvariantOverRandomUpdates(t *testing.T) {
	env := newTestEnv(t)
	rng := rand.New(rand.NewSource(42))
	task := env.createTask(t, reporter, engine.TaskFields{Title: "walk"})

	var lastDone *time.Time
	for i := 0; i < 60; i++ {
		env.Clock.Advance(time.Minute)
		status := domain.TaskStatuses[rng.Intn(len(domain.TaskStatuses))]
		prev := task.Status
		var err error
		if rng.Intn(2) == 0 {
			task, err = env.Engine.UpdateTask(env.Ctx, reporter, task.ID, engine.TaskPatch{Status: &status})
		} else {
			task, err = env.Engine.MoveTask(env.Ctx, reporter, task.ID, status, nil)
		}
		require.NoError(t, err)

		stored, err := env.Store.GetTask(env.Ctx, task.ID)
		require.NoError(t, err)
		require.Equal(t, stored.Status == domain.StatusDone, stored.CompletedAt != nil, "step %d status %s", i, stored.Status)
		if stored.Status == domain.StatusDone {
			if prev == domain.StatusDone {
				require.Equal(t, *lastDone, *stored.CompletedAt, "staying done keeps the stamp")
			} else {
				require.Equal(t, env.Clock.Now(), *stored.CompletedAt)
			}
			lastDone = stored.CompletedAt
		}
	}
}

func TestStartSprintKeepsOneActive(t *testing.T) {
	env := newTestEnv(t)
	s1, err := env.Engine.CreateSprint(env.Ctx, scrum, env.Project.ID, engine.SprintFields{Name: "Sprint 1"})
	require.NoError(t, err)
	s2, err := env.Engine.CreateSprint(env.Ctx, scrum, env.Project.ID, engine.SprintFields{Name: "Sprint 2", StartDate: "2023-12-20"})
	require.NoError(t, err)
	assert.False(t, s1.IsActive)

	s1, err = env.Engine.StartSprint(env.Ctx, scrum, s1.ID)
	require.NoError(t, err)
	assert.True(t, s1.IsActive)
	require.NotNil(t, s1.StartDate)
	assert.Equal(t, "2024-01-01", *s1.StartDate)

	s2, err = env.Engine.StartSprint(env.Ctx, scrum, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, "2023-12-20", *s2.StartDate, "existing start date is kept")

	active, err := env.Store.ListSprints(env.Ctx, repo.SprintFilter{ProjectID: env.Project.ID, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, s2.ID, active[0].ID)

	// restarting the active sprint is harmless
	_, err = env.Engine.StartSprint(env.Ctx, scrum, s2.ID)
	require.NoError(t, err)
}

func TestSprintWritesNeedScrumMaster(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateSprint(env.Ctx, reporter, env.Project.ID, engine.SprintFields{Name: "Sprint 1"})
	var ae domain.AuthorizationError
	require.True(t, errors.As(err, &ae), "got %v", err)

	s, err := env.Engine.CreateSprint(env.Ctx, scrum, env.Project.ID, engine.SprintFields{Name: "Sprint 1"})
	require.NoError(t, err)
	_, err = env.Engine.StartSprint(env.Ctx, dev, s.ID)
	require.True(t, errors.As(err, &ae))
	_, err = env.Engine.CompleteSprint(env.Ctx, dev, s.ID)
	require.True(t, errors.As(err, &ae))

	_, err = env.Engine.StartSprint(env.Ctx, outsider, s.ID)
	var nf domain.NotFoundError
	require.True(t, errors.As(err, &nf))

	got, err := env.Engine.GetSprint(env.Ctx, dev, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sprint 1", got.Name)

	_, err = env.Engine.CreateSprint(env.Ctx, scrum, env.Project.ID, engine.SprintFields{Name: "bad", StartDate: "2024-02-01", EndDate: "2024-01-01"})
	var ve domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestCompleteSprintReturnsOpenTasksToBacklog(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.CreateSprint(env.Ctx, scrum, env.Project.ID, engine.SprintFields{Name: "Sprint 1"})
	require.NoError(t, err)
	_, err = env.Engine.StartSprint(env.Ctx, scrum, s.ID)
	require.NoError(t, err)

	open := env.createTask(t, reporter, engine.TaskFields{Title: "open", SprintID: s.ID, Status: domain.StatusInProgress})
	review := env.createTask(t, reporter, engine.TaskFields{Title: "review", SprintID: s.ID, Status: domain.StatusReview})
	done := env.createTask(t, reporter, engine.TaskFields{Title: "done", SprintID: s.ID, Status: domain.StatusDone})
	elsewhere := env.createTask(t, reporter, engine.TaskFields{Title: "unplanned"})

	env.Clock.Advance(14 * 24 * time.Hour)
	s, err = env.Engine.CompleteSprint(env.Ctx, scrum, s.ID)
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	assert.True(t, s.IsCompleted)
	assert.Equal(t, "2024-01-15", *s.EndDate)

	for _, id := range []string{open.ID, review.ID} {
		got, err := env.Store.GetTask(env.Ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got.SprintID)
		assert.Equal(t, domain.StatusBacklog, got.Status)
		assert.Nil(t, got.CompletedAt)
		assert.Equal(t, 1, countAction(env.activity(t, id), domain.ActionSprintChanged))
	}
	kept, err := env.Store.GetTask(env.Ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, *kept.SprintID)
	assert.Equal(t, domain.StatusDone, kept.Status)
	untouched, err := env.Store.GetTask(env.Ctx, elsewhere.ID)
	require.NoError(t, err)
	assert.Equal(t, elsewhere.Version, untouched.Version)

	leftovers, err := env.Store.ListTasks(env.Ctx, repo.TaskFilter{SprintID: s.ID, ExcludeStatus: domain.StatusDone})
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	backlog, err := env.Engine.Backlog(env.Ctx, dev, env.Project.ID)
	require.NoError(t, err)
	assert.Len(t, backlog, 2)

	_, err = env.Engine.CompleteSprint(env.Ctx, scrum, s.ID)
	var ise domain.InvalidStateError
	require.True(t, errors.As(err, &ise))
	_, err = env.Engine.StartSprint(env.Ctx, scrum, s.ID)
	require.True(t, errors.As(err, &ise))

	// completed sprints accept no new tasks
	_, err = env.Engine.CreateTask(env.Ctx, reporter, env.Project.ID, engine.TaskFields{Title: "late", SprintID: s.ID})
	var ve domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestConcurrentStartSprint(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for i := 0; i < 6; i++ {
		s, err := env.Engine.CreateSprint(env.Ctx, scrum, env.Project.ID, engine.SprintFields{Name: "s"})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.Engine.StartSprint(env.Ctx, scrum, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	active, err := env.Store.ListSprints(env.Ctx, repo.SprintFilter{ProjectID: env.Project.ID, ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestStartTimerStopsPreviousTimer(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug"})

	a, err := env.Engine.StartTimer(env.Ctx, dev, engine.TimerFields{TaskID: task.ID})
	require.NoError(t, err)
	assert.True(t, a.IsRunning)
	assert.Len(t, env.events(t, task.ID, domain.EventStartedTimer), 1)

	env.Clock.Advance(25 * time.Minute)
	b, err := env.Engine.StartTimer(env.Ctx, dev, engine.TimerFields{Description: "meeting"})
	require.NoError(t, err)

	stoppedA, err := env.Store.GetTimeEntry(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, stoppedA.IsRunning)
	require.NotNil(t, stoppedA.EndTime)
	assert.Equal(t, env.Clock.Now(), *stoppedA.EndTime)
	assert.Equal(t, int64(25*60), stoppedA.DurationSeconds)
	stops := env.events(t, task.ID, domain.EventStoppedTimer)
	require.Len(t, stops, 1)
	assert.Equal(t, int64(25*60), *stops[0].DurationSeconds)

	running, err := env.Engine.ListTimeEntries(env.Ctx, dev, engine.TimeEntryQuery{RunningOnly: true})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, b.ID, running[0].ID)
}

func TestStopTimerTwiceIsInvalidState(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug"})
	entry, err := env.Engine.StartTimer(env.Ctx, dev, engine.TimerFields{TaskID: task.ID})
	require.NoError(t, err)

	env.Clock.Advance(90*time.Second + 700*time.Millisecond)
	stopped, err := env.Engine.StopTimer(env.Ctx, dev, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), stopped.DurationSeconds)
	assert.False(t, stopped.IsRunning)

	env.Clock.Advance(time.Hour)
	_, err = env.Engine.StopTimer(env.Ctx, dev, entry.ID)
	var ise domain.InvalidStateError
	require.True(t, errors.As(err, &ise), "got %v", err)

	again, err := env.Store.GetTimeEntry(env.Ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), again.DurationSeconds)
	assert.Len(t, env.events(t, task.ID, domain.EventStoppedTimer), 1)
}

func TestStopTimerOwnership(t *testing.T) {
	env := newTestEnv(t)
	entry, err := env.Engine.StartTimer(env.Ctx, dev, engine.TimerFields{})
	require.NoError(t, err)

	_, err = env.Engine.StopTimer(env.Ctx, peer, entry.ID)
	var ae domain.AuthorizationError
	require.True(t, errors.As(err, &ae))
	_, err = env.Engine.StopTimer(env.Ctx, scrum, entry.ID)
	require.True(t, errors.As(err, &ae), "scrum masters cannot stop other people's timers")
	_, err = env.Engine.StopTimer(env.Ctx, dev, "missing")
	var nf domain.NotFoundError
	require.True(t, errors.As(err, &nf))

	// timers without a task emit nothing
	_, err = env.Engine.StopTimer(env.Ctx, dev, entry.ID)
	require.NoError(t, err)
	evs, err := env.Store.ListEvents(env.Ctx, repo.EventFilter{ActorID: dev.ID})
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestStartTimerValidation(t *testing.T) {
	env := newTestEnv(t)
	future := env.Clock.Now().Add(time.Hour)
	_, err := env.Engine.StartTimer(env.Ctx, dev, engine.TimerFields{StartTime: &future})
	var ve domain.ValidationError
	require.True(t, errors.As(err, &ve))

	task := env.createTask(t, reporter, engine.TaskFields{Title: "secret"})
	_, err = env.Engine.StartTimer(env.Ctx, outsider, engine.TimerFields{TaskID: task.ID})
	var nf domain.NotFoundError
	require.True(t, errors.As(err, &nf))

	past := env.Clock.Now().Add(-30 * time.Minute)
	entry, err := env.Engine.StartTimer(env.Ctx, dev, engine.TimerFields{StartTime: &past})
	require.NoError(t, err)
	stopped, err := env.Engine.StopTimer(env.Ctx, dev, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), stopped.DurationSeconds)
}

func TestConcurrentStartTimerKeepsOneRunning(t *testing.T) {
	env := newTestEnv(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.StartTimer(env.Ctx, dev, engine.TimerFields{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	running, err := env.Store.ListTimeEntries(env.Ctx, repo.TimeEntryFilter{UserID: dev.ID, RunningOnly: true})
	require.NoError(t, err)
	assert.Len(t, running, 1)
	all, err := env.Store.ListTimeEntries(env.Ctx, repo.TimeEntryFilter{UserID: dev.ID})
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestStartTimerAcrossLockDomains(t *testing.T) {
	env := newTestEnv(t)
	// two engines with separate in-process lockers behave like two processes
	other := env.Engine
	other.Locks = lock.NewMemory(5 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		eng := env.Engine
		if i%2 == 1 {
			eng = other
		}
		go func(eng engine.Engine) {
			defer wg.Done()
			_, err := eng.StartTimer(env.Ctx, dev, engine.TimerFields{})
			if err != nil {
				var ce domain.ConflictError
				assert.True(t, errors.As(err, &ce), "unexpected error %v", err)
			}
		}(eng)
	}
	wg.Wait()
	running, err := env.Store.ListTimeEntries(env.Ctx, repo.TimeEntryFilter{UserID: dev.ID, RunningOnly: true})
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

func TestNotificationsReadFlow(t *testing.T) {
	env := newTestEnv(t)
	t1 := env.createTask(t, reporter, engine.TaskFields{Title: "one", AssigneeID: dev.ID})
	env.createTask(t, reporter, engine.TaskFields{Title: "two", AssigneeID: dev.ID})

	ns, err := env.Engine.ListNotifications(env.Ctx, dev, engine.NotificationQuery{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, "You have been assigned to task: two", ns[0].Message)

	_, err = env.Engine.MarkNotificationRead(env.Ctx, peer, ns[1].ID)
	var nf domain.NotFoundError
	require.True(t, errors.As(err, &nf))

	n, err := env.Engine.MarkNotificationRead(env.Ctx, dev, ns[1].ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)
	assert.Equal(t, t1.ID, *n.TaskID)
	_, err = env.Engine.MarkNotificationRead(env.Ctx, dev, ns[1].ID)
	require.NoError(t, err)

	count, err := env.Engine.MarkAllNotificationsRead(env.Ctx, dev)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	ns, err = env.Engine.ListNotifications(env.Ctx, dev, engine.NotificationQuery{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, ns)
}

func TestRecordBehaviorAcceptsClientKindsOnly(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug"})

	ev, err := env.Engine.RecordBehavior(env.Ctx, peer, engine.BehaviorFields{Kind: domain.EventTaskOpened, TaskID: task.ID})
	require.NoError(t, err)
	assert.Equal(t, env.Project.ID, *ev.ProjectID)

	_, err = env.Engine.RecordBehavior(env.Ctx, peer, engine.BehaviorFields{Kind: domain.EventTaskCompleted, TaskID: task.ID})
	var ve domain.ValidationError
	require.True(t, errors.As(err, &ve))

	mine, err := env.Engine.ListBehavioralEvents(env.Ctx, peer, engine.EventQuery{ActorID: reporter.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1, "employees only see their own events")
	assert.Equal(t, domain.EventTaskOpened, mine[0].Kind)

	all, err := env.Engine.ListBehavioralEvents(env.Ctx, scrum, engine.EventQuery{TaskID: task.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestProjectCreationRules(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, dev, engine.ProjectFields{Key: "API", Name: "API"})
	var ae domain.AuthorizationError
	require.True(t, errors.As(err, &ae))

	_, err = env.Engine.CreateProject(env.Ctx, scrum, engine.ProjectFields{Key: "WEB", Name: "dup"})
	var ve domain.ValidationError
	require.True(t, errors.As(err, &ve))
	_, err = env.Engine.CreateProject(env.Ctx, scrum, engine.ProjectFields{Key: "TOOLONGKEY1", Name: "x"})
	require.True(t, errors.As(err, &ve))

	assert.Equal(t, "WEB", env.Project.Key)
	projects, err := env.Engine.ListProjects(env.Ctx, dev)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
	projects, err = env.Engine.ListProjects(env.Ctx, outsider)
	require.NoError(t, err)
	assert.Empty(t, projects)

	_, err = env.Engine.AddProjectMember(env.Ctx, dev, env.Project.ID, outsider.ID, domain.MemberMember)
	require.True(t, errors.As(err, &ae))
}
