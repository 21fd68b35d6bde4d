package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyloop/reminder-service/internal/models"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	st, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedUser(t *testing.T, st *SQLite, id string) *models.User {
	t.Helper()
	u := &models.User{
		ID:               id,
		Email:            id + "@example.com",
		Timezone:         "UTC",
		RemindersEnabled: true,
		Onboarded:        true,
	}
	require.NoError(t, st.UpsertUser(context.Background(), u))
	return u
}

func seedReminder(t *testing.T, st *SQLite, id, userID string, typ models.ReminderType, status models.Status, sendAt time.Time) *models.Reminder {
	t.Helper()
	r := &models.Reminder{
		ID:        id,
		UserID:    userID,
		Type:      typ,
		Channel:   models.ChannelInApp,
		Title:     "t",
		Message:   "m",
		SendAt:    sendAt,
		Status:    status,
		CreatedAt: sendAt,
	}
	require.NoError(t, st.CreateReminder(context.Background(), r))
	return r
}

func TestReminderRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "u1")

	sendAt := time.Date(2025, 6, 10, 19, 0, 0, 0, time.UTC)
	r := &models.Reminder{
		ID:      "r1",
		UserID:  "u1",
		Type:    models.TypeStreakRisk,
		Channel: models.ChannelBoth,
		Title:   "Your 4-day streak is at risk",
		Message: "Study today to keep your streak alive.",
		Payload: map[string]any{"streak": 4},
		SendAt:  sendAt,
		Status:  models.StatusPending,
	}
	require.NoError(t, st.CreateReminder(ctx, r))

	got, err := st.GetReminder(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.TypeStreakRisk, got.Type)
	assert.Equal(t, models.ChannelBoth, got.Channel)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, got.SendAt.Equal(sendAt))
	assert.EqualValues(t, 4, got.Payload["streak"])
	assert.False(t, got.EmailSent)
	assert.Nil(t, got.SentAt)
}

func TestGetReminder_NotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetReminder(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListDue_OnlyPastPending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "u1")

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	seedReminder(t, st, "past", "u1", models.TypeDailyNudge, models.StatusPending, now.Add(-5*time.Minute))
	seedReminder(t, st, "future", "u1", models.TypeStreakRisk, models.StatusPending, now.Add(time.Hour))
	seedReminder(t, st, "sent", "u1", models.TypeTasksPending, models.StatusSent, now.Add(-time.Hour))

	due, err := st.ListDue(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "past", due[0].ID)
}

func TestClaimSent_SecondClaimLoses(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	now := time.Now().UTC().Truncate(time.Second)
	seedReminder(t, st, "r1", "u1", models.TypeDailyNudge, models.StatusPending, now.Add(-time.Minute))

	ok, err := st.ClaimSent(ctx, "r1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.ClaimSent(ctx, "r1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := st.GetReminder(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(now))
}

func TestUnreadCount_And_SaveLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	now := time.Now().UTC().Truncate(time.Second)

	seedReminder(t, st, "a", "u1", models.TypeDailyNudge, models.StatusSent, now)
	seedReminder(t, st, "b", "u1", models.TypeStreakRisk, models.StatusSent, now)
	seedReminder(t, st, "c", "u1", models.TypeTasksPending, models.StatusPending, now)

	n, err := st.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r, err := st.GetReminder(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, r.MarkRead(now))
	require.NoError(t, st.SaveLifecycle(ctx, r))

	n, err = st.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetReminder(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got.Status)
	require.NotNil(t, got.ReadAt)
}

func TestDismissAll(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	seedUser(t, st, "u2")
	now := time.Now().UTC()

	seedReminder(t, st, "a", "u1", models.TypeDailyNudge, models.StatusPending, now)
	seedReminder(t, st, "b", "u1", models.TypeStreakRisk, models.StatusSent, now)
	seedReminder(t, st, "c", "u1", models.TypeTasksPending, models.StatusDismissed, now)
	seedReminder(t, st, "d", "u2", models.TypeDailyNudge, models.StatusSent, now)

	n, err := st.DismissAll(ctx, "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Other users are untouched.
	other, err := st.GetReminder(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, other.Status)

	// Idempotent.
	n, err = st.DismissAll(ctx, "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestListRecentByType(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	now := time.Now().UTC().Truncate(time.Second)

	seedReminder(t, st, "old", "u1", models.TypeDailyNudge, models.StatusSent, now.Add(-72*time.Hour))
	seedReminder(t, st, "recent", "u1", models.TypeDailyNudge, models.StatusPending, now.Add(-time.Hour))
	seedReminder(t, st, "othertype", "u1", models.TypeStreakRisk, models.StatusPending, now)

	rs, err := st.ListRecentByType(ctx, "u1", models.TypeDailyNudge, now.Add(-48*time.Hour))
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "recent", rs[0].ID)
}

func TestPurgeDismissed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	now := time.Now().UTC()

	seedReminder(t, st, "old-dismissed", "u1", models.TypeDailyNudge, models.StatusDismissed, now.Add(-40*24*time.Hour))
	seedReminder(t, st, "new-dismissed", "u1", models.TypeStreakRisk, models.StatusDismissed, now.Add(-time.Hour))
	seedReminder(t, st, "old-read", "u1", models.TypeTasksPending, models.StatusRead, now.Add(-40*24*time.Hour))

	n, err := st.PurgeDismissed(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = st.GetReminder(ctx, "old-dismissed")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = st.GetReminder(ctx, "old-read")
	assert.NoError(t, err)
}

func TestSetInferredWindow_RespectsExplicitChoice(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	implicit := seedUser(t, st, "implicit")
	explicit := &models.User{
		ID:               "explicit",
		Email:            "e@example.com",
		Timezone:         "UTC",
		RemindersEnabled: true,
		Onboarded:        true,
		ReminderWindow:   models.WindowMorning,
		WindowExplicit:   true,
	}
	require.NoError(t, st.UpsertUser(ctx, explicit))

	require.NoError(t, st.SetInferredWindow(ctx, implicit.ID, models.WindowEvening))
	require.NoError(t, st.SetInferredWindow(ctx, explicit.ID, models.WindowEvening))

	got, err := st.GetUser(ctx, "implicit")
	require.NoError(t, err)
	assert.Equal(t, models.WindowEvening, got.ReminderWindow)

	got, err = st.GetUser(ctx, "explicit")
	require.NoError(t, err)
	assert.Equal(t, models.WindowMorning, got.ReminderWindow)
}

func TestTasksAndQuizQueries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "u1")

	require.NoError(t, st.AddTask(ctx, "t1", "u1", "read chapter 3", "2025-06-10"))
	require.NoError(t, st.AddTask(ctx, "t2", "u1", "flashcards", "2025-06-10"))
	require.NoError(t, st.AddTask(ctx, "t3", "u1", "tomorrow", "2025-06-11"))
	require.NoError(t, st.CompleteTask(ctx, "t2"))

	n, err := st.CountOpenTasks(ctx, "u1", "2025-06-10")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = st.LatestQuizAttempt(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	early := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.AddQuizAttempt(ctx, &models.QuizAttempt{
		ID: "q1", UserID: "u1", Percentage: 90, Passed: true, AttemptedAt: early,
	}))
	require.NoError(t, st.AddQuizAttempt(ctx, &models.QuizAttempt{
		ID: "q2", UserID: "u1", Percentage: 50, Passed: false, AttemptedAt: early.Add(time.Hour),
	}))

	a, err := st.LatestQuizAttempt(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "q2", a.ID)
	assert.False(t, a.Passed)
}
