package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyloop/reminder-service/internal/models"
)

func addActivityAtHours(t *testing.T, svc *Service, userID string, base time.Time, hours []int) {
	t.Helper()
	for i, h := range hours {
		e := &models.ActivityEvent{
			UserID:     userID,
			Kind:       "app_opened",
			OccurredAt: time.Date(base.Year(), base.Month(), base.Day()+i, h, 0, 0, 0, base.Location()),
		}
		require.NoError(t, svc.st.AddActivity(context.Background(), e))
	}
}

func TestInferWindow_PicksModalBucket(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	u := seedUser(t, st, &models.User{
		ID: "u1", Timezone: "UTC", RemindersEnabled: true, Onboarded: true,
	})

	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	base := now.Add(-10 * 24 * time.Hour)
	// Mostly evening activity, a little in the morning.
	addActivityAtHours(t, svc, "u1", base, []int{19, 20, 19, 9, 18, 19})

	w, err := svc.InferWindow(ctx, u, now)
	require.NoError(t, err)
	assert.Equal(t, models.WindowEvening, w)
}

func TestInferWindow_SkipsSmallSampleAndExplicit(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

	sparse := seedUser(t, st, &models.User{
		ID: "sparse", Timezone: "UTC", RemindersEnabled: true, Onboarded: true,
	})
	addActivityAtHours(t, svc, "sparse", now.Add(-5*24*time.Hour), []int{10, 11})

	w, err := svc.InferWindow(ctx, sparse, now)
	require.NoError(t, err)
	assert.Equal(t, models.Window(""), w)

	explicit := seedUser(t, st, &models.User{
		ID: "explicit", Timezone: "UTC", RemindersEnabled: true, Onboarded: true,
		ReminderWindow: models.WindowMorning, WindowExplicit: true,
	})
	addActivityAtHours(t, svc, "explicit", now.Add(-10*24*time.Hour), []int{19, 19, 19, 19, 19, 19})

	w, err = svc.InferWindow(ctx, explicit, now)
	require.NoError(t, err)
	assert.Equal(t, models.Window(""), w)
}

func TestInferWindows_WritesBack(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("u%d", i)
		seedUser(t, st, &models.User{
			ID: id, Timezone: "UTC", RemindersEnabled: true, Onboarded: true,
		})
		addActivityAtHours(t, svc, id, now.Add(-10*24*time.Hour), []int{9, 10, 9, 9, 10, 9})
	}

	updated, err := svc.InferWindows(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	u, err := st.GetUser(ctx, "u0")
	require.NoError(t, err)
	assert.Equal(t, models.WindowMorning, u.ReminderWindow)
	assert.False(t, u.WindowExplicit)
}

func TestInferWindow_UsesLocalHours(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	u := seedUser(t, st, &models.User{
		ID: "tokyo", Timezone: "Asia/Tokyo", RemindersEnabled: true, Onboarded: true,
	})
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

	// 10:00 UTC is 19:00 in Tokyo: an evening user seen in UTC clocks.
	base := now.Add(-10 * 24 * time.Hour)
	addActivityAtHours(t, svc, "tokyo", base, []int{10, 10, 10, 10, 10})

	w, err := svc.InferWindow(ctx, u, now)
	require.NoError(t, err)
	assert.Equal(t, models.WindowEvening, w)
}
