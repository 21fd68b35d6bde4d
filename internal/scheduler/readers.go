package scheduler

import (
	"context"
	"time"

	"github.com/studyloop/reminder-service/internal/models"
	"github.com/studyloop/reminder-service/internal/store"
	"github.com/studyloop/reminder-service/internal/timeutil"
)

// ActivityReader answers the two questions the rules ask about study
// activity: did the user study today, and when are they usually active.
type ActivityReader interface {
	StudiedToday(ctx context.Context, u *models.User, now time.Time) (bool, error)
	// HourHistogram buckets the user's activity since the given time by
	// local hour of day.
	HourHistogram(ctx context.Context, u *models.User, since time.Time) (map[int]int, error)
}

// QuizReader exposes the most recent quiz outcome for the life-refill
// rule.
type QuizReader interface {
	LatestAttempt(ctx context.Context, userID string) (*models.QuizAttempt, error)
}

// TaskReader counts a user's incomplete study tasks for a logical day.
type TaskReader interface {
	OpenTasks(ctx context.Context, userID, logicalDay string) (int, error)
}

// storeActivityReader serves activity questions from the store's
// activity log.
type storeActivityReader struct{ st store.Store }

// NewActivityReader returns an ActivityReader backed by the store.
func NewActivityReader(st store.Store) ActivityReader {
	return &storeActivityReader{st: st}
}

func (r *storeActivityReader) StudiedToday(ctx context.Context, u *models.User, now time.Time) (bool, error) {
	loc := u.Location()
	// 28h covers the night-owl grace on either side of midnight.
	events, err := r.st.ListActivitySince(ctx, u.ID, now.Add(-28*time.Hour))
	if err != nil {
		return false, err
	}
	for _, e := range events {
		if timeutil.SameLogicalDay(e.OccurredAt, now, loc) {
			return true, nil
		}
	}
	return false, nil
}

func (r *storeActivityReader) HourHistogram(ctx context.Context, u *models.User, since time.Time) (map[int]int, error) {
	loc := u.Location()
	events, err := r.st.ListActivitySince(ctx, u.ID, since)
	if err != nil {
		return nil, err
	}
	hist := make(map[int]int, 24)
	for _, e := range events {
		hist[e.OccurredAt.In(loc).Hour()]++
	}
	return hist, nil
}

type storeQuizReader struct{ st store.Store }

// NewQuizReader returns a QuizReader backed by the store.
func NewQuizReader(st store.Store) QuizReader {
	return &storeQuizReader{st: st}
}

func (r *storeQuizReader) LatestAttempt(ctx context.Context, userID string) (*models.QuizAttempt, error) {
	return r.st.LatestQuizAttempt(ctx, userID)
}

type storeTaskReader struct{ st store.Store }

// NewTaskReader returns a TaskReader backed by the store.
func NewTaskReader(st store.Store) TaskReader {
	return &storeTaskReader{st: st}
}

func (r *storeTaskReader) OpenTasks(ctx context.Context, userID, logicalDay string) (int, error) {
	return r.st.CountOpenTasks(ctx, userID, logicalDay)
}
