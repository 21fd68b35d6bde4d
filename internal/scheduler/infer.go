package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studyloop/reminder-service/internal/models"
	"github.com/studyloop/reminder-service/internal/timeutil"
)

// InferWindow computes the reminder window for one user from their
// activity histogram. Returns "" when the sample is too small or the
// user set a window explicitly.
func (s *Service) InferWindow(ctx context.Context, u *models.User, now time.Time) (models.Window, error) {
	if u.WindowExplicit {
		return "", nil
	}
	hist, err := s.activity.HourHistogram(ctx, u, now.Add(-s.cfg.InferenceLookback))
	if err != nil {
		return "", err
	}

	total := 0
	for _, n := range hist {
		total += n
	}
	if total < s.cfg.MinInferenceSamples {
		return "", nil
	}

	// Modal hour; ties resolve to the earliest hour for determinism.
	bestHour, bestCount := 0, -1
	for h := 0; h < 24; h++ {
		if hist[h] > bestCount {
			bestHour, bestCount = h, hist[h]
		}
	}
	return timeutil.BucketForHour(bestHour), nil
}

// InferWindows runs window inference over all reminder-enabled users
// and writes the result back for those without an explicit choice.
// Returns how many users were updated; per-user failures are logged
// and skipped.
func (s *Service) InferWindows(ctx context.Context, now time.Time) (int, error) {
	users, err := s.st.ListReminderUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	updated := 0
	for i := range users {
		u := &users[i]
		w, err := s.InferWindow(ctx, u, now)
		if err != nil {
			s.log.Error("window inference failed",
				zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		if w == "" {
			continue
		}
		if err := s.st.SetInferredWindow(ctx, u.ID, w); err != nil {
			s.log.Error("write inferred window failed",
				zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		updated++
	}
	return updated, nil
}
