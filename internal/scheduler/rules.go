// Package scheduler holds the per-type eligibility rules that decide
// whether a new reminder should be created for a user today, and the
// batch passes (scheduling, window inference) the cron jobs invoke.
//
// A rule declining to schedule is a normal negative outcome, not an
// error: rules return (nil, nil) and the batch moves on.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyloop/reminder-service/internal/models"
	"github.com/studyloop/reminder-service/internal/store"
	"github.com/studyloop/reminder-service/internal/timeutil"
)

// endOfDayHour is the earliest local hour a streak-risk warning fires
// at, regardless of the user's window.
const endOfDayHour = 19

// Config carries the scheduling knobs.
type Config struct {
	LifeRefillWait      time.Duration // delay after a failed quiz
	PassingThreshold    float64       // quiz percentage below which a refill nudge fires
	MinInferenceSamples int           // activity events required before inferring a window
	InferenceLookback   time.Duration // how far back inference reads activity
}

// Service evaluates eligibility rules and runs the periodic batches.
type Service struct {
	st       store.Store
	activity ActivityReader
	quiz     QuizReader
	tasks    TaskReader
	cfg      Config
	log      *zap.Logger
}

// New wires a scheduler service over the store and collaborator readers.
func New(st store.Store, activity ActivityReader, quiz QuizReader, tasks TaskReader, cfg Config, log *zap.Logger) *Service {
	if cfg.LifeRefillWait <= 0 {
		cfg.LifeRefillWait = 30 * time.Minute
	}
	if cfg.PassingThreshold <= 0 {
		cfg.PassingThreshold = 70
	}
	if cfg.MinInferenceSamples <= 0 {
		cfg.MinInferenceSamples = 5
	}
	if cfg.InferenceLookback <= 0 {
		cfg.InferenceLookback = 30 * 24 * time.Hour
	}
	return &Service{st: st, activity: activity, quiz: quiz, tasks: tasks, cfg: cfg, log: log}
}

// alreadyScheduledToday reports whether a non-dismissed reminder of the
// given type was created within the user's current logical day. This is
// the read-before-write dedup check every once-per-day rule shares.
func (s *Service) alreadyScheduledToday(ctx context.Context, userID string, t models.ReminderType, now time.Time, loc *time.Location) (bool, error) {
	recent, err := s.st.ListRecentByType(ctx, userID, t, now.Add(-48*time.Hour))
	if err != nil {
		return false, err
	}
	for i := range recent {
		r := &recent[i]
		if r.Active() && timeutil.SameLogicalDay(r.CreatedAt, now, loc) {
			return true, nil
		}
	}
	return false, nil
}

func channelFor(u *models.User) models.Channel {
	if u.EmailOptIn {
		return models.ChannelBoth
	}
	return models.ChannelInApp
}

func (s *Service) create(ctx context.Context, u *models.User, t models.ReminderType, title, message string, payload map[string]any, sendAt, now time.Time) (*models.Reminder, error) {
	r := &models.Reminder{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		Type:      t,
		Channel:   channelFor(u),
		Title:     title,
		Message:   message,
		Payload:   payload,
		SendAt:    sendAt.UTC(),
		Status:    models.StatusPending,
		CreatedAt: now.UTC(),
	}
	if err := s.st.CreateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("create %s reminder: %w", t, err)
	}
	s.log.Info("reminder scheduled",
		zap.String("user_id", u.ID),
		zap.String("type", string(t)),
		zap.Time("send_at", r.SendAt),
	)
	return r, nil
}

// ScheduleDailyNudge creates today's study nudge at the user's window
// hour, unless they already studied or were already nudged today.
func (s *Service) ScheduleDailyNudge(ctx context.Context, u *models.User, now time.Time) (*models.Reminder, error) {
	if !u.RemindersEnabled {
		return nil, nil
	}
	loc := u.Location()

	studied, err := s.activity.StudiedToday(ctx, u, now)
	if err != nil {
		return nil, err
	}
	if studied {
		return nil, nil
	}
	if dup, err := s.alreadyScheduledToday(ctx, u.ID, models.TypeDailyNudge, now, loc); err != nil || dup {
		return nil, err
	}

	window := u.ReminderWindow
	if window == "" {
		window = models.WindowEvening
	}
	sendAt := timeutil.SendAtForWindow(now, window, loc)
	return s.create(ctx, u, models.TypeDailyNudge,
		"Keep your learning going",
		"You haven't studied yet today. A short session keeps you on track.",
		nil, sendAt, now)
}

// ScheduleStreakRisk warns a user with an active streak who has not
// studied today, close to end of day. At most one per logical day.
func (s *Service) ScheduleStreakRisk(ctx context.Context, u *models.User, now time.Time) (*models.Reminder, error) {
	if !u.RemindersEnabled || u.StudyStreak <= 0 {
		return nil, nil
	}
	loc := u.Location()

	studied, err := s.activity.StudiedToday(ctx, u, now)
	if err != nil {
		return nil, err
	}
	if studied {
		return nil, nil
	}
	if dup, err := s.alreadyScheduledToday(ctx, u.ID, models.TypeStreakRisk, now, loc); err != nil || dup {
		return nil, err
	}

	window := u.ReminderWindow
	if window == "" {
		window = models.WindowEvening
	}
	hour := timeutil.SendHour(window)
	if hour < endOfDayHour {
		hour = endOfDayHour
	}
	sendAt := timeutil.AtHour(now, hour, loc)
	if sendAt.Before(now) {
		sendAt = now
	}

	return s.create(ctx, u, models.TypeStreakRisk,
		fmt.Sprintf("Your %d-day streak is at risk", u.StudyStreak),
		"Study today to keep your streak alive.",
		map[string]any{"streak": u.StudyStreak},
		sendAt, now)
}

// ScheduleTasksPending nudges a user with incomplete study tasks due
// today. First write wins: a later call the same day with a different
// count does not create another row.
func (s *Service) ScheduleTasksPending(ctx context.Context, u *models.User, now time.Time) (*models.Reminder, error) {
	if !u.RemindersEnabled {
		return nil, nil
	}
	loc := u.Location()

	count, err := s.tasks.OpenTasks(ctx, u.ID, timeutil.LogicalDate(now, loc))
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, nil
	}
	if dup, err := s.alreadyScheduledToday(ctx, u.ID, models.TypeTasksPending, now, loc); err != nil || dup {
		return nil, err
	}

	noun := "tasks"
	if count == 1 {
		noun = "task"
	}
	return s.create(ctx, u, models.TypeTasksPending,
		"Tasks waiting for you",
		fmt.Sprintf("You have %d open study %s for today.", count, noun),
		map[string]any{"count": count},
		now, now)
}

// ScheduleLifeRefill nudges a retry after a failed quiz, delayed by the
// life-refill cooldown. At most one per logical day; a reminder created
// at or after the failing attempt also suppresses rescheduling, even
// when dismissed.
func (s *Service) ScheduleLifeRefill(ctx context.Context, u *models.User, now time.Time) (*models.Reminder, error) {
	if !u.RemindersEnabled {
		return nil, nil
	}

	attempt, err := s.quiz.LatestAttempt(ctx, u.ID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if attempt.Passed || attempt.Percentage >= s.cfg.PassingThreshold {
		return nil, nil
	}
	// Stale failures don't get a nudge.
	if now.Sub(attempt.AttemptedAt) > 24*time.Hour {
		return nil, nil
	}

	if dup, err := s.alreadyScheduledToday(ctx, u.ID, models.TypeLifeRefill, now, u.Location()); err != nil || dup {
		return nil, err
	}
	recent, err := s.st.ListRecentByType(ctx, u.ID, models.TypeLifeRefill, attempt.AttemptedAt)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		return nil, nil
	}

	sendAt := attempt.AttemptedAt.Add(s.cfg.LifeRefillWait)
	if sendAt.Before(now) {
		sendAt = now
	}
	return s.create(ctx, u, models.TypeLifeRefill,
		"Your lives are refilled",
		"Ready for another attempt? Jump back into the quiz.",
		map[string]any{"attempt_id": attempt.ID},
		sendAt, now)
}

// ScheduleCustom creates a reminder for the externally-analyzed types
// (streak milestones, streak-break encouragement). The once-per-day
// invariant still applies; a same-day duplicate returns (nil, nil).
func (s *Service) ScheduleCustom(ctx context.Context, req *models.CreateReminderRequest, now time.Time) (*models.Reminder, error) {
	if !req.Type.Valid() {
		return nil, models.ErrUnknownType
	}
	if !req.Channel.Valid() {
		return nil, models.ErrUnknownChannel
	}
	u, err := s.st.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	loc := u.Location()
	if dup, err := s.alreadyScheduledToday(ctx, u.ID, req.Type, now, loc); err != nil || dup {
		return nil, err
	}

	sendAt := now
	if req.SendAt != nil {
		sendAt = *req.SendAt
	}
	r := &models.Reminder{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		Type:      req.Type,
		Channel:   req.Channel,
		Title:     req.Title,
		Message:   req.Message,
		Payload:   req.Payload,
		SendAt:    sendAt.UTC(),
		Status:    models.StatusPending,
		CreatedAt: now.UTC(),
	}
	if err := s.st.CreateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("create %s reminder: %w", req.Type, err)
	}
	return r, nil
}

// RunSchedulingPass evaluates every rule for every reminder-enabled
// user and returns how many reminders were created. Per-user failures
// are logged and do not stop the pass.
func (s *Service) RunSchedulingPass(ctx context.Context, now time.Time) (int, error) {
	users, err := s.st.ListReminderUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	rules := []func(context.Context, *models.User, time.Time) (*models.Reminder, error){
		s.ScheduleDailyNudge,
		s.ScheduleStreakRisk,
		s.ScheduleTasksPending,
		s.ScheduleLifeRefill,
	}

	created := 0
	for i := range users {
		u := &users[i]
		for _, rule := range rules {
			r, err := rule(ctx, u, now)
			if err != nil {
				s.log.Error("scheduling rule failed",
					zap.String("user_id", u.ID), zap.Error(err))
				continue
			}
			if r != nil {
				created++
			}
		}
	}
	return created, nil
}
