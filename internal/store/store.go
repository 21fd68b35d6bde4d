// Package store persists reminders, user preferences and the
// collaborator data (activity, tasks, quiz attempts) the scheduling
// rules read. The reminder table is the single point of coordination
// between the scheduler, the dispatcher and the API.
package store

import (
	"context"
	"time"

	"github.com/studyloop/reminder-service/internal/models"
)

// Store is the storage contract consumed by the scheduler, dispatcher
// and HTTP handlers.
type Store interface {
	// Reminders.
	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetReminder(ctx context.Context, id string) (*models.Reminder, error)
	ListReminders(ctx context.Context, userID string, status models.Status) ([]models.Reminder, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error)
	// ClaimSent performs the guarded pending→sent transition and
	// reports whether this caller won the claim.
	ClaimSent(ctx context.Context, id string, now time.Time) (bool, error)
	MarkEmailSent(ctx context.Context, id string, now time.Time) error
	// SaveLifecycle persists status and read_at after an in-memory
	// transition (read, dismiss).
	SaveLifecycle(ctx context.Context, r *models.Reminder) error
	DismissAll(ctx context.Context, userID string, now time.Time) (int64, error)
	// ListRecentByType returns reminders of one type created at or
	// after since, newest first. Used by the once-per-day checks.
	ListRecentByType(ctx context.Context, userID string, t models.ReminderType, since time.Time) ([]models.Reminder, error)
	PurgeDismissed(ctx context.Context, olderThan time.Time) (int64, error)

	// Users.
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
	// ListReminderUsers returns onboarded users with reminders enabled.
	ListReminderUsers(ctx context.Context) ([]models.User, error)
	// SetInferredWindow writes an inferred window, skipping users who
	// chose one explicitly.
	SetInferredWindow(ctx context.Context, userID string, w models.Window) error

	// Collaborator data.
	AddActivity(ctx context.Context, e *models.ActivityEvent) error
	ListActivitySince(ctx context.Context, userID string, since time.Time) ([]models.ActivityEvent, error)
	AddTask(ctx context.Context, id, userID, title, dueDate string) error
	CompleteTask(ctx context.Context, id string) error
	CountOpenTasks(ctx context.Context, userID, dueDate string) (int, error)
	AddQuizAttempt(ctx context.Context, a *models.QuizAttempt) error
	LatestQuizAttempt(ctx context.Context, userID string) (*models.QuizAttempt, error)

	Close() error
}
