package models

import (
	"errors"
	"time"
)

// Sentinel errors shared across store, handlers and scheduler.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrDismissed      = errors.New("reminder already dismissed")
	ErrBadTransition  = errors.New("illegal status transition")
	ErrUnknownType    = errors.New("unknown reminder type")
	ErrUnknownChannel = errors.New("unknown reminder channel")
)

// ReminderType is the closed set of reminder kinds the engine schedules.
type ReminderType string

const (
	TypeDailyNudge      ReminderType = "daily_nudge"
	TypeStreakRisk      ReminderType = "streak_risk"
	TypeLifeRefill      ReminderType = "life_refill"
	TypeTasksPending    ReminderType = "tasks_pending"
	TypeStreakMilestone ReminderType = "streak_milestone"
	TypeStreakEncourage ReminderType = "streak_break_encouragement"
)

// TypeMeta carries the per-type presentation data used when rendering
// a reminder for delivery (icon, in-app destination, email subject).
type TypeMeta struct {
	Icon         string
	ActionRoute  string
	EmailSubject string
}

var typeMeta = map[ReminderType]TypeMeta{
	TypeDailyNudge:      {Icon: "book-open", ActionRoute: "/study/today", EmailSubject: "Time for today's study session"},
	TypeStreakRisk:      {Icon: "flame", ActionRoute: "/study/today", EmailSubject: "Your streak is at risk"},
	TypeLifeRefill:      {Icon: "heart", ActionRoute: "/quiz/retry", EmailSubject: "Your lives are back — try again"},
	TypeTasksPending:    {Icon: "clipboard-list", ActionRoute: "/tasks", EmailSubject: "You have tasks waiting"},
	TypeStreakMilestone: {Icon: "trophy", ActionRoute: "/progress", EmailSubject: "Streak milestone reached!"},
	TypeStreakEncourage: {Icon: "sunrise", ActionRoute: "/study/today", EmailSubject: "Every streak starts at day one"},
}

// Meta returns the presentation metadata for a reminder type.
func (t ReminderType) Meta() (TypeMeta, error) {
	m, ok := typeMeta[t]
	if !ok {
		return TypeMeta{}, ErrUnknownType
	}
	return m, nil
}

// Valid reports whether t is a known reminder type.
func (t ReminderType) Valid() bool {
	_, ok := typeMeta[t]
	return ok
}

// Channel selects the delivery surfaces for a reminder.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelBoth  Channel = "both"
)

// IncludesEmail reports whether the channel requires email delivery.
func (c Channel) IncludesEmail() bool {
	return c == ChannelEmail || c == ChannelBoth
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelBoth:
		return true
	}
	return false
}

// Status is the reminder lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusRead      Status = "read"
	StatusDismissed Status = "dismissed"
)

// Reminder is one scheduled or delivered notification instance.
type Reminder struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Type        ReminderType   `json:"type"`
	Channel     Channel        `json:"channel"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Payload     map[string]any `json:"payload,omitempty"`
	SendAt      time.Time      `json:"send_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	Status      Status         `json:"status"`
	EmailSent   bool           `json:"email_sent"`
	EmailSentAt *time.Time     `json:"email_sent_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Due reports whether the reminder should be flushed by a sweep at now.
func (r *Reminder) Due(now time.Time) bool {
	return r.Status == StatusPending && !r.SendAt.After(now)
}

// MarkSent advances pending → sent. Any other starting state is an
// illegal transition.
func (r *Reminder) MarkSent(now time.Time) error {
	if r.Status != StatusPending {
		return ErrBadTransition
	}
	r.Status = StatusSent
	t := now
	r.SentAt = &t
	return nil
}

// MarkRead advances pending/sent → read. Reading an already-read
// reminder is a no-op; reading a dismissed one is an error. There is
// no way back to unread.
func (r *Reminder) MarkRead(now time.Time) error {
	switch r.Status {
	case StatusPending, StatusSent:
		r.Status = StatusRead
		t := now
		r.ReadAt = &t
		return nil
	case StatusRead:
		return nil
	default:
		return ErrDismissed
	}
}

// Dismiss moves any non-dismissed state to dismissed. Dismissing twice
// is a no-op; dismissed is terminal.
func (r *Reminder) Dismiss() {
	r.Status = StatusDismissed
}

// Active reports whether the reminder still counts against the
// one-per-type-per-day rule (dismissed rows do not).
func (r *Reminder) Active() bool {
	return r.Status != StatusDismissed
}

// Window is the coarse time-of-day bucket used to pick a locally
// relevant send hour for daily reminders.
type Window string

const (
	WindowMorning   Window = "morning"
	WindowAfternoon Window = "afternoon"
	WindowEvening   Window = "evening"
	WindowNight     Window = "night"
)

// User carries the reminder-relevant slice of the user record.
type User struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Timezone         string `json:"timezone"`
	RemindersEnabled bool   `json:"reminders_enabled"`
	EmailOptIn       bool   `json:"email_opt_in"`
	ReminderWindow   Window `json:"reminder_window,omitempty"`
	WindowExplicit   bool   `json:"window_explicit"`
	StudyStreak      int    `json:"study_streak"`
	LastStudyDate    string `json:"last_study_date,omitempty"` // logical date, YYYY-MM-DD
	Onboarded        bool   `json:"onboarded"`
}

// Location resolves the user's IANA timezone, falling back to UTC.
func (u *User) Location() *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil || u.Timezone == "" {
		return time.UTC
	}
	return loc
}

// ActivityEvent is one qualifying study action (app open, session
// completed) used for window inference and studied-today checks.
type ActivityEvent struct {
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// QuizAttempt is the most recent quiz outcome for the life-refill rule.
type QuizAttempt struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Percentage  float64   `json:"percentage"`
	Passed      bool      `json:"passed"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// EmailJob is the message published to the email queue for a reminder
// whose channel includes email. It is fully rendered; the worker only
// delivers it.
type EmailJob struct {
	ReminderID    string    `json:"reminder_id"`
	UserID        string    `json:"user_id"`
	To            string    `json:"to"`
	Subject       string    `json:"subject"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Icon          string    `json:"icon"`
	ActionURL     string    `json:"action_url"`
	StreakCount   int       `json:"streak_count"`
	CorrelationID string    `json:"correlation_id"`
	QueuedAt      time.Time `json:"queued_at"`
}

// APIResponse is the uniform HTTP envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// CreateReminderRequest is the internal endpoint payload for reminder
// types produced by external behavior analysis.
type CreateReminderRequest struct {
	UserID  string         `json:"user_id" binding:"required"`
	Type    ReminderType   `json:"type" binding:"required"`
	Channel Channel        `json:"channel" binding:"required"`
	Title   string         `json:"title" binding:"required"`
	Message string         `json:"message" binding:"required"`
	Payload map[string]any `json:"payload"`
	SendAt  *time.Time     `json:"send_at"`
}
