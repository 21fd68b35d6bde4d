// Package dispatch implements the due-reminder sweep: flush pending
// reminders whose send time has passed and hand email delivery off to
// the queue. In-app delivery is the status change itself; email is
// best-effort.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyloop/reminder-service/internal/models"
	"github.com/studyloop/reminder-service/internal/store"
)

// Publisher enqueues a rendered reminder email for the worker.
type Publisher interface {
	PublishEmail(ctx context.Context, message any) error
}

// EmailCounter tracks per-user emails queued today.
type EmailCounter interface {
	IncrEmail(ctx context.Context, userID string, now time.Time) (int64, error)
}

// Dispatcher sweeps due reminders.
type Dispatcher struct {
	st      store.Store
	pub     Publisher
	counter EmailCounter
	log     *zap.Logger
	batch   int
}

// New builds a dispatcher. batch caps how many reminders one sweep
// processes; <=0 selects a default of 500.
func New(st store.Store, pub Publisher, counter EmailCounter, log *zap.Logger, batch int) *Dispatcher {
	if batch <= 0 {
		batch = 500
	}
	return &Dispatcher{st: st, pub: pub, counter: counter, log: log, batch: batch}
}

// Sweep flushes every due reminder and returns the number flushed.
// Each reminder is processed independently: a claim lost to a
// concurrent sweep is skipped, an email publish failure is logged and
// the reminder still counts as sent.
func (d *Dispatcher) Sweep(ctx context.Context, now time.Time) (int, error) {
	due, err := d.st.ListDue(ctx, now, d.batch)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	flushed := 0
	for i := range due {
		r := &due[i]
		claimed, err := d.st.ClaimSent(ctx, r.ID, now)
		if err != nil {
			d.log.Error("claim failed", zap.String("reminder_id", r.ID), zap.Error(err))
			continue
		}
		if !claimed {
			// Another sweep got here first.
			continue
		}
		flushed++

		if r.Channel.IncludesEmail() {
			d.queueEmail(ctx, r, now)
		}
	}

	if flushed > 0 {
		d.log.Info("reminders flushed", zap.Int("count", flushed))
	}
	return flushed, nil
}

// queueEmail renders and publishes the email job for a sent reminder.
// Failures never propagate: the reminder stays sent with
// email_sent=false for follow-up.
func (d *Dispatcher) queueEmail(ctx context.Context, r *models.Reminder, now time.Time) {
	u, err := d.st.GetUser(ctx, r.UserID)
	if err != nil {
		d.log.Warn("email skipped, user lookup failed",
			zap.String("reminder_id", r.ID), zap.Error(err))
		return
	}
	if !u.EmailOptIn {
		return
	}

	job, err := RenderEmail(r, u, now)
	if err != nil {
		d.log.Warn("email skipped, render failed",
			zap.String("reminder_id", r.ID), zap.Error(err))
		return
	}
	if err := d.pub.PublishEmail(ctx, job); err != nil {
		d.log.Warn("email publish failed",
			zap.String("reminder_id", r.ID), zap.Error(err))
		return
	}
	if d.counter != nil {
		if _, err := d.counter.IncrEmail(ctx, u.ID, now); err != nil {
			d.log.Warn("email counter failed",
				zap.String("user_id", u.ID), zap.Error(err))
		}
	}
}

// RenderEmail assembles the fully rendered email job for a reminder.
func RenderEmail(r *models.Reminder, u *models.User, now time.Time) (*models.EmailJob, error) {
	meta, err := r.Type.Meta()
	if err != nil {
		return nil, err
	}
	return &models.EmailJob{
		ReminderID:    r.ID,
		UserID:        u.ID,
		To:            u.Email,
		Subject:       meta.EmailSubject,
		Title:         r.Title,
		Message:       r.Message,
		Icon:          meta.Icon,
		ActionURL:     meta.ActionRoute,
		StreakCount:   payloadInt(r.Payload, "streak"),
		CorrelationID: uuid.New().String(),
		QueuedAt:      now.UTC(),
	}, nil
}

// payloadInt reads an int out of a JSON payload, where numbers may have
// round-tripped to float64.
func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
