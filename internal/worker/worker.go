// Package worker consumes queued reminder emails and delivers them
// over SMTP. Delivery is best-effort: a failed send is parked on the
// failed queue and never surfaces to the scheduler.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/studyloop/reminder-service/internal/mailer"
	"github.com/studyloop/reminder-service/internal/models"
	"github.com/studyloop/reminder-service/internal/queue"
	"github.com/studyloop/reminder-service/internal/store"
)

// Worker drains the email queue.
type Worker struct {
	st   store.Store
	mail *mailer.Mailer
	q    *queue.Client
	log  *zap.Logger
}

// New builds an email worker.
func New(st store.Store, mail *mailer.Mailer, q *queue.Client, log *zap.Logger) *Worker {
	return &Worker{st: st, mail: mail, q: q, log: log}
}

// Run consumes deliveries until ctx is canceled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.q.ConsumeEmail()
	if err != nil {
		return err
	}
	w.log.Info("email worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("email worker stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				w.log.Warn("delivery channel closed")
				return nil
			}

			var job models.EmailJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				w.log.Error("bad email job", zap.Error(err))
				w.park(ctx, d.Body)
				_ = d.Ack(false)
				continue
			}

			if err := w.mail.Send(&job); err != nil {
				w.log.Warn("email send failed",
					zap.String("reminder_id", job.ReminderID),
					zap.String("correlation_id", job.CorrelationID),
					zap.Error(err))
				w.park(ctx, d.Body)
				_ = d.Ack(false)
				continue
			}

			if err := w.st.MarkEmailSent(ctx, job.ReminderID, time.Now()); err != nil {
				// Email went out; only the flag is stale.
				w.log.Warn("mark email sent failed",
					zap.String("reminder_id", job.ReminderID), zap.Error(err))
			}
			w.log.Info("email delivered",
				zap.String("reminder_id", job.ReminderID),
				zap.String("to", job.To))
			_ = d.Ack(false)
		}
	}
}

// park moves an undeliverable message to the failed queue for manual
// follow-up.
func (w *Worker) park(ctx context.Context, body []byte) {
	if err := w.q.PublishFailed(ctx, json.RawMessage(body)); err != nil {
		w.log.Error("park on failed queue failed", zap.Error(err))
	}
}
