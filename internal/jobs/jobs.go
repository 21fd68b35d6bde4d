// Package jobs wires the periodic entry points onto a cron runner:
// flush due reminders, run the scheduling pass, infer windows, purge
// old dismissed rows and reset the daily email counters.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/studyloop/reminder-service/internal/counter"
	"github.com/studyloop/reminder-service/internal/dispatch"
	"github.com/studyloop/reminder-service/internal/scheduler"
	"github.com/studyloop/reminder-service/internal/store"
)

const jobTimeout = 5 * time.Minute

// Runner owns the cron schedule for the reminder engine.
type Runner struct {
	c         *cron.Cron
	sched     *scheduler.Service
	disp      *dispatch.Dispatcher
	st        store.Store
	counters  *counter.Counter
	retention time.Duration
	log       *zap.Logger
}

// New registers the periodic jobs. counters may be nil when redis is
// not wired.
func New(sched *scheduler.Service, disp *dispatch.Dispatcher, st store.Store, counters *counter.Counter, retention time.Duration, log *zap.Logger) (*Runner, error) {
	r := &Runner{
		c:         cron.New(),
		sched:     sched,
		disp:      disp,
		st:        st,
		counters:  counters,
		retention: retention,
		log:       log,
	}

	specs := []struct {
		spec string
		name string
		run  func(ctx context.Context) error
	}{
		{"@every 1m", "flush due reminders", r.flush},
		{"5 * * * *", "scheduling pass", r.schedule},
		{"30 2 * * *", "window inference", r.inferWindows},
		{"0 4 * * *", "retention purge", r.purge},
		{"10 4 * * *", "counter reset", r.resetCounters},
	}
	for _, s := range specs {
		s := s
		if _, err := r.c.AddFunc(s.spec, func() { r.invoke(s.name, s.run) }); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Start begins the cron loop in its own goroutine.
func (r *Runner) Start() { r.c.Start() }

// Stop halts the cron loop and waits for running jobs.
func (r *Runner) Stop() {
	<-r.c.Stop().Done()
}

func (r *Runner) invoke(name string, run func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := run(ctx); err != nil {
		r.log.Error("cron job failed", zap.String("job", name), zap.Error(err))
	}
}

func (r *Runner) flush(ctx context.Context) error {
	n, err := r.disp.Sweep(ctx, time.Now())
	if err != nil {
		return err
	}
	r.log.Debug("sweep complete", zap.Int("flushed", n))
	return nil
}

func (r *Runner) schedule(ctx context.Context) error {
	n, err := r.sched.RunSchedulingPass(ctx, time.Now())
	if err != nil {
		return err
	}
	r.log.Debug("scheduling pass complete", zap.Int("created", n))
	return nil
}

func (r *Runner) inferWindows(ctx context.Context) error {
	n, err := r.sched.InferWindows(ctx, time.Now())
	if err != nil {
		return err
	}
	r.log.Info("window inference complete", zap.Int("updated", n))
	return nil
}

func (r *Runner) purge(ctx context.Context) error {
	cutoff := time.Now().Add(-r.retention)
	n, err := r.st.PurgeDismissed(ctx, cutoff)
	if err != nil {
		return err
	}
	r.log.Info("retention purge complete", zap.Int64("deleted", n))
	return nil
}

func (r *Runner) resetCounters(ctx context.Context) error {
	if r.counters == nil {
		return nil
	}
	n, err := r.counters.ResetAll(ctx)
	if err != nil {
		return err
	}
	r.log.Info("email counters reset", zap.Int64("removed", n))
	return nil
}
