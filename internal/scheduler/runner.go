package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pdtracker/pdtracker/internal/gateway"
	"github.com/pdtracker/pdtracker/internal/lock"
	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/store"
)

// Notifier delivers rendered messages.
type Notifier interface {
	Send(ctx context.Context, msg gateway.Message) (gateway.Result, error)
}

// AttemptRecorder keeps an audit trail of delivery attempts.
type AttemptRecorder interface {
	Record(ctx context.Context, reminderID int64, kind string, success bool, detail string) error
}

// TickReport summarizes one pass of the delivery loop.
type TickReport struct {
	At              time.Time
	Asleep          bool // nothing was sent because the user is asleep
	Locked          bool // another process held the delivery lock
	Unlocked        bool // the lock backend was unreachable; delivered without it
	Sent            int
	Failed          int
	Followups       int
	FollowupsFailed int
	Errors          []error
}

// Runner polls the ledger and delivers due reminders and follow-ups.
type Runner struct {
	Events   *EventLog
	Ledger   *Ledger
	Notifier Notifier
	Attempts AttemptRecorder // optional
	Lock     lock.Locker     // optional
	Interval time.Duration
	// FollowupWindow is how long after a dose its follow-up waits.
	FollowupWindow time.Duration
	Now            func() time.Time
	Log            logging.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewRunner(events *EventLog, ledger *Ledger, notifier Notifier, policy Policy, log logging.Logger) *Runner {
	return &Runner{
		Events:         events,
		Ledger:         ledger,
		Notifier:       notifier,
		Interval:       policy.CheckInterval,
		FollowupWindow: policy.FollowupWindow,
		Now:            time.Now,
		Log:            log,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start begins the background delivery loop.
func (r *Runner) Start() {
	go func() {
		_ = r.Run(context.Background())
	}()
}

// Stop halts the loop between ticks and waits for it to exit. Call it only after
// Start or while Run is running.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// Run ticks immediately and then every Interval until ctx is canceled or Stop is called.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	if r.Interval <= 0 {
		r.Interval = DefaultPolicy().CheckInterval
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.Log.Infof("started, checking every %s", r.Interval)
	r.safeTick(ctx)
	for {
		select {
		case <-ticker.C:
			r.safeTick(ctx)
		case <-ctx.Done():
			r.Log.Info("stopped")
			return ctx.Err()
		case <-r.stop:
			r.Log.Info("stopped")
			return nil
		}
	}
}

func (r *Runner) safeTick(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.Log.Errorf("tick panicked: %v", p)
		}
	}()
	rep, err := r.Tick(ctx)
	if err != nil {
		r.Log.Errorf("tick failed: %v", err)
		return
	}
	for _, e := range rep.Errors {
		r.Log.Warnf("tick: %v", e)
	}
	if rep.Sent+rep.Failed+rep.Followups+rep.FollowupsFailed > 0 {
		r.Log.Infof("tick: sent %d, failed %d, follow-ups %d, follow-ups failed %d",
			rep.Sent, rep.Failed, rep.Followups, rep.FollowupsFailed)
	}
}

// Tick runs one delivery pass: nothing while asleep, otherwise due reminders and then
// follow-ups. A failed send leaves its reminder for the next tick.
func (r *Runner) Tick(ctx context.Context) (TickReport, error) {
	return r.locked(ctx, func(ctx context.Context, rep *TickReport) error {
		awake, err := r.Events.IsAwake(ctx)
		if err != nil {
			return fmt.Errorf("awake state: %w", err)
		}
		if !awake {
			rep.Asleep = true
			return nil
		}
		r.deliverDue(ctx, rep)
		r.deliverFollowups(ctx, rep)
		return nil
	})
}

// Flush delivers due reminders regardless of the awake state. Used right after a
// night wake, when no wake event is logged.
func (r *Runner) Flush(ctx context.Context) (TickReport, error) {
	return r.locked(ctx, func(ctx context.Context, rep *TickReport) error {
		r.deliverDue(ctx, rep)
		return nil
	})
}

func (r *Runner) locked(ctx context.Context, fn func(context.Context, *TickReport) error) (TickReport, error) {
	rep := TickReport{At: r.Now()}
	if r.Lock == nil {
		return rep, fn(ctx, &rep)
	}
	err := r.Lock.WithLock(ctx, "delivery", func(ctx context.Context) error {
		return fn(ctx, &rep)
	})
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		rep.Locked = true
		return rep, nil
	case errors.Is(err, lock.ErrUnavailable):
		// A Redis outage must not stop reminders.
		r.Log.Warnf("%v; delivering without the lock", err)
		rep.Unlocked = true
		return rep, fn(ctx, &rep)
	}
	return rep, err
}

func (r *Runner) deliverDue(ctx context.Context, rep *TickReport) {
	due, err := r.Ledger.DueReminders(ctx, rep.At)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Errorf("due reminders: %w", err))
	}
	for _, rem := range due {
		if ctx.Err() != nil {
			return
		}
		msg := gateway.ReminderMessage(doseOf(rem))
		if r.send(ctx, rem, msg) {
			if _, err := r.Ledger.MarkSent(ctx, rem.ID); err != nil {
				rep.Errors = append(rep.Errors, fmt.Errorf("mark reminder %d sent: %w", rem.ID, err))
			}
			rep.Sent++
		} else {
			rep.Failed++
		}
	}
}

func (r *Runner) send(ctx context.Context, rem store.Reminder, msg gateway.Message) bool {
	res, err := r.Notifier.Send(ctx, msg)
	detail := res.ID
	if err != nil {
		detail = err.Error()
		r.Log.Warnf("%s for %s (reminder %d) not delivered: %v", msg.Kind, rem.MedicationName, rem.ID, err)
	} else {
		r.Log.Infof("%s sent: %s", msg.Kind, msg.Content)
	}
	if r.Attempts != nil {
		if rerr := r.Attempts.Record(ctx, rem.ID, msg.Kind, err == nil, detail); rerr != nil {
			r.Log.Warnf("record attempt for reminder %d: %v", rem.ID, rerr)
		}
	}
	return err == nil
}

func doseOf(r store.Reminder) gateway.Dose {
	return gateway.Dose{
		ReminderID: r.ID,
		Name:       r.MedicationName,
		Dosage:     r.Dosage,
		Scheduled:  r.ScheduledTime,
	}
}
