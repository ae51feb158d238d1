package scheduler

import (
	"context"
	"fmt"

	"github.com/pdtracker/pdtracker/internal/gateway"
)

// deliverFollowups nags about doses that look missed. A follow-up that fails to send
// is retried on the next tick.
func (r *Runner) deliverFollowups(ctx context.Context, rep *TickReport) {
	overdue, err := r.Ledger.OverdueReminders(ctx, rep.At, r.FollowupWindow)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Errorf("overdue reminders: %w", err))
	}
	for _, rem := range overdue {
		if ctx.Err() != nil {
			return
		}
		msg := gateway.FollowupMessage(doseOf(rem))
		if r.send(ctx, rem, msg) {
			if _, err := r.Ledger.MarkFollowupSent(ctx, rem.ID); err != nil {
				rep.Errors = append(rep.Errors, fmt.Errorf("mark follow-up %d sent: %w", rem.ID, err))
			}
			rep.Followups++
		} else {
			rep.FollowupsFailed++
		}
	}
}
