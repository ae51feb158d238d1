package scheduler

import "time"

// Policy holds the timing constants of reminder materialization and delivery.
type Policy struct {
	ReminderLead   time.Duration // how long before a dose its reminder fires
	WakeWindow     time.Duration // interval doses stop this long after waking
	MidDayOffset   time.Duration // mid-day dose offset from waking
	FollowupWindow time.Duration // grace period after a dose before the follow-up
	DoseTolerance  time.Duration // a logged dose this close to the scheduled time counts
	CheckInterval  time.Duration // delivery loop period
}

// DefaultPolicy returns the stock timings.
func DefaultPolicy() Policy {
	return Policy{
		ReminderLead:   5 * time.Minute,
		WakeWindow:     18 * time.Hour,
		MidDayOffset:   6 * time.Hour,
		FollowupWindow: 15 * time.Minute,
		DoseTolerance:  30 * time.Minute,
		CheckInterval:  60 * time.Second,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
