package scheduler

import (
	"sort"
	"time"

	"github.com/pdtracker/pdtracker/internal/schedule"
)

// Slot is one dose occurrence and the time its reminder fires.
type Slot struct {
	Scheduled time.Time
	Reminder  time.Time
}

// Occurrences expands params into the dose slots of one waking day. day supplies the
// calendar date for fixed clock times. The result is ordered by scheduled time and
// depends only on its arguments.
func Occurrences(p Policy, params schedule.Params, wake, day time.Time) []Slot {
	var out []Slot
	lead := func(s time.Time) Slot {
		r := s.Add(-p.ReminderLead)
		if r.After(s) {
			r = s
		}
		return Slot{Scheduled: s, Reminder: r}
	}

	switch v := params.(type) {
	case schedule.OnWake:
		out = append(out, Slot{Scheduled: wake, Reminder: wake})

	case schedule.IntervalFromWake:
		out = append(out, Slot{Scheduled: wake, Reminder: wake})
		step := v.Interval()
		if step <= 0 {
			break
		}
		for off := step; off <= p.WakeWindow; off += step {
			out = append(out, lead(wake.Add(off)))
		}

	case schedule.MidDay:
		out = append(out, lead(wake.Add(p.MidDayOffset)))

	case schedule.Fixed:
		clocks, err := v.Clocks()
		if err != nil {
			return nil
		}
		for _, c := range clocks {
			s := c.On(day)
			if !s.After(wake) {
				continue
			}
			out = append(out, lead(s))
		}

	// NightWake, MonthlyInjection and PRN have no daily occurrences.
	default:
		return nil
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Scheduled.Before(out[j].Scheduled) })
	return out
}
