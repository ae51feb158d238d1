package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var zeroDay = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Describe returns a human readable summary of p.
func Describe(p Params) string {
	switch v := p.(type) {
	case OnWake:
		return "Once on waking"
	case IntervalFromWake:
		return "Every " + strconv.FormatFloat(v.IntervalHours, 'f', -1, 64) + " hours after waking"
	case MidDay:
		return "Once mid-day"
	case NightWake:
		return "Once if waking at night"
	case MonthlyInjection:
		if v.Months == 1 {
			return "Injection every month"
		}
		return fmt.Sprintf("Injection every %d months", v.Months)
	case Fixed:
		if len(v.Times) == 0 {
			return "Fixed schedule (no times set)"
		}
		formatted := make([]string, 0, len(v.Times))
		for _, t := range v.Times {
			c, err := ParseClock(t)
			if err != nil {
				formatted = append(formatted, t)
				continue
			}
			formatted = append(formatted, FormatTime(c.On(zeroDay)))
		}
		return "Daily at: " + strings.Join(formatted, ", ")
	case PRN:
		return "As needed (PRN)"
	case nil:
		return "No schedule set"
	}
	return "Unknown schedule type"
}
