package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/pdtracker/pdtracker/internal/schedule"
)

// Dose is what the message templates need to know about one occurrence.
type Dose struct {
	ReminderID int64
	Name       string
	Dosage     string
	Scheduled  time.Time
}

// ReminderMessage renders the reminder sent shortly before a dose.
func ReminderMessage(d Dose) Message {
	name := d.Name
	if d.Dosage != "" {
		name = fmt.Sprintf("%s (%s)", d.Name, d.Dosage)
	}
	return Message{
		Kind:       "reminder",
		Subject:    "Medication reminder: " + d.Name,
		Content:    fmt.Sprintf("Time to take: %s [Scheduled: %s]", name, schedule.FormatTime(d.Scheduled)),
		ReminderID: d.ReminderID,
	}
}

// FollowupMessage renders the nudge sent after a dose appears to have been missed.
func FollowupMessage(d Dose) Message {
	return Message{
		Kind:       "followup",
		Subject:    "Missed dose? " + d.Name,
		Content:    fmt.Sprintf("Did you take your %s? It was scheduled for %s.", d.Name, schedule.FormatTime(d.Scheduled)),
		ReminderID: d.ReminderID,
	}
}

// TestMessage is sent by the test-notify command.
func TestMessage(now time.Time) Message {
	return Message{
		Kind:    "test",
		Subject: "PD Tracker test notification",
		Content: "PD Tracker test sent at " + schedule.FormatTime(now) + ". Your reminders are working!",
	}
}

// UpcomingMessage lists the doses still ahead today.
func UpcomingMessage(doses []Dose) Message {
	var b strings.Builder
	if len(doses) == 0 {
		b.WriteString("No more doses scheduled today.")
	} else {
		b.WriteString("Upcoming doses:")
		for _, d := range doses {
			b.WriteString("\n")
			b.WriteString(schedule.FormatTime(d.Scheduled))
			b.WriteString(" - ")
			b.WriteString(d.Name)
			if d.Dosage != "" {
				b.WriteString(" (" + d.Dosage + ")")
			}
		}
	}
	return Message{Kind: "summary", Subject: "Upcoming doses", Content: b.String()}
}
