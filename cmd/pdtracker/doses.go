package main

import (
	"github.com/pdtracker/pdtracker/internal/gateway"
	"github.com/pdtracker/pdtracker/internal/store"
)

func dosesOf(rs []store.Reminder) []gateway.Dose {
	out := make([]gateway.Dose, 0, len(rs))
	for _, r := range rs {
		out = append(out, gateway.Dose{ReminderID: r.ID, Name: r.MedicationName, Dosage: r.Dosage, Scheduled: r.ScheduledTime})
	}
	return out
}
