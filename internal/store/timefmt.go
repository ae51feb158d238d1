package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPersistedTime is returned when a stored timestamp cannot be parsed.
var ErrMalformedPersistedTime = errors.New("malformed persisted time")

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts the space separated form written by older tools.
func parseTime(column, s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Local(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s %q", ErrMalformedPersistedTime, column, s)
}
