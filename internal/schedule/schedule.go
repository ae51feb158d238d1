// Package schedule defines the medication schedule policies. Each kind is its own
// Params variant carrying only the parameters it needs, so a schedule whose
// parameters do not match its kind cannot be constructed or decoded.
package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidScheduleParameters is returned when parameters do not fit their kind.
var ErrInvalidScheduleParameters = errors.New("invalid schedule parameters")

// Kind is the persisted name of a schedule policy.
type Kind string

const (
	KindOnWake           Kind = "on_wake"
	KindIntervalFromWake Kind = "interval_from_wake"
	KindMidDay           Kind = "mid_day"
	KindNightWake        Kind = "night_wake"
	KindMonthlyInjection Kind = "monthly_injection"
	KindFixed            Kind = "fixed"
	KindPRN              Kind = "prn"
)

// Kinds lists every kind with its short description, in display order.
var Kinds = []struct {
	Kind        Kind
	Description string
}{
	{KindOnWake, "Take once on waking"},
	{KindIntervalFromWake, "Take every X hours after waking"},
	{KindMidDay, "Take once mid-day"},
	{KindNightWake, "Take if waking at night"},
	{KindMonthlyInjection, "Injection every X months"},
	{KindFixed, "Fixed daily times"},
	{KindPRN, "As needed (no reminders)"},
}

// ParseKind maps a persisted kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k.Kind) == s {
			return k.Kind, nil
		}
	}
	return "", fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidScheduleParameters, s)
}

// Params is implemented by exactly one struct per Kind.
type Params interface {
	Kind() Kind
	isParams()
}

// OnWake is a single dose taken on waking.
type OnWake struct{}

// IntervalFromWake repeats every IntervalHours starting at wake. Intervals longer
// than a day never repeat within one waking day.
type IntervalFromWake struct {
	IntervalHours float64 `json:"interval_hours" validate:"gt=0,lte=24,halfhour"`
}

// MidDay is a single dose a fixed offset after wake.
type MidDay struct{}

// NightWake is a single dose when the user wakes briefly during the night.
type NightWake struct{}

// MonthlyInjection is tracked by due date instead of daily reminders.
// LastTaken is a calendar date (YYYY-MM-DD), empty when never taken.
type MonthlyInjection struct {
	Months    int    `json:"months" validate:"gte=1"`
	LastTaken string `json:"last_taken,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Fixed doses happen at wall-clock times every day.
type Fixed struct {
	Times []string `json:"times" validate:"required,min=1,dive,hhmm"`
}

// PRN is taken as needed and never reminds.
type PRN struct{}

func (OnWake) Kind() Kind           { return KindOnWake }
func (IntervalFromWake) Kind() Kind { return KindIntervalFromWake }
func (MidDay) Kind() Kind           { return KindMidDay }
func (NightWake) Kind() Kind        { return KindNightWake }
func (MonthlyInjection) Kind() Kind { return KindMonthlyInjection }
func (Fixed) Kind() Kind            { return KindFixed }
func (PRN) Kind() Kind              { return KindPRN }

func (OnWake) isParams()           {}
func (IntervalFromWake) isParams() {}
func (MidDay) isParams()           {}
func (NightWake) isParams()        {}
func (MonthlyInjection) isParams() {}
func (Fixed) isParams()            {}
func (PRN) isParams()              {}

// Interval returns the repeat interval as a duration.
func (p IntervalFromWake) Interval() time.Duration {
	return time.Duration(p.IntervalHours * float64(time.Hour))
}

// Clocks parses Times. Params that passed Validate never fail here.
func (p Fixed) Clocks() ([]Clock, error) {
	out := make([]Clock, 0, len(p.Times))
	for _, s := range p.Times {
		c, err := ParseClock(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// LastTakenDate returns the parsed LastTaken date in loc.
func (p MonthlyInjection) LastTakenDate(loc *time.Location) (time.Time, bool, error) {
	if p.LastTaken == "" {
		return time.Time{}, false, nil
	}
	d, err := time.ParseInLocation(DateLayout, p.LastTaken, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: last_taken %q", ErrInvalidScheduleParameters, p.LastTaken)
	}
	return d, true, nil
}

// DateLayout is the on-disk format of calendar dates inside parameter blobs.
const DateLayout = "2006-01-02"

// Encode validates p and returns its JSON parameter blob.
func Encode(p Params) ([]byte, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Decode builds the Params variant for kind from a stored blob. Unknown fields, a
// blob of the wrong shape, or values that fail validation are rejected.
func Decode(kind Kind, blob []byte) (Params, error) {
	var p Params
	switch kind {
	case KindOnWake:
		p = &OnWake{}
	case KindIntervalFromWake:
		p = &IntervalFromWake{}
	case KindMidDay:
		p = &MidDay{}
	case KindNightWake:
		p = &NightWake{}
	case KindMonthlyInjection:
		p = &MonthlyInjection{}
	case KindFixed:
		p = &Fixed{}
	case KindPRN:
		p = &PRN{}
	default:
		return nil, fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidScheduleParameters, kind)
	}

	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidScheduleParameters, kind, err)
		}
	}

	v := deref(p)
	if err := Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

func deref(p Params) Params {
	switch v := p.(type) {
	case *OnWake:
		return *v
	case *IntervalFromWake:
		return *v
	case *MidDay:
		return *v
	case *NightWake:
		return *v
	case *MonthlyInjection:
		return *v
	case *Fixed:
		return *v
	case *PRN:
		return *v
	}
	return p
}
