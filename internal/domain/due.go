package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	localTimeLayout = "2006-01-02T15:04:05"
)

// Due is a due timestamp that is either a calendar date or a full instant.
//
// Date-only values are stored as local midnight without an offset marker
// ("2024-03-10T00:00:00") so readers east of UTC never see the date move back
// a day. Timed values are stored as RFC 3339 instants.
type Due struct {
	Time     time.Time
	DateOnly bool
}

// DateOnlyDue returns a date-only value for the calendar date of t as seen in t's location.
func DateOnlyDue(t time.Time) Due {
	y, m, d := t.Date()
	return Due{Time: time.Date(y, m, d, 0, 0, 0, 0, t.Location()), DateOnly: true}
}

// TimedDue returns a due value carrying a specific time of day.
func TimedDue(t time.Time) Due {
	return Due{Time: t}
}

// String encodes the value using the storage convention.
func (d Due) String() string {
	if d.DateOnly {
		return d.Time.Format(dateLayout) + "T00:00:00"
	}
	return d.Time.Format(time.RFC3339)
}

// Date returns the calendar date the value is displayed on in loc.
// Date-only values ignore loc: their date is fixed.
func (d Due) Date(loc *time.Location) (int, time.Month, int) {
	if d.DateOnly {
		return d.Time.Date()
	}
	if loc == nil {
		loc = time.Local
	}
	return d.Time.In(loc).Date()
}

// MinuteOfDay returns minutes since local midnight, or false for date-only values.
func (d Due) MinuteOfDay(loc *time.Location) (int, bool) {
	if d.DateOnly {
		return 0, false
	}
	if loc == nil {
		loc = time.Local
	}
	t := d.Time.In(loc)
	return t.Hour()*60 + t.Minute(), true
}

// SameDay reports whether the value falls on the calendar date of day in loc.
func (d Due) SameDay(day time.Time, loc *time.Location) bool {
	y1, m1, d1 := d.Date(loc)
	if loc == nil {
		loc = time.Local
	}
	y2, m2, d2 := day.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ParseDue decodes a stored due value. Values without an offset are read in loc;
// a bare date or a value at exactly midnight without offset is date-only.
func ParseDue(s string, loc *time.Location) (Due, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return Due{Time: t, DateOnly: true}, nil
	}
	if t, err := time.ParseInLocation(localTimeLayout, s, loc); err == nil {
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return Due{Time: t, DateOnly: true}, nil
		}
		return Due{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Due{}, fmt.Errorf("invalid due %q: %w", s, err)
	}
	return Due{Time: t}, nil
}

func (d Due) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Due) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDue(s, time.Local)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
