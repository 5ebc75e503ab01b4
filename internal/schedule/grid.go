package schedule

import (
	"fmt"
	"math"
	"time"
)

// Grid describes the visible hour range and its vertical scale.
type Grid struct {
	StartHour  int
	EndHour    int
	HourHeight float64 // pixels per hour
	Gutter     float64 // percent inset on each side of a column
}

// DefaultGrid is the grid used when no preference exists.
var DefaultGrid = Grid{StartHour: 7, EndHour: 20, HourHeight: 48, Gutter: 1}

func (g Grid) Validate() error {
	if g.StartHour < 0 || g.EndHour > 24 || g.StartHour >= g.EndHour {
		return fmt.Errorf("invalid hour range %d-%d", g.StartHour, g.EndHour)
	}
	if g.HourHeight <= 0 {
		return fmt.Errorf("hour height must be positive")
	}
	return nil
}

// Rect is an item's geometry: Top and Height in pixels, Left and Width in percent.
type Rect struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
}

// Rect positions an interval in its column.
func (g Grid) Rect(iv Interval, p Placement) Rect {
	total := p.TotalColumns
	if total < 1 {
		total = 1
	}
	duration := iv.End - iv.Start
	height := math.Max(float64(duration)/60*g.HourHeight, float64(MinDuration)/60*g.HourHeight)
	width := 100/float64(total) - 2*g.Gutter
	if width < 0 {
		width = 0
	}
	return Rect{
		Top:    (float64(iv.Start)/60 - float64(g.StartHour)) * g.HourHeight,
		Height: height,
		Left:   float64(p.Column)/float64(total)*100 + g.Gutter,
		Width:  width,
	}
}

// MinuteAt converts a vertical offset inside the day column to a snapped minute of
// day, kept inside the visible range so a drop always lands on the grid.
func (g Grid) MinuteAt(offsetY float64) int {
	raw := offsetY/g.HourHeight*60 + float64(g.StartHour*60)
	m := Snap(int(math.Round(raw)))
	lo, hi := g.StartHour*60, g.EndHour*60-SnapMinutes
	if m < lo {
		return lo
	}
	if m > hi {
		return hi
	}
	return m
}

// MinutesFor converts a vertical pointer delta into minutes.
func (g Grid) MinutesFor(deltaY float64) int {
	return int(math.Round(deltaY / g.HourHeight * 60))
}

// Before reports whether minute is above the visible range.
func (g Grid) Before(minute int) bool { return minute < g.StartHour*60 }

// After reports whether minute is below the visible range.
func (g Grid) After(minute int) bool { return minute >= g.EndHour*60 }

// WeekDays returns the days of the week containing anchor, Monday first,
// at midnight in anchor's location.
func WeekDays(anchor time.Time, showWeekends bool) []time.Time {
	y, m, d := anchor.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, anchor.Location())
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)
	n := 7
	if !showWeekends {
		n = 5
	}
	out := make([]time.Time, n)
	for i := range out {
		out[i] = monday.AddDate(0, 0, i)
	}
	return out
}
