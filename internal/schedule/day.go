package schedule

import (
	"time"

	"workboard/internal/domain"
)

// DurationSource returns the display duration of an item in minutes.
type DurationSource interface {
	Minutes(itemID string) int
}

// Preview is the pending position of an item being dragged or resized.
type Preview struct {
	ItemID   string    `json:"item_id"`
	Day      time.Time `json:"day"`
	Start    int       `json:"start"`
	Duration int       `json:"duration"`
}

// Entry is one rendered interval on the grid.
type Entry struct {
	ItemID    string    `json:"item_id"`
	Interval  Interval  `json:"interval"`
	Placement Placement `json:"placement"`
	Rect      Rect      `json:"rect"`
	Phantom   bool      `json:"phantom,omitempty"`
}

// Summary is a collapsed row of items outside the visible hours.
type Summary struct {
	Visible []string `json:"visible"`
	More    int      `json:"more"`
}

func (s Summary) Len() int { return len(s.Visible) + s.More }

// Day is the computed layout of one calendar day.
type Day struct {
	Date    time.Time `json:"date"`
	Entries []Entry   `json:"entries"`
	AllDay  []string  `json:"all_day,omitempty"`
	Earlier Summary   `json:"earlier"`
	Later   Summary   `json:"later"`
}

// LayoutDay places the items due on day. Date-only items go to the all-day row,
// timed items outside the grid's hours to the earlier/later rows (at most
// summaryCap listed each), and the rest are packed into columns. When preview is
// set, the previewed item is drawn at its pending position instead of its own.
func LayoutDay(day time.Time, items []domain.Item, durations DurationSource, preview *Preview, grid Grid, summaryCap int) Day {
	loc := day.Location()
	out := Day{Date: day}
	var earlier, later []string
	var intervals []Interval
	for _, it := range items {
		if it.Due == nil || !it.Due.SameDay(day, loc) {
			continue
		}
		if preview != nil && preview.ItemID == it.ID {
			continue
		}
		start, timed := it.Due.MinuteOfDay(loc)
		if !timed {
			out.AllDay = append(out.AllDay, it.ID)
			continue
		}
		switch {
		case grid.Before(start):
			earlier = append(earlier, it.ID)
			continue
		case grid.After(start):
			later = append(later, it.ID)
			continue
		}
		d := DefaultDuration
		if durations != nil {
			d = durations.Minutes(it.ID)
		}
		intervals = append(intervals, Interval{ID: it.ID, Start: start, End: start + d})
	}
	if preview != nil && sameDate(preview.Day, day) {
		intervals = append(intervals, Interval{ID: PhantomID, Start: preview.Start, End: preview.Start + preview.Duration})
	}

	placements := Pack(intervals)
	for _, iv := range intervals {
		p := placements[iv.ID]
		e := Entry{ItemID: iv.ID, Interval: iv, Placement: p, Rect: grid.Rect(iv, p)}
		if iv.ID == PhantomID {
			e.ItemID = preview.ItemID
			e.Interval.ID = preview.ItemID
			e.Phantom = true
		}
		out.Entries = append(out.Entries, e)
	}
	out.Earlier = summarize(earlier, summaryCap)
	out.Later = summarize(later, summaryCap)
	return out
}

func summarize(ids []string, limit int) Summary {
	if limit <= 0 || len(ids) <= limit {
		return Summary{Visible: ids}
	}
	return Summary{Visible: ids[:limit], More: len(ids) - limit}
}

func sameDate(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.In(a.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
