// Package schedule lays timed items out on a day grid and turns pointer
// gestures into new due times and durations.
package schedule

import (
	"math"
	"sort"
)

const (
	SnapMinutes     = 15
	MinDuration     = 15
	MaxDuration     = 480
	DefaultDuration = 60
)

// PhantomID identifies the preview interval of an active drag or resize.
const PhantomID = "__preview__"

// Interval is an item's span in minutes since midnight, end exclusive.
type Interval struct {
	ID    string `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start < o.End && o.Start < iv.End
}

// Placement is the visual column of an interval and how many columns share its span.
type Placement struct {
	Column       int `json:"column"`
	TotalColumns int `json:"total_columns"`
}

// Pack assigns each interval the lowest column free at its start, opening a new
// column when none is. TotalColumns is one more than the highest column among
// the intervals overlapping it, so widths follow the local crowding.
func Pack(intervals []Interval) map[string]Placement {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.End <= iv.Start {
			iv.End = iv.Start + MinDuration
		}
		sorted = append(sorted, iv)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var columnEnds []int
	column := make([]int, len(sorted))
	for i, iv := range sorted {
		placed := -1
		for c, end := range columnEnds {
			if end <= iv.Start {
				placed = c
				break
			}
		}
		if placed < 0 {
			placed = len(columnEnds)
			columnEnds = append(columnEnds, iv.End)
		} else {
			columnEnds[placed] = iv.End
		}
		column[i] = placed
	}

	out := make(map[string]Placement, len(sorted))
	for i, iv := range sorted {
		maxCol := column[i]
		for j, other := range sorted {
			if i != j && iv.Overlaps(other) && column[j] > maxCol {
				maxCol = column[j]
			}
		}
		out[iv.ID] = Placement{Column: column[i], TotalColumns: maxCol + 1}
	}
	return out
}

// Snap rounds minutes to the nearest 15-minute step.
func Snap(minutes int) int {
	return int(math.Round(float64(minutes)/SnapMinutes)) * SnapMinutes
}

// ClampDuration bounds a duration to [15, 480] minutes on the 15-minute grid.
func ClampDuration(minutes int) int {
	if minutes < MinDuration {
		minutes = MinDuration
	}
	if minutes > MaxDuration {
		minutes = MaxDuration
	}
	return Snap(minutes)
}
