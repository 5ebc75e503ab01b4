package schedule

import (
	"math/rand"
	"testing"
	"time"

	"workboard/internal/domain"
)

func TestPackThreeIntervals(t *testing.T) {
	got := Pack([]Interval{
		{ID: "a", Start: 0, End: 60},
		{ID: "b", Start: 30, End: 90},
		{ID: "c", Start: 60, End: 120},
	})
	want := map[string]Placement{
		"a": {Column: 0, TotalColumns: 2},
		"b": {Column: 1, TotalColumns: 2},
		"c": {Column: 0, TotalColumns: 2},
	}
	for id, p := range want {
		if got[id] != p {
			t.Fatalf("%s: got %+v want %+v", id, got[id], p)
		}
	}
}

func TestPackNeverOverlapsWithinColumn(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := 1 + r.Intn(12)
		ivs := make([]Interval, n)
		for i := range ivs {
			start := r.Intn(24*4) * 15
			ivs[i] = Interval{ID: string(rune('a' + i)), Start: start, End: start + 15*(1+r.Intn(8))}
		}
		got := Pack(ivs)
		for i := range ivs {
			pi := got[ivs[i].ID]
			if pi.Column >= pi.TotalColumns {
				t.Fatalf("column %d outside total %d", pi.Column, pi.TotalColumns)
			}
			for j := range ivs {
				if i == j {
					continue
				}
				pj := got[ivs[j].ID]
				if ivs[i].Overlaps(ivs[j]) {
					if pi.Column == pj.Column {
						t.Fatalf("round %d: %+v and %+v share column %d", round, ivs[i], ivs[j], pi.Column)
					}
					if pi.TotalColumns <= pj.Column {
						t.Fatalf("round %d: %+v total %d does not cover sibling column %d", round, ivs[i], pi.TotalColumns, pj.Column)
					}
				}
			}
		}
	}
}

func TestPackIsolatedIntervalsAreFullWidth(t *testing.T) {
	got := Pack([]Interval{{ID: "a", Start: 0, End: 60}, {ID: "b", Start: 60, End: 120}})
	for id, p := range got {
		if p != (Placement{Column: 0, TotalColumns: 1}) {
			t.Fatalf("%s: %+v", id, p)
		}
	}
}

func TestClampDuration(t *testing.T) {
	cases := map[int]int{5: 15, 1000: 480, 47: 45, 52: 45, 53: 60, 15: 15, 480: 480, -30: 15}
	for in, want := range cases {
		if got := ClampDuration(in); got != want {
			t.Fatalf("ClampDuration(%d) = %d want %d", in, got, want)
		}
	}
}

func TestGeometry(t *testing.T) {
	g := Grid{StartHour: 8, EndHour: 18, HourHeight: 60, Gutter: 1}
	r := g.Rect(Interval{Start: 9*60 + 30, End: 10*60 + 30}, Placement{Column: 1, TotalColumns: 2})
	if r.Top != 90 || r.Height != 60 {
		t.Fatalf("vertical %+v", r)
	}
	if r.Left != 51 || r.Width != 48 {
		t.Fatalf("horizontal %+v", r)
	}
	short := g.Rect(Interval{Start: 8 * 60, End: 8*60 + 5}, Placement{TotalColumns: 1})
	if short.Height != 15 {
		t.Fatalf("minimum height %v", short.Height)
	}
}

func TestMinuteAtSnaps(t *testing.T) {
	g := Grid{StartHour: 8, EndHour: 18, HourHeight: 60}
	cases := map[float64]int{0: 480, 7: 480, 8: 495, 95: 570, -50: 480, 10000: 18*60 - 15}
	for y, want := range cases {
		if got := g.MinuteAt(y); got != want {
			t.Fatalf("MinuteAt(%v) = %d want %d", y, got, want)
		}
	}
}

func TestResizeGestureClamps(t *testing.T) {
	g := Grid{StartHour: 0, EndHour: 24, HourHeight: 60}
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		delta float64
		want  int
	}{
		{delta: -55, want: 15},
		{delta: 940, want: 480},
		{delta: -13, want: 45},
	}
	for _, tc := range cases {
		c := NewController(g)
		c.BeginResize("a", day, 600, 60, 100)
		if _, err := c.ResizeTo(100 + tc.delta); err != nil {
			t.Fatal(err)
		}
		id, got, err := c.EndResize(100 + tc.delta)
		if err != nil || id != "a" {
			t.Fatalf("end: %v %s", err, id)
		}
		if got != tc.want {
			t.Fatalf("delta %v: duration %d want %d", tc.delta, got, tc.want)
		}
	}
}

func TestClickSuppressedAfterGesture(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewController(DefaultGrid)
	c.Now = func() time.Time { return now }
	if c.SuppressClick() {
		t.Fatalf("click suppressed without a gesture")
	}
	c.BeginResize("a", now, 600, 60, 0)
	if _, _, err := c.EndResize(30); err != nil {
		t.Fatal(err)
	}
	if !c.SuppressClick() {
		t.Fatalf("click right after a resize should be suppressed")
	}
	now = now.Add(ClickSuppressWindow + time.Millisecond)
	if c.SuppressClick() {
		t.Fatalf("click after the window should open the item")
	}
}

func TestDropOnGridAndDay(t *testing.T) {
	plus5 := time.FixedZone("UTC+5", 5*60*60)
	g := Grid{StartHour: 8, EndHour: 18, HourHeight: 60}
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, plus5)

	c := NewController(g)
	c.BeginMove("a", day.AddDate(0, 0, -1), 600, 60)
	p, err := c.MoveTo(day, 95)
	if err != nil {
		t.Fatal(err)
	}
	if p.Start != 570 {
		t.Fatalf("preview start %d", p.Start)
	}
	id, due, err := c.DropOnGrid()
	if err != nil || id != "a" {
		t.Fatalf("drop: %v", err)
	}
	if due.DateOnly || due.String() != "2024-03-10T09:30:00+05:00" {
		t.Fatalf("grid drop stored %q", due.String())
	}

	c.BeginMove("a", day, 570, 60)
	_, due, err = c.DropOnDay(day)
	if err != nil {
		t.Fatal(err)
	}
	if !due.DateOnly || due.String() != "2024-03-10T00:00:00" {
		t.Fatalf("day drop stored %q", due.String())
	}
	if _, _, err := c.DropOnDay(day); err != ErrNoGesture {
		t.Fatalf("expected ErrNoGesture, got %v", err)
	}
}

type fixedDurations map[string]int

func (f fixedDurations) Minutes(id string) int {
	if m, ok := f[id]; ok {
		return m
	}
	return DefaultDuration
}

func at(day time.Time, h, m int) *domain.Due {
	d := domain.TimedDue(time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location()))
	return &d
}

func TestLayoutDay(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	g := Grid{StartHour: 8, EndHour: 18, HourHeight: 60}
	allDay := domain.DateOnlyDue(day)
	items := []domain.Item{
		{ID: "a", Due: at(day, 9, 0)},
		{ID: "b", Due: at(day, 9, 30)},
		{ID: "early1", Due: at(day, 6, 0)},
		{ID: "early2", Due: at(day, 7, 0)},
		{ID: "early3", Due: at(day, 7, 30)},
		{ID: "late", Due: at(day, 19, 0)},
		{ID: "allday", Due: &allDay},
		{ID: "other", Due: at(day.AddDate(0, 0, 1), 9, 0)},
		{ID: "nodue"},
	}
	out := LayoutDay(day, items, fixedDurations{"a": 30}, nil, g, 2)
	if len(out.Entries) != 2 {
		t.Fatalf("entries %+v", out.Entries)
	}
	for _, e := range out.Entries {
		if e.Placement.TotalColumns != 1 {
			t.Fatalf("a ends at 9:30 so nothing overlaps: %+v", e)
		}
	}
	if len(out.Earlier.Visible) != 2 || out.Earlier.More != 1 {
		t.Fatalf("earlier %+v", out.Earlier)
	}
	if len(out.Later.Visible) != 1 || out.Later.More != 0 {
		t.Fatalf("later %+v", out.Later)
	}
	if len(out.AllDay) != 1 || out.AllDay[0] != "allday" {
		t.Fatalf("all day %+v", out.AllDay)
	}
}

func TestPhantomMakesRoom(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	g := Grid{StartHour: 8, EndHour: 18, HourHeight: 60}
	items := []domain.Item{
		{ID: "a", Due: at(day, 9, 0)},
		{ID: "b", Due: at(day, 14, 0)},
	}
	preview := &Preview{ItemID: "b", Day: day, Start: 9*60 + 15, Duration: 60}
	out := LayoutDay(day, items, nil, preview, g, 3)
	if len(out.Entries) != 2 {
		t.Fatalf("entries %+v", out.Entries)
	}
	var phantom, sibling Entry
	for _, e := range out.Entries {
		if e.Phantom {
			phantom = e
		} else {
			sibling = e
		}
	}
	if phantom.ItemID != "b" || sibling.ItemID != "a" {
		t.Fatalf("entries %+v", out.Entries)
	}
	if sibling.Placement.TotalColumns != 2 || sibling.Rect.Width >= 100 {
		t.Fatalf("sibling should narrow for the preview: %+v", sibling)
	}
}

func TestWeekDays(t *testing.T) {
	wed := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)
	days := WeekDays(wed, false)
	if len(days) != 5 || days[0].Weekday() != time.Monday || days[0].Day() != 11 {
		t.Fatalf("days %v", days)
	}
	if all := WeekDays(wed, true); len(all) != 7 || all[6].Weekday() != time.Sunday {
		t.Fatalf("days %v", all)
	}
}
