package localstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"workboard/internal/schedule"
)

const durationsBucket = "durations/"

// Durations maps item ids to a display duration in minutes.
type Durations struct {
	s *Store
}

func (s *Store) Durations() *Durations { return &Durations{s: s} }

func durationKey(itemID string) string { return durationsBucket + itemID }

// Get returns the stored duration and whether one exists.
func (d *Durations) Get(itemID string) (int, bool) {
	val, ok, err := d.s.read(durationKey(itemID))
	if err != nil || !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(val)))
	if err != nil {
		return 0, false
	}
	return schedule.ClampDuration(n), true
}

// Minutes returns the stored duration or the 60 minute default.
func (d *Durations) Minutes(itemID string) int {
	if n, ok := d.Get(itemID); ok {
		return n
	}
	return schedule.DefaultDuration
}

// Set stores minutes after clamping to [15, 480] and snapping to 15, and
// returns the value stored.
func (d *Durations) Set(itemID string, minutes int) (int, error) {
	if itemID == "" {
		return 0, fmt.Errorf("localstore: item id required")
	}
	n := schedule.ClampDuration(minutes)
	if err := d.s.write(durationKey(itemID), []byte(strconv.Itoa(n))); err != nil {
		return 0, fmt.Errorf("localstore: set duration %s: %w", itemID, err)
	}
	return n, nil
}

// Rename moves a stored duration to a new id, e.g. when a temporary id is
// replaced by the server's.
func (d *Durations) Rename(oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	n, ok := d.Get(oldID)
	if !ok {
		return nil
	}
	if _, err := d.Set(newID, n); err != nil {
		return err
	}
	return d.Delete(oldID)
}

func (d *Durations) Delete(itemID string) error {
	if err := d.s.erase(durationKey(itemID)); err != nil {
		return fmt.Errorf("localstore: delete duration %s: %w", itemID, err)
	}
	return nil
}

// Entry is one stored duration.
type Entry struct {
	ItemID  string `json:"item_id"`
	Minutes int    `json:"minutes"`
}

// All lists stored durations ordered by item id.
func (d *Durations) All(ctx context.Context) []Entry {
	var out []Entry
	for _, key := range d.s.keys(ctx, durationsBucket) {
		id := strings.TrimPrefix(key, durationsBucket)
		if n, ok := d.Get(id); ok {
			out = append(out, Entry{ItemID: id, Minutes: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}
