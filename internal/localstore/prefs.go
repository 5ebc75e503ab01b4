package localstore

import (
	"encoding/json"
	"fmt"

	"workboard/internal/board"
	"workboard/internal/schedule"
)

const prefsKey = "prefs/view.json"

// Prefs are the per-namespace view settings shared by the board and calendar.
type Prefs struct {
	Dimension    board.Dimension `json:"dimension"`
	StartHour    int             `json:"start_hour"`
	EndHour      int             `json:"end_hour"`
	ShowWeekends bool            `json:"show_weekends"`
}

// DefaultPrefs are used for anything missing or invalid on disk.
var DefaultPrefs = Prefs{
	Dimension:    board.DimStatus,
	StartHour:    schedule.DefaultGrid.StartHour,
	EndHour:      schedule.DefaultGrid.EndHour,
	ShowWeekends: false,
}

// LoadPrefs reads stored preferences over defaults. Invalid stored values fall
// back to the corresponding default rather than failing startup.
func (s *Store) LoadPrefs(defaults Prefs) (Prefs, error) {
	p := defaults
	val, ok, err := s.read(prefsKey)
	if err != nil {
		return defaults, fmt.Errorf("localstore: read prefs: %w", err)
	}
	if !ok {
		return p, nil
	}
	if err := json.Unmarshal(val, &p); err != nil {
		return defaults, fmt.Errorf("localstore: decode prefs: %w", err)
	}
	if _, err := board.ParseDimension(string(p.Dimension)); err != nil {
		p.Dimension = defaults.Dimension
	}
	if p.Grid(schedule.DefaultGrid).Validate() != nil {
		p.StartHour, p.EndHour = defaults.StartHour, defaults.EndHour
	}
	return p, nil
}

// SavePrefs validates and writes p.
func (s *Store) SavePrefs(p Prefs) error {
	if _, err := board.ParseDimension(string(p.Dimension)); err != nil {
		return err
	}
	if err := p.Grid(schedule.DefaultGrid).Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.write(prefsKey, data); err != nil {
		return fmt.Errorf("localstore: write prefs: %w", err)
	}
	return nil
}

// Grid returns base with the visible hours replaced by the preference.
func (p Prefs) Grid(base schedule.Grid) schedule.Grid {
	base.StartHour = p.StartHour
	base.EndHour = p.EndHour
	return base
}
