package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"workboard/internal/board"
	"workboard/internal/config"
	"workboard/internal/domain"
	"workboard/internal/entity"
	"workboard/internal/localstore"
	"workboard/internal/save"
	"workboard/internal/schedule"
)

// Options configure a Session. Config and Remote are required.
type Options struct {
	Config   *config.Config
	Remote   save.Remote
	Notifier save.Notifier
	Labeler  board.Labeler
	Logger   *log.Logger
}

// Session is the client engine shared by the list, board and calendar surfaces:
// one local store, one save coordinator, and the view state around them.
type Session struct {
	Config      *config.Config
	Store       *entity.Store
	Coordinator *save.Coordinator
	Board       *board.Board
	Calendar    *schedule.Controller
	Local       *localstore.Store
	Durations   *localstore.Durations

	logger *log.Logger

	mu    sync.Mutex
	prefs localstore.Prefs
}

// Open builds a session from configuration, loading view preferences from the
// local state dir.
func Open(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("session: config is required")
	}
	if opts.Remote == nil {
		return nil, fmt.Errorf("session: remote is required")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	local, err := localstore.Open(cfg.Client.StateDir, cfg.Client.Namespace)
	if err != nil {
		return nil, err
	}
	defaults, err := defaultPrefs(cfg.View)
	if err != nil {
		return nil, err
	}
	prefs, err := local.LoadPrefs(defaults)
	if err != nil {
		// a corrupt prefs file is not worth refusing to start over
		logger.Printf("session: %v; using defaults", err)
		prefs = defaults
	}

	store := entity.NewStore(nil)
	coord := save.New(opts.Remote, store, save.Options{
		Debounce: cfg.Client.Debounce(),
		Timeout:  cfg.Client.Timeout(),
		Notifier: opts.Notifier,
		Logger:   logger,
	})
	s := &Session{
		Config:      cfg,
		Store:       store,
		Coordinator: coord,
		Board:       board.New(prefs.Dimension, cfg.View.DoneCap, opts.Labeler),
		Calendar:    schedule.NewController(prefs.Grid(schedule.DefaultGrid)),
		Local:       local,
		Durations:   local.Durations(),
		logger:      logger,
		prefs:       prefs,
	}
	coord.OnRekey(func(oldID, newID string) {
		if err := s.Durations.Rename(oldID, newID); err != nil {
			logger.Printf("session: move duration %s -> %s: %v", oldID, newID, err)
		}
	})
	return s, nil
}

func defaultPrefs(v config.ViewConfig) (localstore.Prefs, error) {
	dim, err := board.ParseDimension(v.Dimension)
	if err != nil {
		return localstore.Prefs{}, err
	}
	return localstore.Prefs{
		Dimension:    dim,
		StartHour:    v.StartHour,
		EndHour:      v.EndHour,
		ShowWeekends: v.ShowWeekends,
	}, nil
}

// Prefs returns the current view preferences.
func (s *Session) Prefs() localstore.Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Refresh reloads the authoritative collection.
func (s *Session) Refresh(ctx context.Context) error {
	return s.Coordinator.Refresh(ctx)
}

// Items returns a snapshot of the local collection.
func (s *Session) Items() []domain.Item {
	return s.Store.Items()
}

// BoardView groups the top-level items by the current dimension.
func (s *Session) BoardView() []board.Bucket {
	return s.Board.View(topLevel(s.Items()))
}

// DropOnBoard completes the active board drag. A reorder only touches the
// overlay; a move across columns saves the drop's patch in one write and puts
// the manual orders back if that save fails.
func (s *Session) DropOnBoard() (board.DropResult, error) {
	res, err := s.Board.Drop(topLevel(s.Items()))
	if err != nil || res.Outcome != board.PhaseMoving {
		return res, err
	}
	undo := func() { s.Board.Revert(res) }
	if err := s.Coordinator.EditFields(res.ItemID, res.Patch, undo); err != nil {
		undo()
		return res, err
	}
	return res, nil
}

// Move drags itemID to index in bucketID in one step.
func (s *Session) Move(itemID, bucketID string, index int) (board.DropResult, error) {
	if err := s.Board.BeginDrag(topLevel(s.Items()), itemID, 0); err != nil {
		return board.DropResult{}, err
	}
	if err := s.Board.UpdateDrag(bucketID, index); err != nil {
		s.Board.Cancel()
		return board.DropResult{}, err
	}
	return s.DropOnBoard()
}

// Reschedule saves a new due value for an item.
func (s *Session) Reschedule(itemID string, due domain.Due) error {
	return s.Coordinator.Edit(itemID, domain.FieldDue, due)
}

// DropOnGrid commits the calendar move gesture at its previewed time.
func (s *Session) DropOnGrid() (domain.Due, error) {
	id, due, err := s.Calendar.DropOnGrid()
	if err != nil {
		return domain.Due{}, err
	}
	return due, s.Reschedule(id, due)
}

// DropOnDay commits the calendar move gesture onto a whole day.
func (s *Session) DropOnDay(day time.Time) (domain.Due, error) {
	id, due, err := s.Calendar.DropOnDay(day)
	if err != nil {
		return domain.Due{}, err
	}
	return due, s.Reschedule(id, due)
}

// Resize finishes the calendar resize gesture and stores the new duration.
// Durations stay on this machine.
func (s *Session) Resize(pointerY float64) (int, error) {
	id, minutes, err := s.Calendar.EndResize(pointerY)
	if err != nil {
		return 0, err
	}
	return s.Durations.Set(id, minutes)
}

// SetDimension regroups the board and remembers the choice.
func (s *Session) SetDimension(d board.Dimension) error {
	if _, err := board.ParseDimension(string(d)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.prefs
	next.Dimension = d
	if err := s.Local.SavePrefs(next); err != nil {
		return err
	}
	s.prefs = next
	s.Board.SetDimension(d)
	return nil
}

// SetHours changes the visible calendar range and weekend display.
func (s *Session) SetHours(startHour, endHour int, showWeekends bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.prefs
	next.StartHour, next.EndHour, next.ShowWeekends = startHour, endHour, showWeekends
	if err := s.Local.SavePrefs(next); err != nil {
		return err
	}
	s.prefs = next
	s.Calendar.SetGrid(next.Grid(schedule.DefaultGrid))
	return nil
}

// Day lays out one calendar day, including any gesture preview.
func (s *Session) Day(day time.Time) schedule.Day {
	grid := s.Prefs().Grid(schedule.DefaultGrid)
	return schedule.LayoutDay(day, s.Items(), s.Durations, s.Calendar.Preview(), grid, s.Config.View.SummaryCap)
}

// Week lays out the days of the week containing anchor.
func (s *Session) Week(anchor time.Time) []schedule.Day {
	days := schedule.WeekDays(anchor, s.Prefs().ShowWeekends)
	out := make([]schedule.Day, 0, len(days))
	for _, d := range days {
		out = append(out, s.Day(d))
	}
	return out
}

// NewDraft starts a create-item form.
func (s *Session) NewDraft(initial domain.Patch) (*save.Draft, error) {
	return s.Coordinator.NewDraft(initial)
}

// Close flushes pending text edits and waits for outstanding writes.
func (s *Session) Close(ctx context.Context) error {
	return s.Coordinator.Shutdown(ctx)
}

func topLevel(items []domain.Item) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if !it.IsChild() {
			out = append(out, it)
		}
	}
	return out
}
