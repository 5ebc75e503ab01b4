package board

import (
	"errors"
	"fmt"
	"sync"

	"workboard/internal/domain"
)

var (
	ErrDragActive    = errors.New("a drag is already in progress")
	ErrNoDrag        = errors.New("no drag in progress")
	ErrNotDraggable  = errors.New("item is not draggable")
	ErrItemNotOnView = errors.New("item is not on the board")
)

// Phase is the drag state machine position.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDragging   Phase = "dragging"
	PhaseReordering Phase = "reordering"
	PhaseMoving     Phase = "moving"
	PhaseCancelled  Phase = "cancelled"
)

// Target is a slot in a column: Index counts the rendered rows above the slot,
// including the dragged item itself when it sits in the same column.
type Target struct {
	BucketID string `json:"bucket_id"`
	Index    int    `json:"index"`
}

// DragSession describes an in-progress move.
type DragSession struct {
	ItemID      string  `json:"item_id"`
	Origin      Target  `json:"origin"`
	Destination *Target `json:"destination,omitempty"`
	Height      float64 `json:"height"`
}

// State is a serializable snapshot of the board's interaction state.
type State struct {
	Dimension Dimension           `json:"dimension"`
	Phase     Phase               `json:"phase"`
	Session   *DragSession        `json:"session,omitempty"`
	Overlay   map[string][]string `json:"overlay,omitempty"`
}

// DropResult describes what a completed drop changed.
type DropResult struct {
	Outcome Phase        `json:"outcome"`
	ItemID  string       `json:"item_id,omitempty"`
	From    string       `json:"from,omitempty"`
	To      string       `json:"to,omitempty"`
	Order   []string     `json:"order,omitempty"`
	Field   domain.Field `json:"field,omitempty"`
	Value   any          `json:"value,omitempty"`
	// Patch is the complete write for a move: Field's new value plus any
	// field that has to change with it.
	Patch domain.Patch `json:"patch,omitempty"`

	epoch    int
	previous map[string]overlayEntry
}

type overlayEntry struct {
	ids     []string
	present bool
}

// Board owns the grouping dimension, the ordering overlay and the drag session.
type Board struct {
	mu        sync.Mutex
	epoch     int
	dimension Dimension
	doneCap   int
	labeler   Labeler
	overlay   Overlay
	phase     Phase
	session   *DragSession
}

// New returns a board grouped by d. doneCap limits the draggable rows of the
// done column; zero means no limit.
func New(d Dimension, doneCap int, labeler Labeler) *Board {
	return &Board{dimension: d, doneCap: doneCap, labeler: labeler, phase: PhaseIdle}
}

func (b *Board) Dimension() Dimension {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dimension
}

// SetDimension switches the grouping. Manual orders and any drag are discarded:
// they only mean something for the dimension they were made in.
func (b *Board) SetDimension(d Dimension) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dimension = d
	b.epoch++
	b.overlay.Clear()
	b.session = nil
	b.phase = PhaseIdle
}

// State returns a copy of the interaction state.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := State{Dimension: b.dimension, Phase: b.phase, Overlay: b.overlay.Entries()}
	if b.session != nil {
		s := *b.session
		if s.Destination != nil {
			d := *s.Destination
			s.Destination = &d
		}
		st.Session = &s
	}
	return st
}

// View returns the columns with their ordered item ids.
func (b *Board) View(items []domain.Item) []Bucket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked(items)
}

func (b *Board) viewLocked(items []domain.Item) []Bucket {
	cols := Columns(b.dimension, items, b.labeler)
	byBucket := map[string][]domain.Item{}
	for _, it := range items {
		id := BucketOf(b.dimension, it)
		byBucket[id] = append(byBucket[id], it)
	}
	for i := range cols {
		ordered := DefaultOrder(b.dimension, cols[i].ID, byBucket[cols[i].ID])
		ids := make([]string, len(ordered))
		for j, it := range ordered {
			ids[j] = it.ID
		}
		var shown map[string]bool
		if b.doneCap > 0 && isTerminal(b.dimension, cols[i].ID) && len(ids) > b.doneCap {
			// the cap picks rows by default order; a manual order only arranges them
			shown = make(map[string]bool, b.doneCap)
			for _, id := range ids[:b.doneCap] {
				shown[id] = true
			}
		}
		ids = b.overlay.apply(cols[i].ID, ids)
		if shown == nil {
			cols[i].ItemIDs = ids
			continue
		}
		for _, id := range ids {
			if shown[id] {
				cols[i].ItemIDs = append(cols[i].ItemIDs, id)
			} else {
				cols[i].Hidden = append(cols[i].Hidden, id)
			}
		}
	}
	return cols
}

// ItemsFor returns the items of one column in display order, hidden rows included.
func (b *Board) ItemsFor(bucketID string, items []domain.Item) []domain.Item {
	byID := make(map[string]domain.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, col := range b.View(items) {
		if col.ID != bucketID {
			continue
		}
		var out []domain.Item
		for _, id := range col.All() {
			out = append(out, byID[id])
		}
		return out
	}
	return nil
}

// BeginDrag starts moving itemID. height is the rendered row height, used to size
// the placeholder while dragging.
func (b *Board) BeginDrag(items []domain.Item, itemID string, height float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase == PhaseDragging {
		return ErrDragActive
	}
	for _, col := range b.viewLocked(items) {
		for i, id := range col.ItemIDs {
			if id == itemID {
				b.session = &DragSession{ItemID: itemID, Origin: Target{BucketID: col.ID, Index: i}, Height: height}
				b.phase = PhaseDragging
				return nil
			}
		}
		for _, id := range col.Hidden {
			if id == itemID {
				return fmt.Errorf("%w: %s is past the column limit", ErrNotDraggable, itemID)
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotOnView, itemID)
}

// UpdateDrag records the slot under the pointer. It never touches items.
func (b *Board) UpdateDrag(bucketID string, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase != PhaseDragging {
		return ErrNoDrag
	}
	if index < 0 {
		index = 0
	}
	b.session.Destination = &Target{BucketID: bucketID, Index: index}
	return nil
}

// ClearTarget marks the pointer as outside every column.
func (b *Board) ClearTarget() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destination = nil
	}
}

// Cancel abandons the drag without changes, e.g. on a global drag-end signal.
func (b *Board) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase != PhaseDragging {
		return
	}
	b.session = nil
	b.phase = PhaseCancelled
}

// Placeholder returns the height of the dragged row while a drag is active.
func (b *Board) Placeholder() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return 0, false
	}
	return b.session.Height, true
}

// Indicator returns where the drop marker renders in bucketID, as an index into
// the column with the dragged item removed.
func (b *Board) Indicator(bucketID string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return indicator(b.session, bucketID)
}

func indicator(s *DragSession, bucketID string) (int, bool) {
	if s == nil || s.Destination == nil || s.Destination.BucketID != bucketID {
		return 0, false
	}
	idx := s.Destination.Index
	if s.Origin.BucketID == bucketID && idx > s.Origin.Index {
		idx--
	}
	return idx, true
}

// Drop completes the drag against the current items.
//
// A drop in the origin column rewrites that column's manual order and needs no
// server write. A drop in another column updates both manual orders and reports
// the field change the caller must save. Without a valid target nothing changes.
func (b *Board) Drop(items []domain.Item) (DropResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase != PhaseDragging || b.session == nil {
		return DropResult{}, ErrNoDrag
	}
	s := b.session
	b.session = nil
	if s.Destination == nil {
		b.phase = PhaseCancelled
		return DropResult{Outcome: PhaseCancelled, ItemID: s.ItemID}, nil
	}
	var origin, dest *Bucket
	cols := b.viewLocked(items)
	for i := range cols {
		if cols[i].ID == s.Origin.BucketID {
			origin = &cols[i]
		}
		if cols[i].ID == s.Destination.BucketID {
			dest = &cols[i]
		}
	}
	if origin == nil || dest == nil {
		b.phase = PhaseCancelled
		return DropResult{Outcome: PhaseCancelled, ItemID: s.ItemID}, nil
	}
	prev := map[string]overlayEntry{}
	for _, id := range []string{origin.ID, dest.ID} {
		ids, ok := b.overlay.Get(id)
		prev[id] = overlayEntry{ids: ids, present: ok}
	}

	if origin.ID == dest.ID {
		idx, _ := indicator(s, dest.ID)
		order := insertAt(without(dest.All(), s.ItemID), s.ItemID, clamp(idx, 0, len(dest.ItemIDs)-1))
		b.overlay.Set(dest.ID, order)
		b.phase = PhaseReordering
		return DropResult{Outcome: PhaseReordering, ItemID: s.ItemID, From: origin.ID, To: dest.ID, Order: order, epoch: b.epoch, previous: prev}, nil
	}

	var dragged domain.Item
	for _, it := range items {
		if it.ID == s.ItemID {
			dragged = it
			break
		}
	}
	b.overlay.Remove(origin.ID, s.ItemID)
	order := insertAt(dest.All(), s.ItemID, clamp(s.Destination.Index, 0, len(dest.ItemIDs)))
	b.overlay.Set(dest.ID, order)
	b.phase = PhaseMoving
	return DropResult{
		Outcome:  PhaseMoving,
		ItemID:   s.ItemID,
		From:     origin.ID,
		To:       dest.ID,
		Order:    order,
		Field:    b.dimension.Field(),
		Value:    ValueFor(b.dimension, dest.ID),
		Patch:    PatchFor(b.dimension, dest.ID, dragged),
		epoch:    b.epoch,
		previous: prev,
	}, nil
}

// Revert restores the manual orders a drop replaced, e.g. after its save failed.
// It does nothing if the grouping was switched since the drop.
func (b *Board) Revert(res DropResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if res.epoch != b.epoch {
		return
	}
	for id, e := range res.previous {
		if e.present {
			b.overlay.Set(id, e.ids)
			continue
		}
		if b.overlay.entries != nil {
			delete(b.overlay.entries, id)
		}
	}
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func insertAt(ids []string, id string, at int) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:at]...)
	out = append(out, id)
	return append(out, ids[at:]...)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
