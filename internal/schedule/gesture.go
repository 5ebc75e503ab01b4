package schedule

import (
	"errors"
	"sync"
	"time"

	"workboard/internal/domain"
)

// ClickSuppressWindow is how long a click on an item is ignored after a gesture ends.
const ClickSuppressWindow = 250 * time.Millisecond

var ErrNoGesture = errors.New("no gesture in progress")

type GestureKind string

const (
	GestureMove   GestureKind = "move"
	GestureResize GestureKind = "resize"
)

type gesture struct {
	kind          GestureKind
	startY        float64
	startDuration int
	preview       Preview
}

// Controller tracks the single move or resize gesture of a calendar surface.
type Controller struct {
	mu            sync.Mutex
	grid          Grid
	active        *gesture
	suppressUntil time.Time
	Now           func() time.Time
}

func NewController(grid Grid) *Controller {
	return &Controller{grid: grid, Now: time.Now}
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// SetGrid replaces the grid, e.g. after the visible hours change.
func (c *Controller) SetGrid(g Grid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grid = g
}

// Preview returns the pending position of the active gesture.
func (c *Controller) Preview() *Preview {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	p := c.active.preview
	return &p
}

// BeginMove starts dragging an item currently at start on day.
func (c *Controller) BeginMove(itemID string, day time.Time, start, duration int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = &gesture{
		kind:    GestureMove,
		preview: Preview{ItemID: itemID, Day: day, Start: start, Duration: duration},
	}
}

// MoveTo follows the pointer over day at offsetY pixels from the top of the grid.
func (c *Controller) MoveTo(day time.Time, offsetY float64) (Preview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.kind != GestureMove {
		return Preview{}, ErrNoGesture
	}
	c.active.preview.Day = day
	c.active.preview.Start = c.grid.MinuteAt(offsetY)
	return c.active.preview, nil
}

// DropOnGrid commits the move at the previewed time. The result always carries a time.
func (c *Controller) DropOnGrid() (string, domain.Due, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.kind != GestureMove {
		return "", domain.Due{}, ErrNoGesture
	}
	p := c.active.preview
	c.finishLocked()
	y, m, d := p.Day.Date()
	at := time.Date(y, m, d, p.Start/60, p.Start%60, 0, 0, p.Day.Location())
	return p.ItemID, domain.TimedDue(at), nil
}

// DropOnDay commits the move onto a day cell outside the hour grid. The result is
// always date-only, even when the item had a time before.
func (c *Controller) DropOnDay(day time.Time) (string, domain.Due, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.kind != GestureMove {
		return "", domain.Due{}, ErrNoGesture
	}
	id := c.active.preview.ItemID
	c.finishLocked()
	return id, domain.DateOnlyDue(day), nil
}

// BeginResize starts a bottom-edge resize of an item with the given duration.
func (c *Controller) BeginResize(itemID string, day time.Time, start, duration int, pointerY float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = &gesture{
		kind:          GestureResize,
		startY:        pointerY,
		startDuration: duration,
		preview:       Preview{ItemID: itemID, Day: day, Start: start, Duration: ClampDuration(duration)},
	}
}

// ResizeTo follows the pointer during a resize.
func (c *Controller) ResizeTo(pointerY float64) (Preview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.kind != GestureResize {
		return Preview{}, ErrNoGesture
	}
	c.active.preview.Duration = ClampDuration(c.active.startDuration + c.grid.MinutesFor(pointerY-c.active.startY))
	return c.active.preview, nil
}

// EndResize finishes the resize at pointerY and returns the clamped, snapped duration.
func (c *Controller) EndResize(pointerY float64) (string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.kind != GestureResize {
		return "", 0, ErrNoGesture
	}
	id := c.active.preview.ItemID
	minutes := ClampDuration(c.active.startDuration + c.grid.MinutesFor(pointerY-c.active.startY))
	c.finishLocked()
	return id, minutes, nil
}

// Cancel drops the active gesture without committing it.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
}

// SuppressClick reports whether a click arriving now follows a gesture too closely
// to be treated as an open action.
func (c *Controller) SuppressClick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.suppressUntil)
}

func (c *Controller) finishLocked() {
	c.active = nil
	c.suppressUntil = c.now().Add(ClickSuppressWindow)
}
