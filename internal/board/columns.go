// Package board groups items into columns, orders each column and runs the
// drag-and-drop state machine used to reorder or regroup them.
package board

import (
	"fmt"
	"sort"
	"time"

	"workboard/internal/domain"
)

// Dimension is the attribute items are grouped by.
type Dimension string

const (
	DimStatus   Dimension = "status"
	DimPriority Dimension = "priority"
	DimProject  Dimension = "project"
	DimAssignee Dimension = "assignee"
	DimService  Dimension = "service"
	DimTeam     Dimension = "team"
)

// Dimensions lists every supported grouping.
var Dimensions = []Dimension{DimStatus, DimPriority, DimProject, DimAssignee, DimService, DimTeam}

// NoneBucket is the id of the synthetic column holding items without a value.
const NoneBucket = "__none__"

func ParseDimension(s string) (Dimension, error) {
	for _, d := range Dimensions {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid grouping %q", s)
}

// Field returns the item field a column of this dimension represents.
func (d Dimension) Field() domain.Field {
	switch d {
	case DimStatus:
		return domain.FieldStatus
	case DimPriority:
		return domain.FieldPriority
	case DimProject:
		return domain.FieldProject
	case DimAssignee:
		return domain.FieldAssignee
	case DimService:
		return domain.FieldService
	case DimTeam:
		return domain.FieldTeam
	}
	return ""
}

// fixed reports whether the bucket set comes from an enumeration rather than the data.
func (d Dimension) fixed() bool {
	return d == DimStatus || d == DimPriority
}

// Bucket is one column of a grouping.
type Bucket struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Color   string   `json:"color,omitempty"`
	ItemIDs []string `json:"item_ids"`
	// Hidden holds items past the column cap; they are not drag targets.
	Hidden []string `json:"hidden,omitempty"`
}

// Overflow is the number of items reachable only through the overflow affordance.
func (b Bucket) Overflow() int { return len(b.Hidden) }

// All returns the visible and hidden ids in display order.
func (b Bucket) All() []string {
	out := make([]string, 0, len(b.ItemIDs)+len(b.Hidden))
	out = append(out, b.ItemIDs...)
	return append(out, b.Hidden...)
}

// Labeler resolves display labels for foreign-key buckets (project names, people).
type Labeler interface {
	Label(d Dimension, value string) string
}

// LabelFunc adapts a function to Labeler.
type LabelFunc func(d Dimension, value string) string

func (f LabelFunc) Label(d Dimension, value string) string { return f(d, value) }

var statusColors = map[string]string{
	domain.StatusTodo:       "#94a3b8",
	domain.StatusInProgress: "#3b82f6",
	domain.StatusReview:     "#f59e0b",
	domain.StatusDone:       "#22c55e",
}

var statusLabels = map[string]string{
	domain.StatusTodo:       "To do",
	domain.StatusInProgress: "In progress",
	domain.StatusReview:     "Review",
	domain.StatusDone:       "Done",
}

var priorityColors = map[string]string{
	domain.PriorityUrgent: "#ef4444",
	domain.PriorityHigh:   "#f97316",
	domain.PriorityMedium: "#eab308",
	domain.PriorityLow:    "#64748b",
}

// BucketOf returns the id of the column it belongs to under d.
func BucketOf(d Dimension, it domain.Item) string {
	switch d {
	case DimStatus:
		return domain.DisplayStatus(it.Status)
	case DimPriority:
		if p, ok := domain.EffectivePriority(it); ok {
			return p
		}
		return NoneBucket
	case DimProject:
		return orNone(it.ProjectID)
	case DimAssignee:
		return orNone(it.AssigneeID)
	case DimService:
		return orNone(it.Service)
	case DimTeam:
		return orNone(it.TeamID)
	}
	return NoneBucket
}

// ValueFor returns the field value an item takes when dropped into bucketID.
func ValueFor(d Dimension, bucketID string) any {
	if bucketID == NoneBucket {
		return nil
	}
	if d == DimStatus {
		return bucketID
	}
	return domain.StringPtr(bucketID)
}

// PatchFor returns every field change that puts it in bucketID under d. On the
// priority grouping "priority:<x>" labels are removed as well, since they would
// otherwise keep the item in its old column.
func PatchFor(d Dimension, bucketID string, it domain.Item) domain.Patch {
	p := domain.Patch{}
	_ = p.Set(d.Field(), ValueFor(d, bucketID))
	if d == DimPriority {
		if labels, changed := domain.WithoutPriorityLabels(it.Labels); changed {
			p[domain.FieldLabels] = labels
		}
	}
	return p
}

func orNone(s *string) string {
	if s == nil || *s == "" {
		return NoneBucket
	}
	return *s
}

// Columns computes the bucket set for d. ItemIDs are left empty; see Board.View.
//
// Status and priority use their fixed enumerations (plus any unknown value seen in
// the data, so no item is left without a column). Other dimensions use the distinct
// observed values sorted by label. The none column is first and exists only when
// at least one item lacks a value.
func Columns(d Dimension, items []domain.Item, labeler Labeler) []Bucket {
	present := map[string]bool{}
	var observed []string
	for _, it := range items {
		id := BucketOf(d, it)
		if !present[id] {
			present[id] = true
			observed = append(observed, id)
		}
	}
	var out []Bucket
	if present[NoneBucket] {
		out = append(out, Bucket{ID: NoneBucket, Label: noneLabel(d)})
	}
	switch d {
	case DimStatus:
		for _, s := range domain.Statuses {
			out = append(out, Bucket{ID: s, Label: statusLabels[s], Color: statusColors[s]})
		}
	case DimPriority:
		for _, p := range domain.Priorities {
			out = append(out, Bucket{ID: p, Label: titleCase(p), Color: priorityColors[p]})
		}
	}
	known := map[string]bool{NoneBucket: true}
	for _, b := range out {
		known[b.ID] = true
	}
	var extra []Bucket
	for _, id := range observed {
		if known[id] {
			continue
		}
		label := id
		if labeler != nil && !d.fixed() {
			if l := labeler.Label(d, id); l != "" {
				label = l
			}
		}
		extra = append(extra, Bucket{ID: id, Label: label})
	}
	if !d.fixed() {
		sort.SliceStable(extra, func(i, j int) bool {
			if extra[i].Label != extra[j].Label {
				return extra[i].Label < extra[j].Label
			}
			return extra[i].ID < extra[j].ID
		})
	}
	return append(out, extra...)
}

func noneLabel(d Dimension) string {
	switch d {
	case DimPriority:
		return "No priority"
	case DimProject:
		return "No project"
	case DimAssignee:
		return "Unassigned"
	case DimService:
		return "No service"
	case DimTeam:
		return "No team"
	}
	return "None"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// isTerminal reports whether bucketID is the completed-work column of d.
func isTerminal(d Dimension, bucketID string) bool {
	return d == DimStatus && bucketID == domain.StatusDone
}

// DefaultOrder sorts the items of one bucket when no manual order exists.
// The terminal column is ordered by completion time, newest first; every other
// column by due time ascending with undated items last. Ties keep input order.
func DefaultOrder(d Dimension, bucketID string, items []domain.Item) []domain.Item {
	out := append([]domain.Item{}, items...)
	if isTerminal(d, bucketID) {
		sort.SliceStable(out, func(i, j int) bool {
			ti, okI := completedAt(out[i])
			tj, okJ := completedAt(out[j])
			if okI != okJ {
				return okI
			}
			return okI && ti.After(tj)
		})
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Due, out[j].Due
		if (di == nil) != (dj == nil) {
			return di != nil
		}
		if di == nil {
			return false
		}
		return di.Time.Before(dj.Time)
	})
	return out
}

func completedAt(it domain.Item) (time.Time, bool) {
	if it.CompletedAt == nil || *it.CompletedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, *it.CompletedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
