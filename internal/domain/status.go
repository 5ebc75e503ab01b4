package domain

import "strings"

const (
	StatusBacklog    = "backlog"
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
)

// Statuses is the board order of displayable statuses. backlog is a legacy
// value shown in the todo lane.
var Statuses = []string{StatusTodo, StatusInProgress, StatusReview, StatusDone}

const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Priorities is ordered from most to least severe.
var Priorities = []string{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

var prioritySynonyms = map[string]string{
	"urgent":   PriorityUrgent,
	"critical": PriorityUrgent,
	"p0":       PriorityUrgent,
	"high":     PriorityHigh,
	"p1":       PriorityHigh,
	"medium":   PriorityMedium,
	"normal":   PriorityMedium,
	"p2":       PriorityMedium,
	"low":      PriorityLow,
	"p3":       PriorityLow,
}

// ValidStatus reports whether s is a storable status.
func ValidStatus(s string) bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// DisplayStatus folds legacy statuses into the lane they are shown in.
func DisplayStatus(s string) string {
	if s == StatusBacklog || s == "" {
		return StatusTodo
	}
	return s
}

// NormalizePriority maps any known encoding to its canonical priority.
func NormalizePriority(s string) (string, bool) {
	p, ok := prioritySynonyms[strings.ToLower(strings.TrimSpace(s))]
	return p, ok
}

// PrioritySeverity ranks canonical priorities; lower is more severe.
// Unknown values rank after every known priority.
func PrioritySeverity(p string) int {
	for i, v := range Priorities {
		if v == p {
			return i
		}
	}
	return len(Priorities)
}

// EffectivePriority resolves the item's priority from the priority field and any
// "priority:<x>" labels. When several encodings are present the most severe wins.
func EffectivePriority(it Item) (string, bool) {
	best := ""
	consider := func(raw string) {
		p, ok := NormalizePriority(raw)
		if !ok {
			return
		}
		if best == "" || PrioritySeverity(p) < PrioritySeverity(best) {
			best = p
		}
	}
	if it.Priority != nil {
		consider(*it.Priority)
	}
	for _, l := range it.Labels {
		if v, ok := priorityLabel(l); ok {
			consider(v)
		}
	}
	return best, best != ""
}

// WithoutPriorityLabels returns labels minus every "priority:<x>" entry and
// whether any was removed.
func WithoutPriorityLabels(labels []string) ([]string, bool) {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := priorityLabel(l); !ok {
			out = append(out, l)
		}
	}
	return out, len(out) != len(labels)
}

func priorityLabel(l string) (string, bool) {
	return strings.CutPrefix(strings.ToLower(l), "priority:")
}
