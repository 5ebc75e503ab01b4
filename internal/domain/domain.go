package domain

import "errors"

// ErrSubitemsIncomplete is returned when an item is moved to a terminal status
// while at least one of its sub-items is still open.
var ErrSubitemsIncomplete = errors.New("sub-items incomplete")

type Item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status" enum:"backlog,todo,in_progress,review,done"`
	Priority    *string  `json:"priority,omitempty"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	ProjectID   *string  `json:"project_id,omitempty"`
	Service     *string  `json:"service,omitempty"`
	TeamID      *string  `json:"team_id,omitempty"`
	Due         *Due     `json:"due,omitempty"`
	ParentID    *string  `json:"parent_id,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt   string   `json:"updated_at,omitempty" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

// IsChild reports whether the item is a sub-item of another item.
func (it Item) IsChild() bool {
	return it.ParentID != nil && *it.ParentID != ""
}

// Clone returns a deep copy so callers can mutate the result freely.
func (it Item) Clone() Item {
	out := it
	out.Priority = cloneString(it.Priority)
	out.AssigneeID = cloneString(it.AssigneeID)
	out.ProjectID = cloneString(it.ProjectID)
	out.Service = cloneString(it.Service)
	out.TeamID = cloneString(it.TeamID)
	out.ParentID = cloneString(it.ParentID)
	out.CompletedAt = cloneString(it.CompletedAt)
	if it.Due != nil {
		d := *it.Due
		out.Due = &d
	}
	if it.Labels != nil {
		out.Labels = append([]string{}, it.Labels...)
	}
	return out
}

type Comment struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Attachment struct {
	ID          string `json:"id"`
	ItemID      string `json:"item_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// AttachmentUpload is the content of a new attachment.
type AttachmentUpload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
