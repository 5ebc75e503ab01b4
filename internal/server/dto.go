package server

import (
	"encoding/json"
	"fmt"
	"time"

	"workboard/internal/domain"
)

// Request payloads

// ItemRequest carries item fields for create and partial update. On update
// only the keys present in the body change; an explicit null clears a field.
type ItemRequest struct {
	Title       *string  `json:"title,omitempty" maxLength:"500"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"backlog,todo,in_progress,review,done"`
	Priority    *string  `json:"priority,omitempty" nullable:"true" doc:"urgent, high, medium or low"`
	AssigneeID  *string  `json:"assignee_id,omitempty" nullable:"true"`
	ProjectID   *string  `json:"project_id,omitempty" nullable:"true"`
	Service     *string  `json:"service,omitempty" nullable:"true"`
	TeamID      *string  `json:"team_id,omitempty" nullable:"true"`
	Due         *string  `json:"due,omitempty" nullable:"true" example:"2024-03-10T00:00:00" doc:"Date-only values are local midnight without offset; timed values are RFC 3339"`
	ParentID    *string  `json:"parent_id,omitempty" nullable:"true"`
	Labels      []string `json:"labels,omitempty" nullable:"true"`
}

type CreateCommentRequest struct {
	Body string `json:"body" minLength:"1"`
}

type CreateAttachmentRequest struct {
	Name        string `json:"name" minLength:"1"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content" doc:"Base64 encoded file content"`
}

type RenameAttachmentRequest struct {
	Name string `json:"name" minLength:"1"`
}

// Response payloads

type HealthResponse struct {
	Status        string `json:"status" example:"ok"`
	SchemaVersion int    `json:"schema_version"`
}

type ItemResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status" enum:"backlog,todo,in_progress,review,done"`
	Priority    *string  `json:"priority"`
	AssigneeID  *string  `json:"assignee_id"`
	ProjectID   *string  `json:"project_id"`
	Service     *string  `json:"service"`
	TeamID      *string  `json:"team_id"`
	Due         *string  `json:"due"`
	ParentID    *string  `json:"parent_id"`
	Labels      []string `json:"labels"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
	CompletedAt *string  `json:"completed_at"`
}

type itemList struct {
	Items []ItemResponse `json:"items"`
}

type commentList struct {
	Items []domain.Comment `json:"items"`
}

type attachmentList struct {
	Items []domain.Attachment `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func itemResponse(it domain.Item) ItemResponse {
	var due *string
	if it.Due != nil {
		s := it.Due.String()
		due = &s
	}
	return ItemResponse{
		ID:          it.ID,
		Title:       it.Title,
		Description: it.Description,
		Status:      it.Status,
		Priority:    it.Priority,
		AssigneeID:  it.AssigneeID,
		ProjectID:   it.ProjectID,
		Service:     it.Service,
		TeamID:      it.TeamID,
		Due:         due,
		ParentID:    it.ParentID,
		Labels:      nonNilSlice(it.Labels),
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
		CompletedAt: it.CompletedAt,
	}
}

func mapItems(items []domain.Item) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse(it))
	}
	return out
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    decodeJSONMap(evt.Payload),
	}
}

// patchFromRequest builds a patch from the keys present in raw, so absent keys
// are left untouched and explicit nulls clear.
func patchFromRequest(req ItemRequest, raw map[string]json.RawMessage) (domain.Patch, error) {
	p := domain.Patch{}
	typed := map[domain.Field]any{
		domain.FieldTitle:       req.Title,
		domain.FieldDescription: req.Description,
		domain.FieldStatus:      req.Status,
		domain.FieldPriority:    req.Priority,
		domain.FieldAssignee:    req.AssigneeID,
		domain.FieldProject:     req.ProjectID,
		domain.FieldService:     req.Service,
		domain.FieldTeam:        req.TeamID,
		domain.FieldParent:      req.ParentID,
	}
	for _, f := range domain.Fields {
		rawVal, ok := raw[string(f)]
		if !ok {
			continue
		}
		null := isNullRaw(rawVal)
		if null && !f.Nullable() && f != domain.FieldLabels {
			return nil, fmt.Errorf("invalid %s: cannot be null", f)
		}
		var v any
		switch f {
		case domain.FieldDue:
			if null || req.Due == nil {
				v = nil
			} else {
				d, err := domain.ParseDue(*req.Due, time.Local)
				if err != nil {
					return nil, err
				}
				v = d
			}
		case domain.FieldLabels:
			if null {
				v = nil
			} else {
				v = req.Labels
			}
		default:
			if null {
				v = nil
			} else {
				v = typed[f]
			}
		}
		if err := p.Set(f, v); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f, err)
		}
	}
	return p, nil
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
