package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"workboard/internal/domain"
)

// Event types written by the engine.
const (
	ItemCreated       = "item.created"
	ItemUpdated       = "item.updated"
	ItemDeleted       = "item.deleted"
	CommentAdded      = "comment.added"
	CommentDeleted    = "comment.deleted"
	AttachmentAdded   = "attachment.added"
	AttachmentRenamed = "attachment.renamed"
	AttachmentDeleted = "attachment.deleted"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx and returns it with its assigned id, so
// the caller can publish it once the transaction commits.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) (domain.Event, error) {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return domain.Event{}, fmt.Errorf("append %s: %w", evtType, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		ID:         id,
		TS:         ts,
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
