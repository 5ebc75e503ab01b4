package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"workboard/internal/domain"
	"workboard/internal/events"
)

func (e Engine) ListComments(ctx context.Context, itemID string) ([]domain.Comment, error) {
	if _, err := e.Repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, itemID)
}

func (e Engine) AddComment(ctx context.Context, itemID, body, actorID string) (domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Comment{}, ValidationError{Field: "body", Message: "required"}
	}
	c := domain.Comment{ID: uuid.NewString(), ItemID: itemID, AuthorID: actorID, Body: body, CreatedAt: e.timestamp()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetItemTx(ctx, tx, itemID); err != nil {
		return c, err
	}
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return c, err
	}
	evt, err := e.Events.Append(ctx, tx, events.CommentAdded, "item", itemID, actorID, events.EventPayload{"comment_id": c.ID})
	if err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	e.publish(evt)
	return c, nil
}

func (e Engine) DeleteComment(ctx context.Context, itemID, commentID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteComment(ctx, tx, itemID, commentID); err != nil {
		return err
	}
	evt, err := e.Events.Append(ctx, tx, events.CommentDeleted, "item", itemID, actorID, events.EventPayload{"comment_id": commentID})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish(evt)
	return nil
}
