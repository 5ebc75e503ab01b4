package engine

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"workboard/internal/domain"
	"workboard/internal/events"
)

func (e Engine) ListAttachments(ctx context.Context, itemID string) ([]domain.Attachment, error) {
	if _, err := e.Repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Repo.ListAttachments(ctx, itemID)
}

// AttachmentContent returns an attachment with its bytes.
func (e Engine) AttachmentContent(ctx context.Context, itemID, attachmentID string) (domain.Attachment, []byte, error) {
	return e.Repo.AttachmentContent(ctx, itemID, attachmentID)
}

// AddAttachment stores an upload. The content type is guessed from the name,
// then from the content, when the upload does not carry one.
func (e Engine) AddAttachment(ctx context.Context, itemID string, up domain.AttachmentUpload, actorID string) (domain.Attachment, error) {
	name, err := attachmentName(up.Name)
	if err != nil {
		return domain.Attachment{}, err
	}
	if limit := e.Config.Server.MaxAttachmentBytes; limit > 0 && int64(len(up.Content)) > limit {
		return domain.Attachment{}, ValidationError{Field: "content", Message: "attachment too large"}
	}
	ct := up.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(name))
	}
	if ct == "" && len(up.Content) > 0 {
		ct = http.DetectContentType(up.Content)
	}
	a := domain.Attachment{
		ID:          uuid.NewString(),
		ItemID:      itemID,
		Name:        name,
		ContentType: ct,
		Size:        int64(len(up.Content)),
		CreatedAt:   e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetItemTx(ctx, tx, itemID); err != nil {
		return a, err
	}
	if err := e.Repo.InsertAttachment(ctx, tx, a, up.Content); err != nil {
		return a, err
	}
	evt, err := e.Events.Append(ctx, tx, events.AttachmentAdded, "item", itemID, actorID, events.EventPayload{
		"attachment_id": a.ID,
		"name":          a.Name,
		"size":          a.Size,
	})
	if err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.publish(evt)
	return a, nil
}

func (e Engine) RenameAttachment(ctx context.Context, itemID, attachmentID, name, actorID string) (domain.Attachment, error) {
	name, err := attachmentName(name)
	if err != nil {
		return domain.Attachment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attachment{}, err
	}
	defer tx.Rollback()
	a, err := e.Repo.GetAttachmentTx(ctx, tx, itemID, attachmentID)
	if err != nil {
		return a, err
	}
	if a.Name == name {
		return a, nil
	}
	if err := e.Repo.RenameAttachment(ctx, tx, itemID, attachmentID, name); err != nil {
		return a, err
	}
	evt, err := e.Events.Append(ctx, tx, events.AttachmentRenamed, "item", itemID, actorID, events.EventPayload{
		"attachment_id": a.ID,
		"old_name":      a.Name,
		"name":          name,
	})
	if err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.publish(evt)
	a.Name = name
	return a, nil
}

func (e Engine) DeleteAttachment(ctx context.Context, itemID, attachmentID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAttachment(ctx, tx, itemID, attachmentID); err != nil {
		return err
	}
	evt, err := e.Events.Append(ctx, tx, events.AttachmentDeleted, "item", itemID, actorID, events.EventPayload{"attachment_id": attachmentID})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish(evt)
	return nil
}

func attachmentName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ValidationError{Field: "name", Message: "required"}
	}
	if strings.ContainsAny(name, `/\`) {
		return "", ValidationError{Field: "name", Message: "must not contain path separators"}
	}
	return name, nil
}
