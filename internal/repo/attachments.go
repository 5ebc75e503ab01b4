package repo

import (
	"context"
	"database/sql"

	"workboard/internal/domain"
)

const attachmentColumns = `id,item_id,name,content_type,size,created_at`

func scanAttachment(row rowScanner) (domain.Attachment, error) {
	var a domain.Attachment
	var contentType sql.NullString
	err := row.Scan(&a.ID, &a.ItemID, &a.Name, &contentType, &a.Size, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if contentType.Valid {
		a.ContentType = contentType.String
	}
	return a, err
}

func (r Repo) InsertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment, content []byte) error {
	if content == nil {
		content = []byte{}
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO attachments(id,item_id,name,content_type,size,content,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.ItemID, a.Name, nullableStringPtr(&a.ContentType), a.Size, content, a.CreatedAt)
	return err
}

func (r Repo) GetAttachmentTx(ctx context.Context, tx *sql.Tx, itemID, id string) (domain.Attachment, error) {
	return scanAttachment(tx.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id=? AND item_id=?`, id, itemID))
}

// AttachmentContent returns the stored bytes of one attachment.
func (r Repo) AttachmentContent(ctx context.Context, itemID, id string) (domain.Attachment, []byte, error) {
	var a domain.Attachment
	var contentType sql.NullString
	var content []byte
	err := r.DB.QueryRowContext(ctx, `SELECT `+attachmentColumns+`,content FROM attachments WHERE id=? AND item_id=?`, id, itemID).
		Scan(&a.ID, &a.ItemID, &a.Name, &contentType, &a.Size, &a.CreatedAt, &content)
	if err == sql.ErrNoRows {
		return a, nil, ErrNotFound
	}
	if contentType.Valid {
		a.ContentType = contentType.String
	}
	return a, content, err
}

func (r Repo) RenameAttachment(ctx context.Context, tx *sql.Tx, itemID, id, name string) error {
	res, err := tx.ExecContext(ctx, `UPDATE attachments SET name=? WHERE id=? AND item_id=?`, name, id, itemID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r Repo) DeleteAttachment(ctx context.Context, tx *sql.Tx, itemID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE id=? AND item_id=?`, id, itemID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r Repo) ListAttachments(ctx context.Context, itemID string) ([]domain.Attachment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE item_id=? ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
