package repo

import (
	"context"
	"database/sql"

	"workboard/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,item_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.ItemID, c.AuthorID, c.Body, c.CreatedAt)
	return err
}

func (r Repo) GetCommentTx(ctx context.Context, tx *sql.Tx, itemID, id string) (domain.Comment, error) {
	var c domain.Comment
	err := tx.QueryRowContext(ctx, `SELECT id,item_id,author_id,body,created_at FROM comments WHERE id=? AND item_id=?`, id, itemID).
		Scan(&c.ID, &c.ItemID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) DeleteComment(ctx context.Context, tx *sql.Tx, itemID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id=? AND item_id=?`, id, itemID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ListComments returns an item's comments oldest first.
func (r Repo) ListComments(ctx context.Context, itemID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,item_id,author_id,body,created_at FROM comments WHERE item_id=? ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.ItemID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
