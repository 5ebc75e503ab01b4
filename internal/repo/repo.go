package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"workboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const itemColumns = `id,title,description,status,priority,assignee_id,project_id,service,team_id,due,parent_id,labels_json,created_at,updated_at,completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var it domain.Item
	var priority, assignee, project, service, team, due, parent, completedAt sql.NullString
	var labels string
	err := row.Scan(&it.ID, &it.Title, &it.Description, &it.Status, &priority, &assignee, &project, &service, &team, &due, &parent, &labels, &it.CreatedAt, &it.UpdatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.Priority = nullString(priority)
	it.AssigneeID = nullString(assignee)
	it.ProjectID = nullString(project)
	it.Service = nullString(service)
	it.TeamID = nullString(team)
	it.ParentID = nullString(parent)
	it.CompletedAt = nullString(completedAt)
	if due.Valid {
		d, err := domain.ParseDue(due.String, time.Local)
		if err != nil {
			return it, fmt.Errorf("item %s: %w", it.ID, err)
		}
		it.Due = &d
	}
	if err := json.Unmarshal([]byte(labels), &it.Labels); err != nil {
		return it, fmt.Errorf("item %s labels: %w", it.ID, err)
	}
	if len(it.Labels) == 0 {
		it.Labels = nil
	}
	return it, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableDue(d *domain.Due) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func labelsJSON(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, it domain.Item) error {
	labels, err := labelsJSON(it.Labels)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO items(`+itemColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.Title, it.Description, it.Status, nullableStringPtr(it.Priority), nullableStringPtr(it.AssigneeID),
		nullableStringPtr(it.ProjectID), nullableStringPtr(it.Service), nullableStringPtr(it.TeamID), nullableDue(it.Due),
		nullableStringPtr(it.ParentID), labels, it.CreatedAt, it.UpdatedAt, nullableStringPtr(it.CompletedAt))
	return err
}

func (r Repo) UpdateItem(ctx context.Context, tx *sql.Tx, it domain.Item) error {
	labels, err := labelsJSON(it.Labels)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE items SET title=?, description=?, status=?, priority=?, assignee_id=?, project_id=?, service=?, team_id=?, due=?, parent_id=?, labels_json=?, updated_at=?, completed_at=? WHERE id=?`,
		it.Title, it.Description, it.Status, nullableStringPtr(it.Priority), nullableStringPtr(it.AssigneeID),
		nullableStringPtr(it.ProjectID), nullableStringPtr(it.Service), nullableStringPtr(it.TeamID), nullableDue(it.Due),
		nullableStringPtr(it.ParentID), labels, it.UpdatedAt, nullableStringPtr(it.CompletedAt), it.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteItem removes an item. Children, comments and attachments go with it
// through ON DELETE CASCADE.
func (r Repo) DeleteItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetItem(ctx context.Context, id string) (domain.Item, error) {
	return getItem(ctx, r.DB, id)
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.Item, error) {
	return getItem(ctx, tx, id)
}

func getItem(ctx context.Context, q querier, id string) (domain.Item, error) {
	return scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=?`, id))
}

type ItemFilters struct {
	Status     string
	Parent     string
	AssigneeID string
	ProjectID  string
	// TopLevel restricts the list to items without a parent.
	TopLevel bool
	Limit    int
}

func (r Repo) ListItems(ctx context.Context, f ItemFilters) ([]domain.Item, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Parent != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.Parent)
	}
	if f.TopLevel {
		clauses = append(clauses, "parent_id IS NULL")
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + itemColumns + ` FROM items ` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return listItems(ctx, r.DB, query, args...)
}

// ListChildrenTx returns the direct children of parentID.
func (r Repo) ListChildrenTx(ctx context.Context, tx *sql.Tx, parentID string) ([]domain.Item, error) {
	return listItems(ctx, tx, `SELECT `+itemColumns+` FROM items WHERE parent_id=? ORDER BY created_at ASC, id ASC`, parentID)
}

// CountOpenChildrenTx counts direct children that are not done.
func (r Repo) CountOpenChildrenTx(ctx context.Context, tx *sql.Tx, parentID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE parent_id=? AND status<>?`, parentID, domain.StatusDone).Scan(&n)
	return n, err
}

func listItems(ctx context.Context, q querier, query string, args ...any) ([]domain.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}
