package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workboard/internal/config"
	"workboard/internal/domain"
	"workboard/internal/events"
	"workboard/internal/repo"
)

// ErrHierarchyCycle is returned when a parent change would make an item its own ancestor.
var ErrHierarchyCycle = errors.New("item hierarchy cycle detected")

// ValidationError rejects a malformed field value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	// Publisher is told about each event once its transaction commits.
	Publisher events.Publisher
	Config    *config.Config
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) publish(evts ...domain.Event) {
	if e.Publisher == nil {
		return
	}
	for _, evt := range evts {
		e.Publisher.Publish(evt)
	}
}

func (e Engine) ListItems(ctx context.Context, f repo.ItemFilters) ([]domain.Item, error) {
	return e.Repo.ListItems(ctx, f)
}

func (e Engine) GetItem(ctx context.Context, id string) (domain.Item, error) {
	return e.Repo.GetItem(ctx, id)
}

// CreateItem stores a new item built from fields. Status defaults to todo.
func (e Engine) CreateItem(ctx context.Context, fields domain.Patch, actorID string) (domain.Item, error) {
	if err := validatePatch(fields); err != nil {
		return domain.Item{}, err
	}
	now := e.timestamp()
	it := domain.Item{ID: uuid.NewString(), Status: domain.StatusTodo, CreatedAt: now, UpdatedAt: now}
	it.Apply(fields)
	if it.Status == domain.StatusDone {
		it.CompletedAt = &now
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Item{}, err
	}
	defer tx.Rollback()

	if it.IsChild() {
		if _, err := e.Repo.GetItemTx(ctx, tx, *it.ParentID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Item{}, ValidationError{Field: string(domain.FieldParent), Message: "parent item not found"}
			}
			return domain.Item{}, err
		}
	}
	if err := e.Repo.InsertItem(ctx, tx, it); err != nil {
		return domain.Item{}, err
	}
	evt, err := e.Events.Append(ctx, tx, events.ItemCreated, "item", it.ID, actorID, events.EventPayload{
		"title":     it.Title,
		"status":    it.Status,
		"parent_id": it.ParentID,
	})
	if err != nil {
		return domain.Item{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Item{}, err
	}
	e.publish(evt)
	return it, nil
}

// UpdateItem applies a partial change. Moving an item to done fails with
// domain.ErrSubitemsIncomplete while any direct child is not done.
func (e Engine) UpdateItem(ctx context.Context, id string, patch domain.Patch, actorID string) (domain.Item, error) {
	if err := validatePatch(patch); err != nil {
		return domain.Item{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Item{}, err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetItemTx(ctx, tx, id)
	if err != nil {
		return it, err
	}
	before := it.Clone()
	it.Apply(patch)

	if p, ok := patch[domain.FieldParent]; ok && !domain.ValuesEqual(p, before.ParentID) && it.IsChild() {
		if err := e.ensureNoCycle(ctx, tx, *it.ParentID, it.ID); err != nil {
			return before, err
		}
	}
	now := e.timestamp()
	if it.Status != before.Status {
		if it.Status == domain.StatusDone {
			open, err := e.Repo.CountOpenChildrenTx(ctx, tx, it.ID)
			if err != nil {
				return before, err
			}
			if open > 0 {
				return before, fmt.Errorf("%d open sub-items: %w", open, domain.ErrSubitemsIncomplete)
			}
			it.CompletedAt = &now
		} else {
			it.CompletedAt = nil
		}
	}
	changed := map[string]any{}
	for _, f := range patch.Fields() {
		if !domain.ValuesEqual(before.Value(f), it.Value(f)) {
			changed[string(f)] = it.Value(f)
		}
	}
	if len(changed) == 0 {
		return before, nil
	}
	it.UpdatedAt = now
	if err := e.Repo.UpdateItem(ctx, tx, it); err != nil {
		return before, err
	}
	evt, err := e.Events.Append(ctx, tx, events.ItemUpdated, "item", it.ID, actorID, events.EventPayload{"changes": changed})
	if err != nil {
		return before, err
	}
	if err := tx.Commit(); err != nil {
		return before, err
	}
	e.publish(evt)
	return it, nil
}

func (e Engine) ensureNoCycle(ctx context.Context, tx *sql.Tx, parentID, childID string) error {
	// climb up the parent chain looking for the child
	cur := parentID
	for cur != "" {
		if cur == childID {
			return ErrHierarchyCycle
		}
		p, err := e.Repo.GetItemTx(ctx, tx, cur)
		if errors.Is(err, repo.ErrNotFound) {
			return ValidationError{Field: string(domain.FieldParent), Message: "parent item not found"}
		}
		if err != nil {
			return err
		}
		cur = domain.StringValue(p.ParentID)
	}
	return nil
}

// DeleteItem removes an item together with its sub-items, comments and attachments.
func (e Engine) DeleteItem(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetItemTx(ctx, tx, id)
	if err != nil {
		return err
	}
	children, err := e.Repo.ListChildrenTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteItem(ctx, tx, id); err != nil {
		return err
	}
	childIDs := make([]string, 0, len(children))
	for _, c := range children {
		childIDs = append(childIDs, c.ID)
	}
	evt, err := e.Events.Append(ctx, tx, events.ItemDeleted, "item", id, actorID, events.EventPayload{
		"title":    it.Title,
		"children": childIDs,
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish(evt)
	return nil
}

func validatePatch(p domain.Patch) error {
	for f, v := range p {
		if !f.Known() {
			return ValidationError{Field: string(f), Message: "unknown field"}
		}
		switch f {
		case domain.FieldStatus:
			s, _ := v.(string)
			if !domain.ValidStatus(s) {
				return ValidationError{Field: string(f), Message: fmt.Sprintf("unknown status %q", s)}
			}
		case domain.FieldPriority:
			s, _ := v.(*string)
			if s == nil {
				continue
			}
			if canonical, ok := domain.NormalizePriority(*s); !ok || canonical != *s {
				return ValidationError{Field: string(f), Message: fmt.Sprintf("unknown priority %q", *s)}
			}
		case domain.FieldTitle:
			s, _ := v.(string)
			if len(s) > 500 {
				return ValidationError{Field: string(f), Message: "longer than 500 characters"}
			}
		case domain.FieldLabels:
			labels, _ := v.([]string)
			for _, l := range labels {
				if strings.TrimSpace(l) == "" {
					return ValidationError{Field: string(f), Message: "empty label"}
				}
			}
		}
	}
	return nil
}
