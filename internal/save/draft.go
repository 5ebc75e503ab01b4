package save

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"workboard/internal/domain"
	"workboard/internal/entity"
)

var (
	ErrDraftDiscarded = errors.New("draft was discarded")
	ErrDraftConfirmed = errors.New("draft was already created")
)

const createKey = "create"

// Draft is an item being composed before it exists on the server. It accepts
// edits under a temporary id; the first action needing a server id creates the
// item exactly once, however many callers ask concurrently.
type Draft struct {
	c      *Coordinator
	tempID string
	group  singleflight.Group

	mu        sync.Mutex
	fields    domain.Patch
	dirty     domain.Patch
	inflight  bool
	serverID  string
	confirmed bool
	discarded bool
}

// NewDraft starts a draft with the given initial fields and shows it in the
// local store under a temporary id.
func (c *Coordinator) NewDraft(initial domain.Patch) (*Draft, error) {
	fields := domain.Patch{}
	for f, v := range initial {
		if err := fields.Set(f, v); err != nil {
			return nil, err
		}
	}
	if _, ok := fields[domain.FieldStatus]; !ok {
		fields[domain.FieldStatus] = domain.StatusTodo
	}
	d := &Draft{c: c, tempID: entity.NewTempID(), fields: fields}
	it := domain.Item{ID: d.tempID}
	it.Apply(fields)
	c.mu.Lock()
	c.drafts[d.tempID] = d
	c.mu.Unlock()
	c.store.Put(it)
	return d, nil
}

// TempID is the identifier the draft was opened with.
func (d *Draft) TempID() string { return d.tempID }

// ID returns the server id once created, otherwise the temporary id.
func (d *Draft) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.serverID != "" {
		return d.serverID
	}
	return d.tempID
}

// Created reports whether the server has assigned an id.
func (d *Draft) Created() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serverID != ""
}

// Edit changes a field of the draft. Before creation the change stays local and
// becomes part of the create request, or of a follow-up update when a creation
// is already in flight. After creation it is an ordinary coordinator edit.
func (d *Draft) Edit(f domain.Field, v any) error {
	nv, err := domain.NormalizeValue(f, v)
	if err != nil {
		return err
	}
	d.mu.Lock()
	if d.discarded {
		d.mu.Unlock()
		return ErrDraftDiscarded
	}
	if id := d.serverID; id != "" {
		d.mu.Unlock()
		return d.c.Edit(id, f, nv)
	}
	d.fields[f] = nv
	if d.inflight {
		d.dirty[f] = nv
	}
	d.mu.Unlock()
	d.c.store.Apply(d.tempID, domain.Patch{f: nv})
	return nil
}

// EnsureCreated returns the server id, creating the item if needed. Concurrent
// callers share one create request and all observe the same id.
func (d *Draft) EnsureCreated(ctx context.Context) (string, error) {
	d.mu.Lock()
	if d.serverID != "" {
		id := d.serverID
		d.mu.Unlock()
		return id, nil
	}
	if d.discarded {
		d.mu.Unlock()
		return "", ErrDraftDiscarded
	}
	d.mu.Unlock()
	v, err, _ := d.group.Do(createKey, func() (any, error) { return d.create(ctx) })
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (d *Draft) create(ctx context.Context) (string, error) {
	d.mu.Lock()
	if d.serverID != "" {
		id := d.serverID
		d.mu.Unlock()
		return id, nil
	}
	if d.discarded {
		d.mu.Unlock()
		return "", ErrDraftDiscarded
	}
	fields := d.fields.Clone()
	d.inflight = true
	d.dirty = domain.Patch{}
	d.mu.Unlock()

	it, err := d.c.remote.CreateItem(ctx, fields)

	d.mu.Lock()
	d.inflight = false
	if err != nil {
		d.mu.Unlock()
		d.c.fail(newNotice(d.tempID, OpCreate, nil, err))
		return "", fmt.Errorf("create item: %w", err)
	}
	d.serverID = it.ID
	if d.discarded {
		d.mu.Unlock()
		return it.ID, nil
	}
	followup := d.dirty
	d.dirty = nil
	d.c.mu.Lock()
	delete(d.c.drafts, d.tempID)
	d.c.adoptLocked(d.tempID, it, followup, false)
	d.c.mu.Unlock()
	d.mu.Unlock()
	d.c.rekeyed(d.tempID, it.ID)
	return it.ID, nil
}

// Attach uploads an attachment, creating the draft first when necessary.
func (d *Draft) Attach(ctx context.Context, upload domain.AttachmentUpload) (domain.Attachment, error) {
	id, err := d.EnsureCreated(ctx)
	if err != nil {
		return domain.Attachment{}, err
	}
	a, err := d.c.remote.AddAttachment(ctx, id, upload)
	if err != nil {
		d.c.fail(newNotice(id, OpAttach, nil, err))
		return domain.Attachment{}, err
	}
	return a, nil
}

// Create confirms the draft. If the item was already created to accept an
// attachment, the same server id is reused.
func (d *Draft) Create(ctx context.Context) (domain.Item, error) {
	id, err := d.EnsureCreated(ctx)
	if err != nil {
		return domain.Item{}, err
	}
	d.mu.Lock()
	d.confirmed = true
	d.mu.Unlock()
	d.c.Flush(id)
	it, ok := d.c.store.Get(id)
	if !ok {
		return domain.Item{}, ErrUnknownItem
	}
	return it, nil
}

// Discard abandons the draft. An item created on its behalf but never
// confirmed is deleted on the server.
func (d *Draft) Discard(ctx context.Context) error {
	d.mu.Lock()
	if d.confirmed {
		d.mu.Unlock()
		return ErrDraftConfirmed
	}
	if d.discarded {
		d.mu.Unlock()
		return nil
	}
	d.discarded = true
	id, inflight := d.serverID, d.inflight
	d.mu.Unlock()

	d.c.mu.Lock()
	delete(d.c.drafts, d.tempID)
	d.c.mu.Unlock()
	d.c.store.Remove(d.tempID)

	if id == "" && inflight {
		v, err, _ := d.group.Do(createKey, func() (any, error) { return d.create(ctx) })
		if err != nil {
			return nil
		}
		id = v.(string)
	}
	if id == "" {
		return nil
	}
	// The delete joins the item's lane so a follow-up update still in flight
	// lands first; updates that have not started are dropped.
	done := make(chan error, 1)
	d.c.mu.Lock()
	d.c.takePendingLocked(id)
	d.c.dropQueuedLocked(id)
	d.c.deleting[id] = true
	d.c.enqueueLocked(&write{op: OpDelete, id: id, background: true, done: done})
	d.c.mu.Unlock()
	d.c.store.Remove(id)
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("delete discarded draft: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
