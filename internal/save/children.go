package save

import (
	"context"

	"workboard/internal/domain"
	"workboard/internal/entity"
)

// childCreate tracks a sub-item whose creation has not been confirmed.
type childCreate struct {
	dirty   domain.Patch
	removed bool
}

// AddChild adds a sub-item under parentID. The child appears locally at once
// under a temporary id and is created remotely in the background; failures are
// notified but the local list is left as is.
func (c *Coordinator) AddChild(parentID string, fields domain.Patch) (domain.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parentID = c.resolveLocked(parentID)
	if entity.IsTemp(parentID) {
		return domain.Item{}, ErrParentNotCreated
	}
	if _, ok := c.store.Get(parentID); !ok {
		return domain.Item{}, ErrUnknownItem
	}
	patch := domain.Patch{}
	for f, v := range fields {
		if err := patch.Set(f, v); err != nil {
			return domain.Item{}, err
		}
	}
	if _, ok := patch[domain.FieldStatus]; !ok {
		patch[domain.FieldStatus] = domain.StatusTodo
	}
	patch[domain.FieldParent] = domain.StringPtr(parentID)

	child := domain.Item{ID: entity.NewTempID()}
	child.Apply(patch)
	c.store.Put(child)
	c.children[child.ID] = &childCreate{dirty: domain.Patch{}}
	c.enqueueLocked(&write{op: OpCreate, id: child.ID, patch: patch, background: true})
	return child, nil
}

// UpdateChild changes one field of a sub-item. Changes to a child still being
// created are held and sent once its server id is known.
func (c *Coordinator) UpdateChild(childID string, f domain.Field, v any) error {
	nv, err := domain.NormalizeValue(f, v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.resolveLocked(childID)
	if st := c.children[id]; st != nil {
		c.store.Apply(id, domain.Patch{f: nv})
		st.dirty[f] = nv
		return nil
	}
	cur, ok := c.store.Get(id)
	if !ok {
		return ErrUnknownItem
	}
	if entity.IsTemp(id) {
		c.store.Apply(id, domain.Patch{f: nv})
		return nil
	}
	prev := cur.Value(f)
	if domain.ValuesEqual(prev, nv) {
		return nil
	}
	c.store.Apply(id, domain.Patch{f: nv})
	w := newUpdate(id)
	w.background = true
	w.patch[f] = nv
	w.prev[f] = prev
	w.gens[f] = c.bumpLocked(id, f)
	c.enqueueLocked(w)
	return nil
}

// RemoveChild removes a sub-item locally and deletes it remotely in the
// background. A child still being created is deleted once the creation lands.
func (c *Coordinator) RemoveChild(childID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.resolveLocked(childID)
	if st := c.children[id]; st != nil {
		st.removed = true
		c.store.Remove(id)
		return nil
	}
	if !c.store.Remove(id) {
		return ErrUnknownItem
	}
	if entity.IsTemp(id) {
		delete(c.failed, id)
		return nil
	}
	c.takePendingLocked(id)
	c.deleting[id] = true
	c.enqueueLocked(&write{op: OpDelete, id: id, background: true})
	return nil
}

func (c *Coordinator) runCreateChild(ctx context.Context, w *write) {
	it, err := c.remote.CreateItem(ctx, w.patch.Clone())
	c.mu.Lock()
	st := c.children[w.id]
	delete(c.children, w.id)
	if err != nil {
		if st == nil || !st.removed {
			c.failed[w.id] = true
		}
		c.mu.Unlock()
		c.fail(newNotice(w.id, OpCreate, nil, err))
		return
	}
	c.ids[w.id] = it.ID
	if st != nil && st.removed {
		c.deleting[it.ID] = true
		c.enqueueLocked(&write{op: OpDelete, id: it.ID, background: true})
		c.mu.Unlock()
		return
	}
	var followup domain.Patch
	if st != nil {
		followup = st.dirty
	}
	c.adoptLocked(w.id, it, followup, true)
	c.mu.Unlock()
	c.rekeyed(w.id, it.ID)
}
