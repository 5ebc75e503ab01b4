package save

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"workboard/internal/domain"
	"workboard/internal/entity"
)

const (
	DefaultDebounce = 1000 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

var (
	ErrUnknownItem      = errors.New("item not found")
	ErrParentNotCreated = errors.New("parent item has not been created yet")
)

type Options struct {
	// Debounce is the quiet interval before a title or description edit is sent.
	Debounce time.Duration
	// Timeout bounds each background write.
	Timeout  time.Duration
	Notifier Notifier
	Logger   *log.Logger
}

// Coordinator applies edits to the local store immediately and writes them to
// the remote in per-item FIFO lanes. A failed field write is rolled back to the
// exact value captured before the edit, unless a newer edit of the same field
// has been made since.
type Coordinator struct {
	remote   Remote
	store    *entity.Store
	debounce time.Duration
	timeout  time.Duration
	notifier Notifier
	logger   *log.Logger

	mu       sync.Mutex
	seq      uint64
	gens     map[string]map[domain.Field]uint64
	inflight map[string]map[domain.Field]int
	timers   map[string]*pendingEdit
	lanes    map[string]*lane
	ids      map[string]string
	drafts   map[string]*Draft
	children map[string]*childCreate
	failed   map[string]bool
	deleting map[string]bool
	hooks    []func(oldID, newID string)

	wg sync.WaitGroup
}

func New(remote Remote, store *entity.Store, opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Coordinator{
		remote:   remote,
		store:    store,
		debounce: opts.Debounce,
		timeout:  opts.Timeout,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		gens:     map[string]map[domain.Field]uint64{},
		inflight: map[string]map[domain.Field]int{},
		timers:   map[string]*pendingEdit{},
		lanes:    map[string]*lane{},
		ids:      map[string]string{},
		drafts:   map[string]*Draft{},
		children: map[string]*childCreate{},
		failed:   map[string]bool{},
		deleting: map[string]bool{},
	}
}

// Store returns the local store the coordinator writes to.
func (c *Coordinator) Store() *entity.Store { return c.store }

// OnRekey registers fn to run when a temporary id is replaced by a server id.
func (c *Coordinator) OnRekey(fn func(oldID, newID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Resolve maps a retired temporary id to the server id that replaced it.
func (c *Coordinator) Resolve(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveLocked(id)
}

func (c *Coordinator) resolveLocked(id string) string {
	if srv, ok := c.ids[id]; ok {
		return srv
	}
	return id
}

type write struct {
	op         Op
	id         string
	patch      domain.Patch
	prev       domain.Patch
	gens       map[domain.Field]uint64
	undos      []func()
	restore    []domain.Item
	background bool
	done       chan error
}

func newUpdate(id string) *write {
	return &write{
		op:    OpUpdate,
		id:    id,
		patch: domain.Patch{},
		prev:  domain.Patch{},
		gens:  map[domain.Field]uint64{},
	}
}

type pendingEdit struct {
	w     *write
	timer *time.Timer
	token uint64
}

type lane struct {
	queue   []*write
	running bool
}

// Edit changes one field of an item. Title and description edits are
// debounced; every other field is written immediately, after flushing any
// pending debounced edit of the same item.
func (c *Coordinator) Edit(id string, f domain.Field, v any) error {
	return c.edit(id, domain.Patch{f: v}, nil)
}

// EditWithRollback is Edit with undo run after a failed write has been rolled
// back, for callers holding state derived from the edit.
func (c *Coordinator) EditWithRollback(id string, f domain.Field, v any, undo func()) error {
	return c.edit(id, domain.Patch{f: v}, undo)
}

// EditFields changes several fields of an item as one write, so they succeed
// or roll back together. Debounced fields in the patch are sent with it.
func (c *Coordinator) EditFields(id string, patch domain.Patch, undo func()) error {
	return c.edit(id, patch, undo)
}

func (c *Coordinator) edit(id string, patch domain.Patch, undo func()) error {
	norm := domain.Patch{}
	for f, v := range patch {
		if !f.Known() {
			return fmt.Errorf("unknown field %q", f)
		}
		if err := norm.Set(f, v); err != nil {
			return err
		}
	}
	c.mu.Lock()
	id = c.resolveLocked(id)
	if d := c.drafts[id]; d != nil {
		c.mu.Unlock()
		for _, f := range norm.Fields() {
			if err := d.Edit(f, norm[f]); err != nil {
				return err
			}
		}
		return nil
	}
	if entity.IsTemp(id) {
		c.mu.Unlock()
		for _, f := range norm.Fields() {
			if err := c.UpdateChild(id, f, norm[f]); err != nil {
				return err
			}
		}
		return nil
	}
	defer c.mu.Unlock()
	cur, ok := c.store.Get(id)
	if !ok {
		return ErrUnknownItem
	}
	changes := domain.Patch{}
	for f, nv := range norm {
		if !domain.ValuesEqual(cur.Value(f), nv) {
			changes[f] = nv
		}
	}
	if len(changes) == 0 {
		return nil
	}
	c.store.Apply(id, changes)
	if len(changes) == 1 {
		for f, nv := range changes {
			if f.Debounced() {
				c.scheduleLocked(id, f, nv, cur.Value(f), c.bumpLocked(id, f), undo)
				return nil
			}
		}
	}
	if w := c.takePendingLocked(id); w != nil {
		c.enqueueLocked(w)
	}
	w := newUpdate(id)
	for f, nv := range changes {
		w.patch[f] = nv
		w.prev[f] = cur.Value(f)
		w.gens[f] = c.bumpLocked(id, f)
	}
	if undo != nil {
		w.undos = append(w.undos, undo)
	}
	c.enqueueLocked(w)
	return nil
}

func (c *Coordinator) bumpLocked(id string, f domain.Field) uint64 {
	c.seq++
	g := c.gens[id]
	if g == nil {
		g = map[domain.Field]uint64{}
		c.gens[id] = g
	}
	g[f] = c.seq
	return c.seq
}

func (c *Coordinator) scheduleLocked(id string, f domain.Field, v, prev any, gen uint64, undo func()) {
	p := c.timers[id]
	if p == nil {
		p = &pendingEdit{w: newUpdate(id)}
		c.timers[id] = p
	}
	p.w.patch[f] = v
	if _, ok := p.w.prev[f]; !ok {
		p.w.prev[f] = prev
	}
	p.w.gens[f] = gen
	if undo != nil {
		p.w.undos = append(p.w.undos, undo)
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.token++
	token := p.token
	p.timer = time.AfterFunc(c.debounce, func() { c.flushToken(id, token) })
}

func (c *Coordinator) flushToken(id string, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.timers[id]
	if p == nil || p.token != token {
		return
	}
	if w := c.takePendingLocked(id); w != nil {
		c.enqueueLocked(w)
	}
}

func (c *Coordinator) takePendingLocked(id string) *write {
	p := c.timers[id]
	if p == nil {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(c.timers, id)
	return p.w
}

// Flush sends the pending debounced edit of an item now.
func (c *Coordinator) Flush(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w := c.takePendingLocked(c.resolveLocked(id)); w != nil {
		c.enqueueLocked(w)
	}
}

// Close is called when the editing surface of an item goes away. Pending text
// edits are flushed, never dropped.
func (c *Coordinator) Close(id string) { c.Flush(id) }

// FlushAll sends every pending debounced edit.
func (c *Coordinator) FlushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.timers {
		if w := c.takePendingLocked(id); w != nil {
			c.enqueueLocked(w)
		}
	}
}

// Wait blocks until every queued write has finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Shutdown flushes pending edits and waits for the queue to drain or ctx to end.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.FlushAll()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) enqueueLocked(w *write) {
	if w.op == OpUpdate {
		counts := c.inflight[w.id]
		if counts == nil {
			counts = map[domain.Field]int{}
			c.inflight[w.id] = counts
		}
		for f := range w.patch {
			counts[f]++
		}
	}
	l := c.lanes[w.id]
	if l == nil {
		l = &lane{}
		c.lanes[w.id] = l
	}
	l.queue = append(l.queue, w)
	c.wg.Add(1)
	if !l.running {
		l.running = true
		go c.drain(w.id, l)
	}
}

// dropQueuedLocked discards the updates of id that have not started yet.
func (c *Coordinator) dropQueuedLocked(id string) {
	l := c.lanes[id]
	if l == nil {
		return
	}
	kept := l.queue[:0]
	for _, w := range l.queue {
		if w.op != OpUpdate {
			kept = append(kept, w)
			continue
		}
		counts := c.inflight[id]
		for f := range w.patch {
			if counts[f]--; counts[f] <= 0 {
				delete(counts, f)
			}
		}
		if len(counts) == 0 {
			delete(c.inflight, id)
		}
		c.wg.Done()
	}
	l.queue = kept
}

func (c *Coordinator) drain(id string, l *lane) {
	for {
		c.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			if c.lanes[id] == l {
				delete(c.lanes, id)
			}
			c.mu.Unlock()
			return
		}
		w := l.queue[0]
		l.queue = l.queue[1:]
		c.mu.Unlock()
		c.run(w)
		c.wg.Done()
	}
}

func (c *Coordinator) run(w *write) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	switch w.op {
	case OpUpdate:
		c.runUpdate(ctx, w)
	case OpDelete:
		c.runDelete(ctx, w)
	case OpCreate:
		c.runCreateChild(ctx, w)
	}
}

func (c *Coordinator) runUpdate(ctx context.Context, w *write) {
	it, err := c.remote.UpdateItem(ctx, w.id, w.patch.Clone())
	c.mu.Lock()
	counts := c.inflight[w.id]
	for f := range w.patch {
		if counts[f]--; counts[f] <= 0 {
			delete(counts, f)
		}
	}
	if len(counts) == 0 {
		delete(c.inflight, w.id)
	}
	if err != nil {
		if !w.background {
			rollback := domain.Patch{}
			for f, old := range w.prev {
				if c.gens[w.id][f] == w.gens[f] {
					rollback[f] = old
				}
			}
			if len(rollback) > 0 {
				c.store.Apply(w.id, rollback)
			}
		}
		c.mu.Unlock()
		if !w.background {
			for _, undo := range w.undos {
				undo()
			}
		}
		c.fail(newNotice(w.id, OpUpdate, w.patch.Fields(), err))
		return
	}
	c.absorbLocked(it)
	c.mu.Unlock()
}

// absorbLocked takes the server's copy of an item, keeping local values of
// fields that still have unconfirmed writes.
func (c *Coordinator) absorbLocked(it domain.Item) {
	local, ok := c.store.Get(it.ID)
	if !ok {
		return
	}
	merged := entity.Merge([]domain.Item{it}, []domain.Item{local}, c.pendingLocked())
	if len(merged) > 0 {
		c.store.Put(merged[0])
	}
}

func (c *Coordinator) pendingLocked() entity.PendingFields {
	out := entity.PendingFields{}
	mark := func(id string, f domain.Field) {
		if out[id] == nil {
			out[id] = map[domain.Field]bool{}
		}
		out[id][f] = true
	}
	for id, counts := range c.inflight {
		for f, n := range counts {
			if n > 0 {
				mark(id, f)
			}
		}
	}
	for id, p := range c.timers {
		for f := range p.w.patch {
			mark(id, f)
		}
	}
	return out
}

// Pending reports the fields of each item whose local value is not yet confirmed.
func (c *Coordinator) Pending() entity.PendingFields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// Delete removes an item and its sub-items locally and deletes it remotely.
// The local copies come back if the delete fails.
func (c *Coordinator) Delete(id string) error {
	c.mu.Lock()
	id = c.resolveLocked(id)
	if d := c.drafts[id]; d != nil {
		c.mu.Unlock()
		return d.Discard(context.Background())
	}
	if entity.IsTemp(id) {
		c.mu.Unlock()
		return c.RemoveChild(id)
	}
	defer c.mu.Unlock()
	cur, ok := c.store.Get(id)
	if !ok {
		return ErrUnknownItem
	}
	restore := []domain.Item{cur}
	for _, child := range c.store.Children(id) {
		restore = append(restore, child)
		c.store.Remove(child.ID)
	}
	c.takePendingLocked(id)
	c.store.Remove(id)
	c.deleting[id] = true
	c.enqueueLocked(&write{op: OpDelete, id: id, restore: restore})
	return nil
}

func (c *Coordinator) runDelete(ctx context.Context, w *write) {
	err := c.remote.DeleteItem(ctx, w.id)
	if w.done != nil {
		w.done <- err
	}
	c.mu.Lock()
	delete(c.deleting, w.id)
	if err != nil {
		if !w.background {
			for _, it := range w.restore {
				c.store.Put(it)
			}
		}
		c.mu.Unlock()
		c.fail(newNotice(w.id, OpDelete, nil, err))
		return
	}
	delete(c.gens, w.id)
	c.mu.Unlock()
}

// Refresh fetches the authoritative collection and reconciles the local store
// with it. Temporary sub-items whose creation failed are dropped here.
func (c *Coordinator) Refresh(ctx context.Context) error {
	items, err := c.remote.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("refresh items: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.failed {
		c.store.Remove(id)
		delete(c.failed, id)
	}
	auth := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if c.deleting[it.ID] {
			continue
		}
		auth = append(auth, it)
	}
	c.store.Reconcile(auth, c.pendingLocked())
	return nil
}

// Watch refreshes whenever a change event arrives, coalescing bursts, until
// ctx ends or events is closed.
func (c *Coordinator) Watch(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			closed := false
		drain:
			for {
				select {
				case _, ok := <-events:
					if !ok {
						closed = true
						break drain
					}
				default:
					break drain
				}
			}
			if err := c.Refresh(ctx); err != nil {
				c.logger.Printf("save: refresh after change event: %v", err)
			}
			if closed {
				return nil
			}
		}
	}
}

func (c *Coordinator) fail(n Notice) {
	c.logger.Printf("save: %s %s failed: %v", n.Op, n.ItemID, n.Err)
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
}

func (c *Coordinator) rekeyed(oldID, newID string) {
	c.mu.Lock()
	hooks := append([]func(string, string){}, c.hooks...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(oldID, newID)
	}
}

// adoptLocked retires tempID in favour of the created item. Edits made while
// the creation was in flight are applied locally and sent as a follow-up update.
func (c *Coordinator) adoptLocked(tempID string, it domain.Item, followup domain.Patch, background bool) {
	c.ids[tempID] = it.ID
	merged := it.Clone()
	if len(followup) > 0 {
		merged.Apply(followup)
	}
	c.store.Rekey(tempID, merged)
	if len(followup) == 0 {
		return
	}
	w := newUpdate(it.ID)
	w.background = background
	for f, v := range followup {
		w.patch[f] = v
		w.prev[f] = it.Value(f)
		w.gens[f] = c.bumpLocked(it.ID, f)
	}
	c.enqueueLocked(w)
}
