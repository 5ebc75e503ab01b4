package entity

import (
	"sync"

	"workboard/internal/domain"
)

// Store is the in-memory item collection for the current view.
// It is safe for concurrent use; readers always receive copies.
type Store struct {
	mu    sync.RWMutex
	items []domain.Item
	index map[string]int
}

func NewStore(items []domain.Item) *Store {
	s := &Store{}
	s.reset(items)
	return s
}

func (s *Store) reset(items []domain.Item) {
	s.items = make([]domain.Item, 0, len(items))
	s.index = make(map[string]int, len(items))
	for _, it := range items {
		if _, dup := s.index[it.ID]; dup {
			continue
		}
		s.index[it.ID] = len(s.items)
		s.items = append(s.items, it.Clone())
	}
}

// Items returns a copy of the collection in store order.
func (s *Store) Items() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Item, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) Get(id string) (domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Item{}, false
	}
	return s.items[i].Clone(), true
}

// Put inserts the item or replaces the one with the same id in place.
func (s *Store) Put(it domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[it.ID]; ok {
		s.items[i] = it.Clone()
		return
	}
	s.index[it.ID] = len(s.items)
	s.items = append(s.items, it.Clone())
}

// Remove deletes the item and reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.reindex()
	return true
}

// Apply patches the item and returns the updated copy.
func (s *Store) Apply(id string, p domain.Patch) (domain.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Item{}, false
	}
	s.items[i].Apply(p)
	return s.items[i].Clone(), true
}

// Rekey swaps the item stored under oldID for it, keeping its position.
// Children referencing oldID as parent are repointed at the new id.
func (s *Store) Rekey(oldID string, it domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[oldID]
	if !ok {
		if _, exists := s.index[it.ID]; !exists {
			s.index[it.ID] = len(s.items)
			s.items = append(s.items, it.Clone())
		}
		return
	}
	if j, exists := s.index[it.ID]; exists && j != i {
		s.items = append(s.items[:j], s.items[j+1:]...)
		if j < i {
			i--
		}
	}
	s.items[i] = it.Clone()
	for k := range s.items {
		if p := s.items[k].ParentID; p != nil && *p == oldID {
			id := it.ID
			s.items[k].ParentID = &id
		}
	}
	s.reindex()
}

// Reconcile replaces the collection with Merge(authoritative, current, pending).
func (s *Store) Reconcile(authoritative []domain.Item, pending PendingFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := Merge(authoritative, s.items, pending)
	s.reset(merged)
}

// Children returns the sub-items of parentID in store order.
func (s *Store) Children(parentID string) []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Item
	for _, it := range s.items {
		if it.ParentID != nil && *it.ParentID == parentID {
			out = append(out, it.Clone())
		}
	}
	return out
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, it := range s.items {
		s.index[it.ID] = i
	}
}
