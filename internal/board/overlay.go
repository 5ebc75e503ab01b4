package board

// Overlay holds manual per-column orderings produced by completed drags.
// It is presentation state only; it is never persisted or sent to the server.
type Overlay struct {
	entries map[string][]string
}

func (o *Overlay) Get(bucketID string) ([]string, bool) {
	ids, ok := o.entries[bucketID]
	if !ok {
		return nil, false
	}
	return append([]string{}, ids...), true
}

func (o *Overlay) Set(bucketID string, ids []string) {
	if o.entries == nil {
		o.entries = map[string][]string{}
	}
	o.entries[bucketID] = append([]string{}, ids...)
}

// Remove drops id from the bucket's entry, if there is one.
func (o *Overlay) Remove(bucketID, id string) {
	ids, ok := o.entries[bucketID]
	if !ok {
		return
	}
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	o.entries[bucketID] = out
}

func (o *Overlay) Clear() {
	o.entries = nil
}

func (o *Overlay) Len() int { return len(o.entries) }

// Entries returns a copy of every entry.
func (o *Overlay) Entries() map[string][]string {
	out := make(map[string][]string, len(o.entries))
	for k, v := range o.entries {
		out[k] = append([]string{}, v...)
	}
	return out
}

// apply orders ids (already in default order) using the bucket's entry: ids in the
// entry come first in entry order, new arrivals follow in default order.
func (o *Overlay) apply(bucketID string, ids []string) []string {
	entry, ok := o.entries[bucketID]
	if !ok {
		return ids
	}
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}
	out := make([]string, 0, len(ids))
	placed := make(map[string]bool, len(ids))
	for _, id := range entry {
		if member[id] && !placed[id] {
			out = append(out, id)
			placed[id] = true
		}
	}
	for _, id := range ids {
		if !placed[id] {
			out = append(out, id)
		}
	}
	return out
}
