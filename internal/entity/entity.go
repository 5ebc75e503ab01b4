// Package entity holds the in-memory item collection shared by every surface
// and the reconciliation rules applied when the server sends a fresh copy.
package entity

import (
	"strings"

	"github.com/google/uuid"

	"workboard/internal/domain"
)

// TempPrefix marks identifiers generated locally for items the server has not created yet.
const TempPrefix = "temp-"

// NewTempID returns a fresh local identifier.
func NewTempID() string {
	return TempPrefix + uuid.NewString()
}

// IsTemp reports whether id was generated locally.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}

// PendingFields lists, per item id, fields with a local write the server has not confirmed.
type PendingFields map[string]map[domain.Field]bool

// Merge combines an authoritative collection with the local one.
//
// The authoritative list wins, in its order, except that fields with pending local
// writes keep their local value. Local items with a temp id that the server does not
// know yet are appended in local order so an in-flight creation never disappears.
func Merge(authoritative, local []domain.Item, pending PendingFields) []domain.Item {
	localByID := make(map[string]domain.Item, len(local))
	for _, it := range local {
		localByID[it.ID] = it
	}
	seen := make(map[string]bool, len(authoritative))
	out := make([]domain.Item, 0, len(authoritative)+len(local))
	for _, remote := range authoritative {
		merged := remote.Clone()
		seen[remote.ID] = true
		if fields := pending[remote.ID]; len(fields) > 0 {
			if mine, ok := localByID[remote.ID]; ok {
				p := domain.Patch{}
				for f := range fields {
					p[f] = mine.Value(f)
				}
				merged.Apply(p)
			}
		}
		out = append(out, merged)
	}
	for _, it := range local {
		if seen[it.ID] || !IsTemp(it.ID) {
			continue
		}
		out = append(out, it.Clone())
	}
	return out
}
