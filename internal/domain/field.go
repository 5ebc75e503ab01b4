package domain

import (
	"fmt"
	"sort"
	"time"
)

// Field names an editable item attribute. Its value is the JSON key used on the wire.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldStatus      Field = "status"
	FieldPriority    Field = "priority"
	FieldAssignee    Field = "assignee_id"
	FieldProject     Field = "project_id"
	FieldService     Field = "service"
	FieldTeam        Field = "team_id"
	FieldDue         Field = "due"
	FieldParent      Field = "parent_id"
	FieldLabels      Field = "labels"
)

// Fields lists every editable field in wire order.
var Fields = []Field{
	FieldTitle, FieldDescription, FieldStatus, FieldPriority, FieldAssignee,
	FieldProject, FieldService, FieldTeam, FieldDue, FieldParent, FieldLabels,
}

// Debounced reports whether edits to f are free text that should be coalesced
// before writing. Structured fields are written immediately.
func (f Field) Debounced() bool {
	return f == FieldTitle || f == FieldDescription
}

// Nullable reports whether f may be cleared to null.
func (f Field) Nullable() bool {
	switch f {
	case FieldPriority, FieldAssignee, FieldProject, FieldService, FieldTeam, FieldDue, FieldParent:
		return true
	}
	return false
}

// Known reports whether f is one of the editable fields.
func (f Field) Known() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// Patch carries new values for a set of fields. Values are normalized by Set:
// string for title/description/status, *string for nullable keys, *Due for due
// and []string for labels. A nil pointer clears the field.
type Patch map[Field]any

// Set normalizes v for f and stores it in the patch.
func (p Patch) Set(f Field, v any) error {
	nv, err := NormalizeValue(f, v)
	if err != nil {
		return err
	}
	p[f] = nv
	return nil
}

// Fields returns the patched fields in a stable order.
func (p Patch) Fields() []Field {
	out := make([]Field, 0, len(p))
	for f := range p {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone copies the patch and its values.
func (p Patch) Clone() Patch {
	out := make(Patch, len(p))
	for f, v := range p {
		out[f] = cloneValue(v)
	}
	return out
}

// NormalizeValue converts loosely typed input into the canonical value type for f.
func NormalizeValue(f Field, v any) (any, error) {
	switch f {
	case FieldTitle, FieldDescription, FieldStatus:
		switch x := v.(type) {
		case string:
			return x, nil
		case *string:
			if x == nil {
				return nil, fmt.Errorf("%s cannot be null", f)
			}
			return *x, nil
		}
	case FieldPriority, FieldAssignee, FieldProject, FieldService, FieldTeam, FieldParent:
		switch x := v.(type) {
		case nil:
			return (*string)(nil), nil
		case string:
			return StringPtr(x), nil
		case *string:
			return cloneString(x), nil
		}
	case FieldDue:
		switch x := v.(type) {
		case nil:
			return (*Due)(nil), nil
		case Due:
			return &x, nil
		case *Due:
			if x == nil {
				return (*Due)(nil), nil
			}
			d := *x
			return &d, nil
		case time.Time:
			d := TimedDue(x)
			return &d, nil
		case string:
			if x == "" {
				return (*Due)(nil), nil
			}
			d, err := ParseDue(x, time.Local)
			if err != nil {
				return nil, err
			}
			return &d, nil
		}
	case FieldLabels:
		switch x := v.(type) {
		case nil:
			return []string{}, nil
		case []string:
			return append([]string{}, x...), nil
		}
	default:
		return nil, fmt.Errorf("unknown field %q", f)
	}
	return nil, fmt.Errorf("invalid value %T for %s", v, f)
}

// Value returns the current value of f in the canonical type.
func (it Item) Value(f Field) any {
	switch f {
	case FieldTitle:
		return it.Title
	case FieldDescription:
		return it.Description
	case FieldStatus:
		return it.Status
	case FieldPriority:
		return cloneString(it.Priority)
	case FieldAssignee:
		return cloneString(it.AssigneeID)
	case FieldProject:
		return cloneString(it.ProjectID)
	case FieldService:
		return cloneString(it.Service)
	case FieldTeam:
		return cloneString(it.TeamID)
	case FieldParent:
		return cloneString(it.ParentID)
	case FieldDue:
		return cloneValue(it.Due)
	case FieldLabels:
		return append([]string{}, it.Labels...)
	}
	return nil
}

// Apply writes every patched value into the item. Values must be normalized.
func (it *Item) Apply(p Patch) {
	for f, v := range p {
		it.set(f, v)
	}
}

func (it *Item) set(f Field, v any) {
	switch f {
	case FieldTitle:
		it.Title, _ = v.(string)
	case FieldDescription:
		it.Description, _ = v.(string)
	case FieldStatus:
		it.Status, _ = v.(string)
	case FieldPriority:
		it.Priority = stringPtrValue(v)
	case FieldAssignee:
		it.AssigneeID = stringPtrValue(v)
	case FieldProject:
		it.ProjectID = stringPtrValue(v)
	case FieldService:
		it.Service = stringPtrValue(v)
	case FieldTeam:
		it.TeamID = stringPtrValue(v)
	case FieldParent:
		it.ParentID = stringPtrValue(v)
	case FieldDue:
		d, _ := v.(*Due)
		if d == nil {
			it.Due = nil
			return
		}
		c := *d
		it.Due = &c
	case FieldLabels:
		labels, _ := v.([]string)
		it.Labels = append([]string{}, labels...)
	}
}

// ValuesEqual compares two canonical field values.
func ValuesEqual(a, b any) bool {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case *string:
		y, ok := b.(*string)
		if !ok {
			return x == nil && b == nil
		}
		if x == nil || y == nil {
			return x == nil && y == nil
		}
		return *x == *y
	case *Due:
		y, ok := b.(*Due)
		if !ok {
			return x == nil && b == nil
		}
		if x == nil || y == nil {
			return x == nil && y == nil
		}
		return x.DateOnly == y.DateOnly && x.Time.Equal(y.Time)
	case []string:
		y, ok := b.([]string)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case nil:
		switch y := b.(type) {
		case nil:
			return true
		case *string:
			return y == nil
		case *Due:
			return y == nil
		}
	}
	return false
}

func stringPtrValue(v any) *string {
	s, _ := v.(*string)
	return cloneString(s)
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case *string:
		return cloneString(x)
	case *Due:
		if x == nil {
			return (*Due)(nil)
		}
		d := *x
		return &d
	case []string:
		return append([]string{}, x...)
	}
	return v
}
