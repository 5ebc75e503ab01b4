package entity

import (
	"testing"

	"workboard/internal/domain"
)

func ids(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTempIDs(t *testing.T) {
	id := NewTempID()
	if !IsTemp(id) {
		t.Fatalf("%s should be temp", id)
	}
	if IsTemp("0b5d4f3e") {
		t.Fatalf("server id reported as temp")
	}
	if NewTempID() == id {
		t.Fatalf("temp ids must be unique")
	}
}

func TestMergeKeepsUnconfirmedDrafts(t *testing.T) {
	draft := domain.Item{ID: TempPrefix + "1", Title: "draft"}
	local := []domain.Item{{ID: "a", Title: "A"}, draft, {ID: "gone", Title: "deleted upstream"}}
	remote := []domain.Item{{ID: "b", Title: "B"}, {ID: "a", Title: "A2"}}

	got := Merge(remote, local, nil)
	if want := []string{"b", "a", draft.ID}; !equalIDs(ids(got), want) {
		t.Fatalf("ids %v want %v", ids(got), want)
	}
	if got[1].Title != "A2" {
		t.Fatalf("authoritative entry should win, got %q", got[1].Title)
	}
}

func TestMergeDropsDraftOnceServerHasIt(t *testing.T) {
	id := TempPrefix + "x"
	local := []domain.Item{{ID: id}}
	remote := []domain.Item{{ID: id, Title: "server"}}
	got := Merge(remote, local, nil)
	if len(got) != 1 || got[0].Title != "server" {
		t.Fatalf("got %+v", got)
	}
}

func TestMergeKeepsPendingFieldsLocal(t *testing.T) {
	local := []domain.Item{{ID: "a", Title: "typing", Status: domain.StatusDone}}
	remote := []domain.Item{{ID: "a", Title: "stale", Status: domain.StatusTodo, UpdatedAt: "t2"}}
	got := Merge(remote, local, PendingFields{"a": {domain.FieldStatus: true}})
	if got[0].Status != domain.StatusDone {
		t.Fatalf("pending status overwritten: %q", got[0].Status)
	}
	if got[0].Title != "stale" || got[0].UpdatedAt != "t2" {
		t.Fatalf("non-pending fields should come from server: %+v", got[0])
	}
}

func TestStoreRekeyRepointsChildren(t *testing.T) {
	tmp := NewTempID()
	s := NewStore([]domain.Item{
		{ID: "a"},
		{ID: tmp, Title: "draft"},
		{ID: "c", ParentID: domain.StringPtr(tmp)},
	})
	s.Rekey(tmp, domain.Item{ID: "srv-1", Title: "draft"})
	if want := []string{"a", "srv-1", "c"}; !equalIDs(ids(s.Items()), want) {
		t.Fatalf("ids %v want %v", ids(s.Items()), want)
	}
	c, _ := s.Get("c")
	if domain.StringValue(c.ParentID) != "srv-1" {
		t.Fatalf("child parent = %v", domain.StringValue(c.ParentID))
	}
	if _, ok := s.Get(tmp); ok {
		t.Fatalf("temp id should be retired")
	}
}

func TestStoreRekeyWhenRefreshAlreadyAddedServerItem(t *testing.T) {
	tmp := NewTempID()
	s := NewStore([]domain.Item{{ID: tmp}, {ID: "x"}, {ID: "srv"}})
	s.Rekey(tmp, domain.Item{ID: "srv", Title: "confirmed"})
	if want := []string{"srv", "x"}; !equalIDs(ids(s.Items()), want) {
		t.Fatalf("ids %v want %v", ids(s.Items()), want)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore([]domain.Item{{ID: "a", Labels: []string{"x"}}})
	it, _ := s.Get("a")
	it.Labels[0] = "mutated"
	again, _ := s.Get("a")
	if again.Labels[0] != "x" {
		t.Fatalf("store leaked internal slice")
	}
}

func TestStoreReconcile(t *testing.T) {
	tmp := NewTempID()
	s := NewStore([]domain.Item{{ID: "a"}, {ID: tmp}})
	s.Reconcile([]domain.Item{{ID: "b"}}, nil)
	if want := []string{"b", tmp}; !equalIDs(ids(s.Items()), want) {
		t.Fatalf("ids %v want %v", ids(s.Items()), want)
	}
}
