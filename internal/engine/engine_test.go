package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"workboard/internal/config"
	"workboard/internal/db"
	"workboard/internal/domain"
	"workboard/internal/engine"
	"workboard/internal/events"
	"workboard/internal/migrate"
	"workboard/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Events *recorder
}

type recorder struct {
	mu   sync.Mutex
	evts []domain.Event
}

func (r *recorder) Publish(evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evts = append(r.evts, evt)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.evts))
	for _, e := range r.evts {
		out = append(out, e.Type)
	}
	return out
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Server.MaxAttachmentBytes = 16
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	rec := &recorder{}
	eng.Publisher = rec
	return testEnv{Engine: eng, Ctx: context.Background(), Events: rec}
}

func (env testEnv) create(t *testing.T, p domain.Patch) domain.Item {
	t.Helper()
	it, err := env.Engine.CreateItem(env.Ctx, p, "tester")
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return it
}

func TestCreateItemDefaults(t *testing.T) {
	env := newTestEnv(t)
	it := env.create(t, domain.Patch{domain.FieldTitle: "Do work"})
	if it.ID == "" || it.Status != domain.StatusTodo || it.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("created %+v", it)
	}
	got, err := env.Engine.GetItem(env.Ctx, it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Do work" || got.Labels != nil {
		t.Fatalf("stored %+v", got)
	}
}

func TestCreateItemRejectsBadValues(t *testing.T) {
	env := newTestEnv(t)
	cases := []domain.Patch{
		{domain.FieldStatus: "planned"},
		{domain.FieldPriority: domain.StringPtr("p1")},
		{domain.FieldParent: domain.StringPtr("missing")},
		{domain.FieldLabels: []string{" "}},
	}
	for _, p := range cases {
		_, err := env.Engine.CreateItem(env.Ctx, p, "tester")
		var ve engine.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("patch %v: expected validation error, got %v", p, err)
		}
	}
}

func TestUpdateItemPartialAndNull(t *testing.T) {
	env := newTestEnv(t)
	due, _ := domain.ParseDue("2024-03-10", time.Local)
	it := env.create(t, domain.Patch{
		domain.FieldTitle:    "T",
		domain.FieldPriority: domain.StringPtr(domain.PriorityHigh),
		domain.FieldDue:      &due,
		domain.FieldLabels:   []string{"a"},
	})
	updated, err := env.Engine.UpdateItem(env.Ctx, it.ID, domain.Patch{domain.FieldPriority: (*string)(nil)}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Priority != nil || updated.Title != "T" || updated.Due == nil || !updated.Due.DateOnly {
		t.Fatalf("updated %+v", updated)
	}
	got, _ := env.Engine.GetItem(env.Ctx, it.ID)
	if got.Priority != nil || got.Due.String() != "2024-03-10T00:00:00" || len(got.Labels) != 1 {
		t.Fatalf("stored %+v", got)
	}
}

func TestDoneRequiresSubitemsDone(t *testing.T) {
	env := newTestEnv(t)
	parent := env.create(t, domain.Patch{domain.FieldTitle: "parent"})
	child := env.create(t, domain.Patch{domain.FieldTitle: "child", domain.FieldParent: domain.StringPtr(parent.ID)})

	_, err := env.Engine.UpdateItem(env.Ctx, parent.ID, domain.Patch{domain.FieldStatus: domain.StatusDone}, "tester")
	if !errors.Is(err, domain.ErrSubitemsIncomplete) {
		t.Fatalf("expected ErrSubitemsIncomplete, got %v", err)
	}
	got, _ := env.Engine.GetItem(env.Ctx, parent.ID)
	if got.Status != domain.StatusTodo {
		t.Fatalf("parent changed to %s", got.Status)
	}

	if _, err := env.Engine.UpdateItem(env.Ctx, child.ID, domain.Patch{domain.FieldStatus: domain.StatusDone}, "tester"); err != nil {
		t.Fatal(err)
	}
	done, err := env.Engine.UpdateItem(env.Ctx, parent.ID, domain.Patch{domain.FieldStatus: domain.StatusDone}, "tester")
	if err != nil {
		t.Fatalf("expected parent done after child: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
	reopened, err := env.Engine.UpdateItem(env.Ctx, parent.ID, domain.Patch{domain.FieldStatus: domain.StatusReview}, "tester")
	if err != nil || reopened.CompletedAt != nil {
		t.Fatalf("reopen: %+v %v", reopened, err)
	}
}

func TestParentCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, domain.Patch{domain.FieldTitle: "a"})
	b := env.create(t, domain.Patch{domain.FieldTitle: "b", domain.FieldParent: domain.StringPtr(a.ID)})
	_, err := env.Engine.UpdateItem(env.Ctx, a.ID, domain.Patch{domain.FieldParent: domain.StringPtr(b.ID)}, "tester")
	if !errors.Is(err, engine.ErrHierarchyCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	_, err = env.Engine.UpdateItem(env.Ctx, a.ID, domain.Patch{domain.FieldParent: domain.StringPtr(a.ID)}, "tester")
	if !errors.Is(err, engine.ErrHierarchyCycle) {
		t.Fatalf("expected self-parent cycle error, got %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	parent := env.create(t, domain.Patch{domain.FieldTitle: "parent"})
	child := env.create(t, domain.Patch{domain.FieldTitle: "child", domain.FieldParent: domain.StringPtr(parent.ID)})
	if _, err := env.Engine.AddComment(env.Ctx, parent.ID, "hello", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddAttachment(env.Ctx, parent.ID, domain.AttachmentUpload{Name: "a.txt", Content: []byte("x")}, "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteItem(env.Ctx, parent.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GetItem(env.Ctx, child.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("child survived: %v", err)
	}
	var n int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT (SELECT COUNT(*) FROM comments)+(SELECT COUNT(*) FROM attachments)`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("%d comments/attachments left", n)
	}
	if err := env.Engine.DeleteItem(env.Ctx, parent.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestCommentsAndAttachments(t *testing.T) {
	env := newTestEnv(t)
	it := env.create(t, domain.Patch{domain.FieldTitle: "T"})

	if _, err := env.Engine.AddComment(env.Ctx, it.ID, "  ", "tester"); err == nil {
		t.Fatalf("expected empty comment error")
	}
	c, err := env.Engine.AddComment(env.Ctx, it.ID, "looks good", "tester")
	if err != nil {
		t.Fatal(err)
	}
	list, err := env.Engine.ListComments(env.Ctx, it.ID)
	if err != nil || len(list) != 1 || list[0].AuthorID != "tester" {
		t.Fatalf("comments %+v %v", list, err)
	}
	if err := env.Engine.DeleteComment(env.Ctx, it.ID, c.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	a, err := env.Engine.AddAttachment(env.Ctx, it.ID, domain.AttachmentUpload{Name: "notes.txt", Content: []byte("hi")}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if a.Size != 2 || a.ContentType == "" {
		t.Fatalf("attachment %+v", a)
	}
	if _, err := env.Engine.AddAttachment(env.Ctx, it.ID, domain.AttachmentUpload{Name: "big.bin", Content: make([]byte, 17)}, "tester"); err == nil {
		t.Fatalf("expected size limit error")
	}
	renamed, err := env.Engine.RenameAttachment(env.Ctx, it.ID, a.ID, "readme.txt", "tester")
	if err != nil || renamed.Name != "readme.txt" {
		t.Fatalf("rename %+v %v", renamed, err)
	}
	meta, content, err := env.Engine.AttachmentContent(env.Ctx, it.ID, a.ID)
	if err != nil || string(content) != "hi" || meta.Name != "readme.txt" {
		t.Fatalf("content %+v %q %v", meta, content, err)
	}
	if err := env.Engine.DeleteAttachment(env.Ctx, it.ID, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if atts, _ := env.Engine.ListAttachments(env.Ctx, it.ID); len(atts) != 0 {
		t.Fatalf("attachments %+v", atts)
	}
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	it := env.create(t, domain.Patch{domain.FieldTitle: "evented"})
	if _, err := env.Engine.UpdateItem(env.Ctx, it.ID, domain.Patch{domain.FieldStatus: domain.StatusReview}, "tester"); err != nil {
		t.Fatal(err)
	}
	// same value: no change, no event
	if _, err := env.Engine.UpdateItem(env.Ctx, it.ID, domain.Patch{domain.FieldStatus: domain.StatusReview}, "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteItem(env.Ctx, it.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	want := []string{events.ItemCreated, events.ItemUpdated, events.ItemDeleted}
	got := env.Events.types()
	if len(got) != len(want) {
		t.Fatalf("events %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events %v", got)
		}
	}
	logged, err := env.Engine.Repo.EventsAfter(env.Ctx, 10, 0, "item", it.ID)
	if err != nil || len(logged) != 3 {
		t.Fatalf("event log %+v %v", logged, err)
	}
}

func TestFailedUpdateWritesNoEvent(t *testing.T) {
	env := newTestEnv(t)
	parent := env.create(t, domain.Patch{domain.FieldTitle: "p"})
	env.create(t, domain.Patch{domain.FieldTitle: "c", domain.FieldParent: domain.StringPtr(parent.ID)})
	before, _ := env.Engine.Repo.LatestEventID(env.Ctx)
	if _, err := env.Engine.UpdateItem(env.Ctx, parent.ID, domain.Patch{domain.FieldStatus: domain.StatusDone}, "tester"); err == nil {
		t.Fatalf("expected failure")
	}
	after, _ := env.Engine.Repo.LatestEventID(env.Ctx)
	if before != after {
		t.Fatalf("event written for failed update")
	}
}
