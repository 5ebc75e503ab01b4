package workboardsdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"workboard/internal/config"
	"workboard/internal/db"
	"workboard/internal/domain"
	"workboard/internal/engine"
	"workboard/internal/migrate"
	"workboard/internal/server"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	handler, err := server.New(server.Config{Engine: engine.New(conn, config.Default()), BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	c.ActorID = "sdk-test"
	return c
}

func TestClientItemRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	due := domain.DateOnlyDue(time.Date(2024, 3, 10, 0, 0, 0, 0, time.Local))
	fields := domain.Patch{}
	_ = fields.Set(domain.FieldTitle, "Write docs")
	_ = fields.Set(domain.FieldPriority, domain.PriorityHigh)
	_ = fields.Set(domain.FieldDue, due)
	created, err := c.CreateItem(ctx, fields)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Due == nil || !created.Due.DateOnly {
		t.Fatalf("created %+v", created)
	}

	patch := domain.Patch{}
	_ = patch.Set(domain.FieldPriority, nil)
	_ = patch.Set(domain.FieldLabels, []string{"docs"})
	updated, err := c.UpdateItem(ctx, created.ID, patch)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Priority != nil || len(updated.Labels) != 1 || updated.Title != "Write docs" {
		t.Fatalf("updated %+v", updated)
	}

	items, err := c.ListItems(ctx)
	if err != nil || len(items) != 1 {
		t.Fatalf("list: %v %d", err, len(items))
	}
	if err := c.DeleteItem(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = c.GetItem(ctx, created.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 || apiErr.Code != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestClientSubitemsIncompleteMatchesDomainError(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	parentFields := domain.Patch{}
	_ = parentFields.Set(domain.FieldTitle, "parent")
	parent, err := c.CreateItem(ctx, parentFields)
	if err != nil {
		t.Fatal(err)
	}
	childFields := domain.Patch{}
	_ = childFields.Set(domain.FieldTitle, "child")
	_ = childFields.Set(domain.FieldParent, parent.ID)
	if _, err := c.CreateItem(ctx, childFields); err != nil {
		t.Fatal(err)
	}

	done := domain.Patch{}
	_ = done.Set(domain.FieldStatus, domain.StatusDone)
	_, err = c.UpdateItem(ctx, parent.ID, done)
	if !errors.Is(err, domain.ErrSubitemsIncomplete) {
		t.Fatalf("expected sub-items error, got %v", err)
	}
	kids, err := c.ListItemsFiltered(ctx, ItemFilter{ParentID: parent.ID})
	if err != nil || len(kids) != 1 {
		t.Fatalf("children: %v %d", err, len(kids))
	}
}

func TestClientCommentsAndAttachments(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	fields := domain.Patch{}
	_ = fields.Set(domain.FieldTitle, "x")
	it, err := c.CreateItem(ctx, fields)
	if err != nil {
		t.Fatal(err)
	}

	cm, err := c.AddComment(ctx, it.ID, "looks good")
	if err != nil || cm.AuthorID != "sdk-test" {
		t.Fatalf("comment %+v: %v", cm, err)
	}
	comments, err := c.ListComments(ctx, it.ID)
	if err != nil || len(comments) != 1 {
		t.Fatalf("comments %v %d", err, len(comments))
	}

	att, err := c.AddAttachment(ctx, it.ID, domain.AttachmentUpload{Name: "a.txt", Content: []byte("abc")})
	if err != nil || att.Size != 3 {
		t.Fatalf("attachment %+v: %v", att, err)
	}
	data, ctype, err := c.AttachmentContent(ctx, it.ID, att.ID)
	if err != nil || string(data) != "abc" || ctype == "" {
		t.Fatalf("content %q %q %v", data, ctype, err)
	}
	renamed, err := c.RenameAttachment(ctx, it.ID, att.ID, "b.txt")
	if err != nil || renamed.Name != "b.txt" {
		t.Fatalf("rename %+v %v", renamed, err)
	}
	if err := c.DeleteAttachment(ctx, it.ID, att.ID); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteComment(ctx, it.ID, cm.ID); err != nil {
		t.Fatal(err)
	}

	page, err := c.EventsPage(ctx, 100, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 6 {
		t.Fatalf("expected 6 events, got %d", len(page.Items))
	}
	if page.Items[0].ActorID != "sdk-test" {
		t.Fatalf("actor %q", page.Items[0].ActorID)
	}
}

func TestClientWatch(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := c.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	fields := domain.Patch{}
	_ = fields.Set(domain.FieldTitle, "watched")
	it, err := c.CreateItem(ctx, fields)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case evt, ok := <-stream:
		if !ok {
			t.Fatal("stream closed")
		}
		if evt.EntityID != it.ID || evt.Type != "item.created" {
			t.Fatalf("event %+v", evt)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
	cancel()
	for range stream {
	}
}
