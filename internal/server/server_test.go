package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"workboard/internal/config"
	"workboard/internal/db"
	"workboard/internal/engine"
	"workboard/internal/engine/auth"
	"workboard/internal/events"
	"workboard/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, authCfg AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	hub := events.NewHub(16)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: authCfg, Hub: hub})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			hub.Close()
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createItem(t *testing.T, srv *testServer, body map[string]any) ItemResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/items", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create item status %d: %s", res.StatusCode, string(data))
	}
	var it ItemResponse
	if err := json.Unmarshal(data, &it); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	return it
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func TestItemLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	it := createItem(t, srv, map[string]any{
		"title":    "Ship feature",
		"priority": "high",
		"due":      "2024-03-10T00:00:00",
		"labels":   []string{"web"},
	})
	if it.Status != "todo" || it.Due == nil || *it.Due != "2024-03-10T00:00:00" {
		t.Fatalf("created %+v", it)
	}

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+it.ID, `{"priority":null,"status":"in_progress"}`, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated ItemResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Priority != nil || updated.Status != "in_progress" || updated.Title != "Ship feature" || len(updated.Labels) != 1 {
		t.Fatalf("updated %+v", updated)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list itemList
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != it.ID {
		t.Fatalf("list %+v", list)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/items/"+it.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+it.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound || decodeError(t, data).Code != "not_found" {
		t.Fatalf("get deleted: %d %s", res.StatusCode, string(data))
	}
}

func TestDoneWithOpenSubitemsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	parent := createItem(t, srv, map[string]any{"title": "parent"})
	child := createItem(t, srv, map[string]any{"title": "child", "parent_id": parent.ID})

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+parent.ID, map[string]any{"status": "done"}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	if code := decodeError(t, data).Code; code != "subitems_incomplete" {
		t.Fatalf("code %s", code)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+child.ID, map[string]any{"status": "done"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("child done: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+parent.ID, map[string]any{"status": "done"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("parent done: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items?parent_id="+parent.ID, nil, nil)
	var kids itemList
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &kids) != nil || len(kids.Items) != 1 {
		t.Fatalf("children %d %s", res.StatusCode, string(data))
	}
}

func TestUpdateRejectsBadInput(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	it := createItem(t, srv, map[string]any{"title": "x"})

	cases := []struct {
		name string
		body string
		want int
	}{
		{"null title", `{"title":null}`, http.StatusBadRequest},
		{"bad status", `{"status":"planned"}`, http.StatusBadRequest},
		{"bad priority", `{"priority":"p7"}`, http.StatusBadRequest},
		{"bad due", `{"due":"tomorrow"}`, http.StatusBadRequest},
		{"self parent", `{"parent_id":"` + it.ID + `"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+it.ID, tc.body, nil)
			if res.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, res.StatusCode, string(data))
			}
		})
	}
	res, _ := doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/missing", `{"title":"y"}`, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing item status %d", res.StatusCode)
	}
}

func TestCommentsAndAttachmentsAPI(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	it := createItem(t, srv, map[string]any{"title": "x"})
	base := srv.URL + "/v0/items/" + it.ID

	res, data := doJSON(t, client, http.MethodPost, base+"/comments", map[string]any{"body": "first"}, map[string]string{"X-Actor-Id": "alice"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("comment status %d: %s", res.StatusCode, string(data))
	}
	var c struct {
		ID       string `json:"id"`
		AuthorID string `json:"author_id"`
	}
	_ = json.Unmarshal(data, &c)
	if c.AuthorID != "alice" {
		t.Fatalf("author %q", c.AuthorID)
	}
	res, _ = doJSON(t, client, http.MethodDelete, base+"/comments/"+c.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete comment %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/attachments", map[string]any{
		"name":    "notes.txt",
		"content": []byte("hello"),
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("attachment status %d: %s", res.StatusCode, string(data))
	}
	var a struct {
		ID   string `json:"id"`
		Size int64  `json:"size"`
	}
	_ = json.Unmarshal(data, &a)
	if a.Size != 5 {
		t.Fatalf("size %d", a.Size)
	}
	res, data = doJSON(t, client, http.MethodPatch, base+"/attachments/"+a.ID, map[string]any{"name": "readme.txt"}, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "readme.txt") {
		t.Fatalf("rename %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/attachments/"+a.ID+"/content", nil, nil)
	if res.StatusCode != http.StatusOK || string(data) != "hello" {
		t.Fatalf("content %d: %q", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodDelete, base+"/attachments/"+a.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete attachment %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/attachments", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"items":[]`) {
		t.Fatalf("list attachments %d: %s", res.StatusCode, string(data))
	}
}

func TestEventsCursor(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	for i := 0; i < 3; i++ {
		createItem(t, srv, map[string]any{"title": "e"})
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" || page.Items[0].Type != events.ItemCreated {
		t.Fatalf("page %+v", page)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?cursor="+page.NextCursor, nil, nil)
	var second paginatedEvents
	if err := json.Unmarshal(data, &second); err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("second page %d %s", res.StatusCode, string(data))
	}
	if len(second.Items) != 1 || second.NextCursor != "" || second.Items[0].ID == page.Items[1].ID {
		t.Fatalf("second page %+v", second)
	}
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "s3cret"})
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", res.StatusCode)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/items", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Code != "unauthorized" {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
	token, err := auth.Issue("s3cret", "bob", "", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/items", map[string]any{"title": "x"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("valid token rejected: %d %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), `"title":"x"`) {
		t.Fatalf("created %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events %d: %s", res.StatusCode, string(data))
	}
}

func TestWebsocketPushesChanges(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v0/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	// the subscription is registered after the upgrade completes
	time.Sleep(50 * time.Millisecond)

	it := createItem(t, srv, map[string]any{"title": "pushed"})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt EventResponse
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Type != events.ItemCreated || evt.EntityID != it.ID {
		t.Fatalf("event %+v", evt)
	}
}

func TestOpenAPIServed(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "update-item") {
		t.Fatalf("openapi %d", res.StatusCode)
	}
	if strings.Contains(string(data), "bearerAuth") {
		t.Fatalf("open server should not declare bearer auth")
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/docs", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("docs %d", res.StatusCode)
	}
}

func TestOpenAPIDeclaresBearerAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "s3cret"})
	defer cleanup()
	token, err := auth.Issue("s3cret", "alice", "Alice", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil,
		map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi %d", res.StatusCode)
	}
	var doc struct {
		Security   []map[string][]string `json:"security"`
		Components struct {
			SecuritySchemes map[string]struct {
				Scheme string `json:"scheme"`
			} `json:"securitySchemes"`
		} `json:"components"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Security) != 1 || doc.Security[0]["bearerAuth"] == nil {
		t.Fatalf("security %+v", doc.Security)
	}
	if doc.Components.SecuritySchemes["bearerAuth"].Scheme != "bearer" {
		t.Fatalf("schemes %+v", doc.Components.SecuritySchemes)
	}
}
