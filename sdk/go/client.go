package workboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"workboard/internal/domain"
)

// Client is a minimal Workboard HTTP API client. It satisfies the remote
// interface used by the save coordinator.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// ActorID is sent as X-Actor-Id when the server runs without auth.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Event is one committed change as returned by the API.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// ItemFilter narrows ListItemsFiltered. Empty fields are ignored.
type ItemFilter struct {
	Status     string
	ParentID   string
	AssigneeID string
	ProjectID  string
	TopLevel   bool
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Is lets callers match server-side validation failures with errors.Is.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrSubitemsIncomplete && e.Code == "subitems_incomplete"
}

// ListItems returns every item.
func (c *Client) ListItems(ctx context.Context) ([]domain.Item, error) {
	return c.ListItemsFiltered(ctx, ItemFilter{})
}

// ListItemsFiltered returns the items matching f.
func (c *Client) ListItemsFiltered(ctx context.Context, f ItemFilter) ([]domain.Item, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.ParentID != "" {
		q.Set("parent_id", f.ParentID)
	}
	if f.AssigneeID != "" {
		q.Set("assignee_id", f.AssigneeID)
	}
	if f.ProjectID != "" {
		q.Set("project_id", f.ProjectID)
	}
	if f.TopLevel {
		q.Set("top_level", "true")
	}
	endpoint := "items"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []domain.Item `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// GetItem fetches one item.
func (c *Client) GetItem(ctx context.Context, id string) (domain.Item, error) {
	var resp domain.Item
	err := c.do(ctx, http.MethodGet, c.itemPath(id, ""), nil, &resp)
	return resp, err
}

// CreateItem creates an item from the given field values.
func (c *Client) CreateItem(ctx context.Context, fields domain.Patch) (domain.Item, error) {
	var resp domain.Item
	err := c.do(ctx, http.MethodPost, "items", patchBody(fields), &resp)
	return resp, err
}

// UpdateItem sends only the fields in patch; nil values clear.
func (c *Client) UpdateItem(ctx context.Context, id string, patch domain.Patch) (domain.Item, error) {
	var resp domain.Item
	err := c.do(ctx, http.MethodPut, c.itemPath(id, ""), patchBody(patch), &resp)
	return resp, err
}

// DeleteItem removes an item and its sub-items.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.itemPath(id, ""), nil, nil)
}

// ListComments returns an item's comments, oldest first.
func (c *Client) ListComments(ctx context.Context, itemID string) ([]domain.Comment, error) {
	var resp struct {
		Items []domain.Comment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.itemPath(itemID, "comments"), nil, &resp)
	return resp.Items, err
}

// AddComment posts a comment as the client's actor.
func (c *Client) AddComment(ctx context.Context, itemID, body string) (domain.Comment, error) {
	var resp domain.Comment
	err := c.do(ctx, http.MethodPost, c.itemPath(itemID, "comments"), map[string]any{"body": body}, &resp)
	return resp, err
}

func (c *Client) DeleteComment(ctx context.Context, itemID, commentID string) error {
	return c.do(ctx, http.MethodDelete, c.itemPath(itemID, "comments/"+url.PathEscape(commentID)), nil, nil)
}

// ListAttachments returns attachment metadata for an item.
func (c *Client) ListAttachments(ctx context.Context, itemID string) ([]domain.Attachment, error) {
	var resp struct {
		Items []domain.Attachment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.itemPath(itemID, "attachments"), nil, &resp)
	return resp.Items, err
}

// AddAttachment uploads a file to an item.
func (c *Client) AddAttachment(ctx context.Context, itemID string, upload domain.AttachmentUpload) (domain.Attachment, error) {
	var resp domain.Attachment
	err := c.do(ctx, http.MethodPost, c.itemPath(itemID, "attachments"), upload, &resp)
	return resp, err
}

// AttachmentContent downloads the raw bytes of an attachment.
func (c *Client) AttachmentContent(ctx context.Context, itemID, attachmentID string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.itemPath(itemID, "attachments/"+url.PathEscape(attachmentID)+"/content"), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", decodeAPIError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	return data, resp.Header.Get("Content-Type"), err
}

func (c *Client) RenameAttachment(ctx context.Context, itemID, attachmentID, name string) (domain.Attachment, error) {
	var resp domain.Attachment
	endpoint := c.itemPath(itemID, "attachments/"+url.PathEscape(attachmentID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) DeleteAttachment(ctx context.Context, itemID, attachmentID string) error {
	return c.do(ctx, http.MethodDelete, c.itemPath(itemID, "attachments/"+url.PathEscape(attachmentID)), nil, nil)
}

// EventsPage returns a paginated event listing after cursor.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Watch streams change events over the websocket until ctx is done or the
// connection drops. The returned channel is closed on exit.
func (c *Client) Watch(ctx context.Context) (<-chan Event, error) {
	u, err := url.Parse(c.prefix() + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	c.authorize(header)
	dialer := websocket.Dialer{HandshakeTimeout: c.timeout()}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	out := make(chan Event, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// patchBody encodes a patch with the wire keys. Nil pointers encode as null.
func patchBody(p domain.Patch) map[string]any {
	body := make(map[string]any, len(p))
	for f, v := range p {
		body[string(f)] = v
	}
	return body
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	url := c.prefix() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req.Header)
	return req, nil
}

func (c *Client) authorize(h http.Header) {
	if c.BearerToken != "" {
		h.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		h.Set("X-Actor-Id", c.ActorID)
	}
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.timeout()}
	}
	return c.HTTPClient
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (c *Client) itemPath(id, sub string) string {
	p := "items/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) prefix() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
