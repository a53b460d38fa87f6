package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/groblegark/madrasa/internal/model"
)

// HTTPClient implements Client using the madrasa HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Item CRUD ---

func (c *HTTPClient) CreateItem(ctx context.Context, req *CreateItemRequest) (*model.Item, error) {
	var item model.Item
	if err := c.doJSON(ctx, http.MethodPost, "/v1/items", req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *HTTPClient) GetItem(ctx context.Context, id string) (*model.Item, error) {
	var item model.Item
	if err := c.doJSON(ctx, http.MethodGet, "/v1/items/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *HTTPClient) ListItems(ctx context.Context, req *ListItemsRequest) (*ListItemsResponse, error) {
	q := url.Values{}
	if len(req.Status) > 0 {
		q.Set("status", strings.Join(req.Status, ","))
	}
	if req.Owner != "" {
		q.Set("owner", req.Owner)
	}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	if req.IncludeDeleted {
		q.Set("include_deleted", "true")
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	path := "/v1/items"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListItemsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) UpdateItem(ctx context.Context, id string, req *UpdateItemRequest) (*model.Item, error) {
	var item model.Item
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/items/"+url.PathEscape(id), req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *HTTPClient) PublishItem(ctx context.Context, id, actor string) (*model.Item, error) {
	return c.postLifecycle(ctx, id, "publish", actor)
}

func (c *HTTPClient) ArchiveItem(ctx context.Context, id, actor string) (*model.Item, error) {
	return c.postLifecycle(ctx, id, "archive", actor)
}

func (c *HTTPClient) RestoreItem(ctx context.Context, id, actor string) (*model.Item, error) {
	return c.postLifecycle(ctx, id, "restore", actor)
}

func (c *HTTPClient) postLifecycle(ctx context.Context, id, verb, actor string) (*model.Item, error) {
	path := "/v1/items/" + url.PathEscape(id) + "/" + verb
	if actor != "" {
		path += "?actor=" + url.QueryEscape(actor)
	}
	var item model.Item
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *HTTPClient) DeleteItem(ctx context.Context, id, actor string) error {
	path := "/v1/items/" + url.PathEscape(id)
	if actor != "" {
		path += "?actor=" + url.QueryEscape(actor)
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) HardDeleteItem(ctx context.Context, id, actor string) error {
	path := "/v1/items/" + url.PathEscape(id) + "/hard"
	if actor != "" {
		path += "?actor=" + url.QueryEscape(actor)
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) ItemEvents(ctx context.Context, id string) ([]*model.Event, error) {
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/items/"+url.PathEscape(id)+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Progress ---

func (c *HTTPClient) SetProgress(ctx context.Context, userID, trackID string, completed, total int) (*model.Progress, error) {
	body := map[string]int{"completed": completed, "total": total}
	var p model.Progress
	path := "/v1/progress/" + url.PathEscape(userID) + "/" + url.PathEscape(trackID)
	if err := c.doJSON(ctx, http.MethodPut, path, body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) GetProgress(ctx context.Context, userID, trackID string) (*model.Progress, error) {
	var p model.Progress
	path := "/v1/progress/" + url.PathEscape(userID) + "/" + url.PathEscape(trackID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) ListProgress(ctx context.Context, userID string) ([]*model.Progress, error) {
	var resp struct {
		Progress []*model.Progress `json:"progress"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/progress/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Progress, nil
}

// --- Change notification ---

func (c *HTTPClient) EventsSince(ctx context.Context, req *EventsSinceRequest) ([]*model.Event, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(req.SinceMillis, 10))
	if req.AfterSeq > 0 {
		q.Set("after_id", strconv.FormatInt(req.AfterSeq, 10))
	}
	if req.Owner != "" {
		q.Set("owner", req.Owner)
	}
	if req.Subject != "" {
		q.Set("subject", req.Subject)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/events?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// StreamEvents opens the SSE push stream for the given owner and returns a
// channel of decoded events plus a cancel function. The channel is closed
// when the stream ends for any reason; reconnecting with backoff is the
// caller's job (the sync agent does this).
func (c *HTTPClient) StreamEvents(ctx context.Context, owner string) (<-chan *model.Event, func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)

	u := c.baseURL + "/v1/events/stream?owner=" + url.QueryEscape(owner)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("creating stream request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("connecting to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: "event stream rejected"}
	}

	ch := make(chan *model.Event, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		var data string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimPrefix(line, "data:")
			case line == "":
				// Blank line ends one SSE message; keepalive comments
				// carry no data and are skipped.
				if data == "" {
					continue
				}
				var evt model.Event
				if err := json.Unmarshal([]byte(data), &evt); err == nil {
					select {
					case ch <- &evt:
					case <-streamCtx.Done():
						return
					}
				}
				data = ""
			}
		}
	}()

	return ch, cancel, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- Internals ---

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 carries no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
