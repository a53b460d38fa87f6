package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/groblegark/madrasa/internal/events"
	"github.com/groblegark/madrasa/internal/model"
	"github.com/groblegark/madrasa/internal/store"
)

type mockStore struct {
	mu       sync.Mutex
	items    map[string]*model.Item
	progress map[string]*model.Progress // "user/track"
	events   []*model.Event
	nextSeq  int64

	// appendEventErr, when non-nil, is returned by AppendEvent (for testing
	// that mutations survive a broken event log).
	appendEventErr error
	// listEventsErr, when non-nil, is returned by ListEventsSince.
	listEventsErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		items:    make(map[string]*model.Item),
		progress: make(map[string]*model.Progress),
	}
}

func (m *mockStore) CreateItem(_ context.Context, item *model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *mockStore) GetItem(_ context.Context, id string) (*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *i
	return &clone, nil
}

func (m *mockStore) ListItems(_ context.Context, filter model.ItemFilter) ([]*model.Item, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Item
	for _, i := range m.items {
		if !filter.IncludeDeleted && i.Deleted() {
			continue
		}
		if filter.Owner != "" && i.Owner != filter.Owner {
			continue
		}
		if len(filter.Status) > 0 {
			found := false
			for _, s := range filter.Status {
				if i.Status == s {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(i.Title), strings.ToLower(filter.Search)) {
			continue
		}
		clone := *i
		result = append(result, &clone)
	}
	return result, len(result), nil
}

func (m *mockStore) UpdateItem(_ context.Context, item *model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	m.items[item.ID] = item
	return nil
}

func (m *mockStore) SetItemStatus(_ context.Context, id string, status model.ItemStatus) (*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.items[id]
	if !ok || i.Deleted() {
		return nil, sql.ErrNoRows
	}
	i.Status = status
	i.UpdatedAt = time.Now().UTC()
	clone := *i
	return &clone, nil
}

func (m *mockStore) SoftDeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.items[id]
	if !ok || i.Deleted() {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	i.DeletedAt = &now
	return nil
}

func (m *mockStore) RestoreItem(_ context.Context, id string) (*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.items[id]
	if !ok || !i.Deleted() {
		return nil, sql.ErrNoRows
	}
	i.DeletedAt = nil
	clone := *i
	return &clone, nil
}

func (m *mockStore) HardDeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func (m *mockStore) UpsertProgress(_ context.Context, p *model.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.UserID + "/" + p.TrackID
	if existing, ok := m.progress[key]; ok {
		p.ID = existing.ID
	}
	clone := *p
	m.progress[key] = &clone
	return nil
}

func (m *mockStore) GetProgress(_ context.Context, userID, trackID string) (*model.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[userID+"/"+trackID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (m *mockStore) ListProgress(_ context.Context, userID string) ([]*model.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Progress
	for _, p := range m.progress {
		if p.UserID == userID {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *mockStore) AppendEvent(_ context.Context, event *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendEventErr != nil {
		return m.appendEventErr
	}
	m.nextSeq++
	event.Seq = m.nextSeq
	// Millisecond granularity, matching the events table and the wire cursor.
	event.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	clone := *event
	m.events = append(m.events, &clone)
	return nil
}

func (m *mockStore) ListEventsSince(_ context.Context, since time.Time, afterSeq int64, filter model.EventFilter, limit int) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listEventsErr != nil {
		return nil, m.listEventsErr
	}
	if limit <= 0 || limit > store.MaxEventPage {
		limit = store.MaxEventPage
	}
	var out []*model.Event
	for _, e := range m.events {
		// Without a tiebreaker the timestamp cursor is strictly exclusive.
		if afterSeq > 0 {
			if !(e.CreatedAt.After(since) || (e.CreatedAt.Equal(since) && e.Seq > afterSeq)) {
				continue
			}
		} else if !e.CreatedAt.After(since) {
			continue
		}
		if filter.Owner != "" && e.Owner != filter.Owner {
			continue
		}
		if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
			continue
		}
		clone := *e
		out = append(out, &clone)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) EventsForSubject(_ context.Context, subjectID string) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for _, e := range m.events {
		if e.SubjectID == subjectID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *mockStore) PruneEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*model.Event
	var pruned int64
	for _, e := range m.events {
		if e.CreatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return pruned, nil
}

func (m *mockStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }

// eventKinds returns the kinds of all appended events in order.
func (m *mockStore) eventKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []string
	for _, e := range m.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func newTestServer() (*Server, *mockStore) {
	ms := newMockStore()
	return NewServer(ms, &events.NoopPublisher{}), ms
}

// doRequest runs one request through the full handler stack and decodes the
// JSON response into out (when out is non-nil).
func doRequest(t *testing.T, handler http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec
}

func createTestItem(t *testing.T, handler http.Handler, title, owner string) *model.Item {
	t.Helper()
	var item model.Item
	rec := doRequest(t, handler, "POST", "/v1/items",
		map[string]any{"title": title, "owner": owner, "price_cents": 1000}, &item)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create item: status %d body %s", rec.Code, rec.Body.String())
	}
	return &item
}

func TestHandleCreateItem(t *testing.T) {
	srv, ms := newTestServer()
	handler := srv.NewHTTPHandler("")

	item := createTestItem(t, handler, "Intro to Tajweed", "alice")
	if item.ID == "" {
		t.Fatal("expected generated id")
	}
	if item.Status != model.StatusDraft {
		t.Fatalf("new items start as draft, got %q", item.Status)
	}

	kinds := ms.eventKinds()
	if len(kinds) != 1 || kinds[0] != "created" {
		t.Fatalf("expected [created], got %v", kinds)
	}
	if ms.events[0].Owner != "alice" || ms.events[0].SubjectID != item.ID {
		t.Fatalf("event routing: owner=%q subject=%q", ms.events[0].Owner, ms.events[0].SubjectID)
	}
}

func TestHandleCreateItem_Validation(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.NewHTTPHandler("")

	for name, body := range map[string]map[string]any{
		"missing title":  {"owner": "alice"},
		"missing owner":  {"title": "x"},
		"negative price": {"title": "x", "owner": "alice", "price_cents": -1},
	} {
		rec := doRequest(t, handler, "POST", "/v1/items", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestItemLifecycle(t *testing.T) {
	srv, ms := newTestServer()
	handler := srv.NewHTTPHandler("")

	item := createTestItem(t, handler, "Fiqh of Fasting", "alice")

	// draft -> published
	var published model.Item
	rec := doRequest(t, handler, "POST", "/v1/items/"+item.ID+"/publish", nil, &published)
	if rec.Code != http.StatusOK || published.Status != model.StatusPublished {
		t.Fatalf("publish: status %d item status %q", rec.Code, published.Status)
	}

	// published -> archived
	var archived model.Item
	rec = doRequest(t, handler, "POST", "/v1/items/"+item.ID+"/archive", nil, &archived)
	if rec.Code != http.StatusOK || archived.Status != model.StatusArchived {
		t.Fatalf("archive: status %d item status %q", rec.Code, archived.Status)
	}

	// archived -> published (re-list)
	rec = doRequest(t, handler, "POST", "/v1/items/"+item.ID+"/publish", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("re-publish: status %d", rec.Code)
	}

	// soft delete, then a second delete conflicts
	rec = doRequest(t, handler, "DELETE", "/v1/items/"+item.ID, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doRequest(t, handler, "DELETE", "/v1/items/"+item.ID, nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second delete: expected 409, got %d", rec.Code)
	}

	// restore brings it back
	var restored model.Item
	rec = doRequest(t, handler, "POST", "/v1/items/"+item.ID+"/restore", nil, &restored)
	if rec.Code != http.StatusOK || restored.DeletedAt != nil {
		t.Fatalf("restore: status %d deleted_at %v", rec.Code, restored.DeletedAt)
	}

	// hard delete removes the row, but the history survives
	rec = doRequest(t, handler, "DELETE", "/v1/items/"+item.ID+"/hard", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("hard delete: status %d", rec.Code)
	}
	rec = doRequest(t, handler, "GET", "/v1/items/"+item.ID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after hard delete: expected 404, got %d", rec.Code)
	}

	want := []string{"created", "status_changed", "status_changed", "status_changed", "deleted", "restored", "hard_deleted"}
	got := ms.eventKinds()
	if len(got) != len(want) {
		t.Fatalf("event kinds: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event kinds: got %v, want %v", got, want)
		}
	}
}

func TestChangeItemStatus_InvalidTransition(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.NewHTTPHandler("")

	item := createTestItem(t, handler, "Seerah part 1", "alice")

	// draft -> archived is not a legal transition.
	rec := doRequest(t, handler, "POST", "/v1/items/"+item.ID+"/archive", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestChangeItemStatus_DeletedItem(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.NewHTTPHandler("")

	item := createTestItem(t, handler, "Seerah part 2", "alice")
	doRequest(t, handler, "DELETE", "/v1/items/"+item.ID, nil, nil)

	rec := doRequest(t, handler, "POST", "/v1/items/"+item.ID+"/publish", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on deleted item, got %d", rec.Code)
	}
}

func TestHandleUpdateItem(t *testing.T) {
	srv, ms := newTestServer()
	handler := srv.NewHTTPHandler("")

	item := createTestItem(t, handler, "Old title", "alice")

	var updated model.Item
	rec := doRequest(t, handler, "PATCH", "/v1/items/"+item.ID,
		map[string]any{"title": "New title", "price_cents": 2500}, &updated)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d", rec.Code)
	}
	if updated.Title != "New title" || updated.PriceCents != 2500 {
		t.Fatalf("got title=%q price=%d", updated.Title, updated.PriceCents)
	}

	// No-change PATCH emits no event.
	rec = doRequest(t, handler, "PATCH", "/v1/items/"+item.ID, map[string]any{}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("empty update: status %d", rec.Code)
	}

	kinds := ms.eventKinds()
	if len(kinds) != 2 || kinds[1] != "updated" {
		t.Fatalf("expected [created updated], got %v", kinds)
	}
}

func TestMutationSucceedsWhenEventAppendFails(t *testing.T) {
	srv, ms := newTestServer()
	handler := srv.NewHTTPHandler("")
	ms.appendEventErr = errors.New("log table on fire")

	// The append failure is swallowed; the item is still created.
	item := createTestItem(t, handler, "Resilient item", "alice")

	rec := doRequest(t, handler, "GET", "/v1/items/"+item.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("item should exist despite event failure, got %d", rec.Code)
	}
	if len(ms.eventKinds()) != 0 {
		t.Fatal("no event should have been recorded")
	}
}

func TestHandleSetProgress(t *testing.T) {
	srv, ms := newTestServer()
	handler := srv.NewHTTPHandler("")

	var p model.Progress
	rec := doRequest(t, handler, "PUT", "/v1/progress/alice/tajweed-101",
		map[string]any{"completed": 7, "total": 30}, &p)
	if rec.Code != http.StatusOK {
		t.Fatalf("set progress: status %d body %s", rec.Code, rec.Body.String())
	}
	if p.Completed != 7 || p.Total != 30 {
		t.Fatalf("got completed=%d total=%d", p.Completed, p.Total)
	}

	// Progress events route to the learning user.
	kinds := ms.eventKinds()
	if len(kinds) != 1 || kinds[0] != "updated" {
		t.Fatalf("expected [updated], got %v", kinds)
	}
	if ms.events[0].Owner != "alice" {
		t.Fatalf("progress event owner = %q, want alice", ms.events[0].Owner)
	}

	// A second PUT overwrites with the new absolute value.
	rec = doRequest(t, handler, "PUT", "/v1/progress/alice/tajweed-101",
		map[string]any{"completed": 9, "total": 30}, &p)
	if rec.Code != http.StatusOK || p.Completed != 9 {
		t.Fatalf("overwrite: status %d completed %d", rec.Code, p.Completed)
	}
}

func TestHandleSetProgress_Validation(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.NewHTTPHandler("")

	for name, body := range map[string]map[string]any{
		"negative completed":     {"completed": -1, "total": 10},
		"completed beyond total": {"completed": 11, "total": 10},
	} {
		rec := doRequest(t, handler, "PUT", "/v1/progress/alice/t1", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestHandleGetProgress_NotFound(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.NewHTTPHandler("")

	rec := doRequest(t, handler, "GET", "/v1/progress/alice/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlePollEvents(t *testing.T) {
	srv, ms := newTestServer()
	handler := srv.NewHTTPHandler("")

	createTestItem(t, handler, "First", "alice")
	createTestItem(t, handler, "Second", "bob")

	// since=0 returns everything.
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	rec := doRequest(t, handler, "GET", "/v1/events?since=0", nil, &resp)
	if rec.Code != http.StatusOK || len(resp.Events) != 2 {
		t.Fatalf("status %d, %d events", rec.Code, len(resp.Events))
	}

	// The cursor pair resumes past the first event even within the same
	// millisecond.
	first := resp.Events[0]
	resp.Events = nil
	rec = doRequest(t, handler, "GET",
		"/v1/events?since="+itoa(first.CreatedAt.UnixMilli())+"&after_id="+itoa(first.Seq), nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("cursor poll: status %d", rec.Code)
	}
	for _, e := range resp.Events {
		if e.Seq <= first.Seq {
			t.Fatalf("cursor leak: got seq %d after cursor %d", e.Seq, first.Seq)
		}
	}

	// Owner scoping.
	resp.Events = nil
	rec = doRequest(t, handler, "GET", "/v1/events?since=0&owner=bob", nil, &resp)
	if rec.Code != http.StatusOK || len(resp.Events) != 1 || resp.Events[0].Owner != "bob" {
		t.Fatalf("owner filter: status %d events %v", rec.Code, resp.Events)
	}

	// A query failure degrades to an empty list, not an error.
	ms.listEventsErr = errors.New("events table unavailable")
	resp.Events = nil
	rec = doRequest(t, handler, "GET", "/v1/events?since=0", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded poll: expected 200, got %d", rec.Code)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("degraded poll: expected empty list, got %d events", len(resp.Events))
	}
}

func TestHandlePollEvents_BareSinceExcludesBoundaryEvent(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.NewHTTPHandler("")

	createTestItem(t, handler, "Only item", "alice")

	var resp struct {
		Events []*model.Event `json:"events"`
	}
	rec := doRequest(t, handler, "GET", "/v1/events?since=0", nil, &resp)
	if rec.Code != http.StatusOK || len(resp.Events) != 1 {
		t.Fatalf("status %d, %d events", rec.Code, len(resp.Events))
	}
	boundary := resp.Events[0]

	// A poller that advances its cursor to the newest createdAt it has
	// seen and re-polls without after_id must not re-receive that event.
	resp.Events = nil
	rec = doRequest(t, handler, "GET",
		"/v1/events?since="+itoa(boundary.CreatedAt.UnixMilli()), nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("boundary poll: status %d", rec.Code)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("boundary event redelivered: got seq %d for since=%d",
			resp.Events[0].Seq, boundary.CreatedAt.UnixMilli())
	}

	// One millisecond earlier still includes it.
	resp.Events = nil
	rec = doRequest(t, handler, "GET",
		"/v1/events?since="+itoa(boundary.CreatedAt.UnixMilli()-1), nil, &resp)
	if rec.Code != http.StatusOK || len(resp.Events) != 1 {
		t.Fatalf("pre-boundary poll: status %d, %d events", rec.Code, len(resp.Events))
	}
}

func TestHandlePollEvents_BadCursor(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.NewHTTPHandler("")

	for _, path := range []string{
		"/v1/events?since=abc",
		"/v1/events?since=-5",
		"/v1/events?since=0&after_id=xyz",
		"/v1/events?since=0&after_id=-1",
	} {
		rec := doRequest(t, handler, "GET", path, nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestHandleItemEvents(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.NewHTTPHandler("")

	item := createTestItem(t, handler, "Tracked item", "alice")
	doRequest(t, handler, "POST", "/v1/items/"+item.ID+"/publish", nil, nil)

	var resp struct {
		Events []*model.Event `json:"events"`
	}
	rec := doRequest(t, handler, "GET", "/v1/items/"+item.ID+"/events", nil, &resp)
	if rec.Code != http.StatusOK || len(resp.Events) != 2 {
		t.Fatalf("status %d, %d events", rec.Code, len(resp.Events))
	}
	if resp.Events[0].Kind != "created" || resp.Events[1].Kind != "status_changed" {
		t.Fatalf("got kinds %q, %q", resp.Events[0].Kind, resp.Events[1].Kind)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.NewHTTPHandler("secret-token")

	// Missing header.
	req := httptest.NewRequest("GET", "/v1/items", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: expected 401, got %d", rec.Code)
	}

	// Wrong token.
	req = httptest.NewRequest("GET", "/v1/items", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", rec.Code)
	}

	// Correct token.
	req = httptest.NewRequest("GET", "/v1/items", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("correct token: expected 200, got %d", rec.Code)
	}

	// Health stays open.
	req = httptest.NewRequest("GET", "/v1/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
