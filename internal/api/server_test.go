package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/quiverkb/quiver/internal/assistant"
	"github.com/quiverkb/quiver/internal/gateway"
	"github.com/quiverkb/quiver/internal/knowledge"
	"github.com/quiverkb/quiver/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testOwner = "alice@example.com"

// fakeStore is an in-memory ItemStore.
type fakeStore struct {
	items  map[int64]knowledge.Item
	nextID int64
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[int64]knowledge.Item{}, nextID: 1}
}

func (f *fakeStore) Create(_ context.Context, item knowledge.NewItem) (*knowledge.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	created := knowledge.Item{
		ID:      f.nextID,
		Owner:   item.Owner,
		Title:   item.Title,
		Content: item.Content,
		Type:    item.Type,
		Tags:    item.Tags,
		Summary: item.Summary,
	}
	if created.Tags == nil {
		created.Tags = []string{}
	}
	f.items[f.nextID] = created
	f.nextID++
	return &created, nil
}

func (f *fakeStore) List(_ context.Context, filter knowledge.Filter) ([]knowledge.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []knowledge.Item
	for _, item := range f.items {
		if filter.Owner != "" && item.Owner != filter.Owner {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeStore) GetByID(_ context.Context, id int64, owner string) (*knowledge.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[id]
	if !ok || item.Owner != owner {
		return nil, knowledge.ErrNotFound
	}
	return &item, nil
}

func (f *fakeStore) Update(_ context.Context, id int64, owner string, p knowledge.Patch) (*knowledge.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[id]
	if !ok || item.Owner != owner {
		return nil, knowledge.ErrNotFound
	}
	if p.Type != nil && !p.Type.Valid() {
		return nil, knowledge.ErrInvalidType
	}
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Content != nil {
		item.Content = *p.Content
	}
	if p.Summary != nil {
		item.Summary = *p.Summary
	}
	if p.Tags != nil {
		item.Tags = *p.Tags
	}
	f.items[id] = item
	return &item, nil
}

func (f *fakeStore) Delete(_ context.Context, id int64, owner string) error {
	if f.err != nil {
		return f.err
	}
	item, ok := f.items[id]
	if !ok || item.Owner != owner {
		return knowledge.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

// fakeAssistant scripts the AI surface.
type fakeAssistant struct {
	chunks      []string
	chatErr     error // returned from ChatStream setup
	streamErr   error // yielded mid-stream after chunks
	answer      *assistant.Answer
	queryErr    error
	enhancement assistant.Enhancement
}

func (f *fakeAssistant) ChatStream(_ context.Context, _ assistant.ChatRequest) (iter.Seq2[string, error], error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return func(yield func(string, error) bool) {
		for _, chunk := range f.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}, nil
}

func (f *fakeAssistant) Query(_ context.Context, _ string) (*assistant.Answer, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.answer, nil
}

func (f *fakeAssistant) Enhance(_ context.Context, _, _ string, tags []string) assistant.Enhancement {
	if len(tags) > 0 {
		return assistant.Enhancement{Summary: f.enhancement.Summary, Tags: tags}
	}
	return f.enhancement
}

func newTestServer(t *testing.T, store ItemStore, ai Assistant) http.Handler {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Store:     store,
		Assistant: ai,
		IsDev:     true,
		RateBurst: 1000,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv.Handler()
}

func doRequest(handler http.Handler, method, path, owner, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServerValidation(t *testing.T) {
	if _, err := NewServer(ServerConfig{Assistant: &fakeAssistant{}}); err == nil {
		t.Error("NewServer() must require a store")
	}
	if _, err := NewServer(ServerConfig{Store: newFakeStore()}); err == nil {
		t.Error("NewServer() must require an assistant")
	}
}

func TestHealthEndpoints(t *testing.T) {
	handler := newTestServer(t, newFakeStore(), &fakeAssistant{})

	for _, path := range []string{"/health", "/ready"} {
		rec := doRequest(handler, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestKnowledgeRequiresIdentity(t *testing.T) {
	handler := newTestServer(t, newFakeStore(), &fakeAssistant{})

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/knowledge"},
		{http.MethodPost, "/api/v1/knowledge"},
		{http.MethodGet, "/api/v1/knowledge/1"},
		{http.MethodPatch, "/api/v1/knowledge/1"},
		{http.MethodDelete, "/api/v1/knowledge/1"},
	}
	for _, tt := range tests {
		rec := doRequest(handler, tt.method, tt.path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without identity = %d, want 401", tt.method, tt.path, rec.Code)
		}
	}
}

func TestCreateKnowledgeItem(t *testing.T) {
	t.Run("applies enhancement", func(t *testing.T) {
		store := newFakeStore()
		ai := &fakeAssistant{enhancement: assistant.Enhancement{
			Summary: "A summary.",
			Tags:    []string{"go", "testing", "notes"},
		}}
		handler := newTestServer(t, store, ai)

		rec := doRequest(handler, http.MethodPost, "/api/v1/knowledge", testOwner,
			`{"title":"T","content":"C","type":"note","url":"https://example.com"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var item knowledge.Item
		if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if item.Summary != "A summary." {
			t.Errorf("summary = %q, want enhancement applied", item.Summary)
		}
		if len(item.Tags) != 3 {
			t.Errorf("tags = %v, want generated tags", item.Tags)
		}
		if !strings.HasSuffix(item.Content, "Source: https://example.com") {
			t.Errorf("content = %q, want source marker", item.Content)
		}
	})

	t.Run("caller tags win over generation", func(t *testing.T) {
		store := newFakeStore()
		ai := &fakeAssistant{enhancement: assistant.Enhancement{Tags: []string{"generated"}}}
		handler := newTestServer(t, store, ai)

		rec := doRequest(handler, http.MethodPost, "/api/v1/knowledge", testOwner,
			`{"title":"T","content":"C","type":"note","tags":"Go, Notes"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d", rec.Code)
		}
		var item knowledge.Item
		if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		want := []string{"go", "notes"}
		if len(item.Tags) != 2 || item.Tags[0] != want[0] || item.Tags[1] != want[1] {
			t.Errorf("tags = %v, want %v", item.Tags, want)
		}
	})

	t.Run("validation", func(t *testing.T) {
		handler := newTestServer(t, newFakeStore(), &fakeAssistant{})

		tests := []struct {
			name, body string
		}{
			{"missing fields", `{"title":"T"}`},
			{"invalid type", `{"title":"T","content":"C","type":"bookmark"}`},
			{"malformed JSON", `{`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := doRequest(handler, http.MethodPost, "/api/v1/knowledge", testOwner, tt.body)
				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want 400", rec.Code)
				}
			})
		}
	})
}

func TestKnowledgeItemLifecycle(t *testing.T) {
	store := newFakeStore()
	handler := newTestServer(t, store, &fakeAssistant{})

	rec := doRequest(handler, http.MethodPost, "/api/v1/knowledge", testOwner,
		`{"title":"Original","content":"Body","type":"note"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var item knowledge.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	path := fmt.Sprintf("/api/v1/knowledge/%d", item.ID)

	rec = doRequest(handler, http.MethodGet, path, testOwner, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}

	rec = doRequest(handler, http.MethodGet, path, "mallory@example.com", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-owner get status = %d, want 404", rec.Code)
	}

	rec = doRequest(handler, http.MethodPatch, path, testOwner, `{"title":"Renamed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if item.Title != "Renamed" {
		t.Errorf("title = %q after patch", item.Title)
	}

	rec = doRequest(handler, http.MethodPatch, path, testOwner, `{"type":"bookmark"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid type patch status = %d, want 400", rec.Code)
	}

	rec = doRequest(handler, http.MethodDelete, path, testOwner, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	rec = doRequest(handler, http.MethodDelete, path, testOwner, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", rec.Code)
	}

	rec = doRequest(handler, http.MethodGet, "/api/v1/knowledge/notanumber", testOwner, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestChat(t *testing.T) {
	const body = `{"messages":[{"role":"user","content":"hello"}]}`

	t.Run("requires identity", func(t *testing.T) {
		handler := newTestServer(t, newFakeStore(), &fakeAssistant{})
		rec := doRequest(handler, http.MethodPost, "/api/v1/chat", "", body)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("requires messages", func(t *testing.T) {
		handler := newTestServer(t, newFakeStore(), &fakeAssistant{})
		rec := doRequest(handler, http.MethodPost, "/api/v1/chat", testOwner, `{"messages":[]}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unconfigured gateway is a JSON error", func(t *testing.T) {
		ai := &fakeAssistant{chatErr: gateway.ErrNotConfigured}
		handler := newTestServer(t, newFakeStore(), ai)

		rec := doRequest(handler, http.MethodPost, "/api/v1/chat", testOwner, body)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("Content-Type = %q, want JSON error", ct)
		}
	})

	t.Run("streams fragments as plain text", func(t *testing.T) {
		ai := &fakeAssistant{chunks: []string{"Hello", ", ", "world"}}
		handler := newTestServer(t, newFakeStore(), ai)

		rec := doRequest(handler, http.MethodPost, "/api/v1/chat", testOwner, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
		if got := rec.Body.String(); got != "Hello, world" {
			t.Errorf("body = %q, want concatenated fragments", got)
		}
	})

	t.Run("error before first fragment is a JSON error", func(t *testing.T) {
		ai := &fakeAssistant{streamErr: errors.New("model refused")}
		handler := newTestServer(t, newFakeStore(), ai)

		rec := doRequest(handler, http.MethodPost, "/api/v1/chat", testOwner, body)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})

	t.Run("mid-stream error aborts the connection", func(t *testing.T) {
		ai := &fakeAssistant{
			chunks:    []string{"partial "},
			streamErr: errors.New("model dropped"),
		}
		handler := newTestServer(t, newFakeStore(), ai)

		defer func() {
			if r := recover(); r != http.ErrAbortHandler {
				t.Errorf("recover() = %v, want http.ErrAbortHandler", r)
			}
		}()
		doRequest(handler, http.MethodPost, "/api/v1/chat", testOwner, body)
		t.Error("handler must panic to abort the stream")
	})
}

func TestBrainQuery(t *testing.T) {
	t.Run("missing q", func(t *testing.T) {
		handler := newTestServer(t, newFakeStore(), &fakeAssistant{})
		rec := doRequest(handler, http.MethodGet, "/api/v1/brain/query", "", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("public with permissive CORS", func(t *testing.T) {
		ai := &fakeAssistant{answer: &assistant.Answer{
			Answer:  "synthesized",
			Sources: []assistant.Source{{ID: 1, Title: "A", URL: "/dashboard?item=1"}},
		}}
		handler := newTestServer(t, newFakeStore(), ai)

		rec := doRequest(handler, http.MethodGet, "/api/v1/brain/query?q=go", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
		}

		var answer assistant.Answer
		if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if answer.Answer != "synthesized" || len(answer.Sources) != 1 {
			t.Errorf("answer = %+v", answer)
		}
	})

	t.Run("pipeline failure", func(t *testing.T) {
		ai := &fakeAssistant{queryErr: errors.New("store down")}
		handler := newTestServer(t, newFakeStore(), ai)

		rec := doRequest(handler, http.MethodGet, "/api/v1/brain/query?q=go", "", "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestRateLimiting(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Store:     newFakeStore(),
		Assistant: &fakeAssistant{},
		IsDev:     true,
		RateBurst: 1,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	handler := srv.Handler()

	rec := doRequest(handler, http.MethodGet, "/api/v1/knowledge", testOwner, "")
	if rec.Code == http.StatusTooManyRequests {
		t.Fatal("first request must pass")
	}

	rec = doRequest(handler, http.MethodGet, "/api/v1/knowledge", testOwner, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 after burst exhausted", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response must carry Retry-After")
	}

	// Health probes sit outside the limited stack.
	rec = doRequest(handler, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestPanicRecovery(t *testing.T) {
	handler := newTestServer(t, &panickyStore{}, &fakeAssistant{})

	rec := doRequest(handler, http.MethodGet, "/api/v1/knowledge", testOwner, "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 from recovery middleware", rec.Code)
	}
}

// panickyStore panics on List to exercise the recovery middleware.
type panickyStore struct{ fakeStore }

func (p *panickyStore) List(context.Context, knowledge.Filter) ([]knowledge.Item, error) {
	panic("store exploded")
}
