package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bonfirelabs/bonfire/internal/chat"
	"github.com/bonfirelabs/bonfire/internal/pipeline"
)

type fakeHandler struct {
	outcome *pipeline.Outcome
	err     error
	last    pipeline.Incoming
	calls   int
}

func (f *fakeHandler) Handle(ctx context.Context, in pipeline.Incoming) (*pipeline.Outcome, error) {
	f.calls++
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

func newTestServer(t *testing.T, handler *fakeHandler) (*httptest.Server, *chat.Store, *chat.Room) {
	t.Helper()
	store, err := chat.NewStore(filepath.Join(t.TempDir(), "bonfire.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	room, err := store.CreateRoom("testers")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	srv := httptest.NewServer(NewServer(store, handler).Router())
	t.Cleanup(srv.Close)
	return srv, store, room
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeHandler{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestPostMessageReply(t *testing.T) {
	handler := &fakeHandler{outcome: &pipeline.Outcome{Replied: true, Text: "lol sure", MessageID: "reply-1"}}
	srv, store, room := newTestServer(t, handler)

	resp := postJSON(t, fmt.Sprintf("%s/api/rooms/%s/messages", srv.URL, room.ID),
		`{"authorId":"user-1","authorName":"alice","content":"@bonfire hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["text"] != "lol sure" {
		t.Errorf("text = %v", body["text"])
	}
	if body["replyId"] != "reply-1" {
		t.Errorf("replyId = %v", body["replyId"])
	}

	// Pipeline saw the persisted message, not a raw request.
	if handler.last.MessageID == "" {
		t.Error("pipeline received no message id")
	}
	history, _ := store.RecentHistory(room.ID, 10)
	if len(history) != 1 || history[0].Content != "@bonfire hi" {
		t.Errorf("history = %+v", history)
	}
}

func TestPostMessageSilent(t *testing.T) {
	handler := &fakeHandler{outcome: &pipeline.Outcome{Silent: true, Reason: "no_trigger"}}
	srv, _, room := newTestServer(t, handler)

	resp := postJSON(t, fmt.Sprintf("%s/api/rooms/%s/messages", srv.URL, room.ID),
		`{"authorId":"user-1","content":"meh"}`)
	body := decodeBody(t, resp)
	if body["silent"] != true {
		t.Errorf("silent = %v", body["silent"])
	}
	if body["reason"] != "no_trigger" {
		t.Errorf("reason = %v", body["reason"])
	}
}

func TestPostMessagePipelineErrorKeepsUserMessage(t *testing.T) {
	handler := &fakeHandler{err: fmt.Errorf("model down")}
	srv, store, room := newTestServer(t, handler)

	resp := postJSON(t, fmt.Sprintf("%s/api/rooms/%s/messages", srv.URL, room.ID),
		`{"authorId":"user-1","content":"@bonfire hi"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	resp.Body.Close()

	history, _ := store.RecentHistory(room.ID, 10)
	if len(history) != 1 {
		t.Errorf("user message lost on pipeline failure, history = %+v", history)
	}
}

func TestPostMessagePrivateSkipsPipeline(t *testing.T) {
	handler := &fakeHandler{}
	srv, store, room := newTestServer(t, handler)

	resp := postJSON(t, fmt.Sprintf("%s/api/rooms/%s/messages", srv.URL, room.ID),
		`{"authorId":"user-1","content":"secret note","isPrivate":true}`)
	body := decodeBody(t, resp)
	if body["silent"] != true || body["reason"] != "private" {
		t.Errorf("body = %v", body)
	}
	if handler.calls != 0 {
		t.Errorf("pipeline ran %d times for a private message, want 0", handler.calls)
	}

	// Stored, but invisible to history reads.
	history, _ := store.RecentHistory(room.ID, 10)
	if len(history) != 0 {
		t.Errorf("private message leaked into history: %+v", history)
	}
}

func TestPostMessageValidation(t *testing.T) {
	srv, _, room := newTestServer(t, &fakeHandler{})

	resp := postJSON(t, fmt.Sprintf("%s/api/rooms/%s/messages", srv.URL, room.ID), `{"authorId":"user-1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty content status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, fmt.Sprintf("%s/api/rooms/%s/messages", srv.URL, room.ID), `{"content":"hi"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing author status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/rooms/does-not-exist/messages", `{"authorId":"u","content":"hi"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown room status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListMessagesOldestFirst(t *testing.T) {
	srv, store, room := newTestServer(t, &fakeHandler{})
	for _, text := range []string{"first", "second", "third"} {
		if err := store.InsertMessage(&chat.Message{RoomID: room.ID, AuthorID: "user-1", Content: text}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/rooms/%s/messages", srv.URL, room.ID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Messages []messageView `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(body.Messages))
	}
	if body.Messages[0].Content != "first" || body.Messages[2].Content != "third" {
		t.Errorf("order = %v", body.Messages)
	}
}

func TestCreateRoom(t *testing.T) {
	srv, store, _ := newTestServer(t, &fakeHandler{})

	resp := postJSON(t, srv.URL+"/api/rooms", `{"name":"new room"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("missing room id")
	}

	room, err := store.Room(id)
	if err != nil || room == nil {
		t.Fatalf("room not persisted: %v", err)
	}
	if room.Name != "new room" {
		t.Errorf("name = %q", room.Name)
	}
}
