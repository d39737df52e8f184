package history

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMessagesFetch(t *testing.T) {
	t.Parallel()

	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"m1","content":"hello","sender_type":"user"},{"id":"m2","content":"hi","sender_type":"agent"}]`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientOptions{BaseURL: srv.URL, Token: "tok-123"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	msgs, err := client.Messages(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].SenderType != "agent" {
		t.Fatalf("unexpected history: %+v", msgs)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("bearer token not attached, got %q", gotAuth)
	}
	if gotPath != "/tasks/task-1/messages" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestMessagesEmptyHistoryIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientOptions{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	msgs, err := client.Messages(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("empty history must not fail: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty history, got %+v", msgs)
	}
}

func TestMessagesServerErrorWrapsSentinel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(ClientOptions{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Messages(context.Background(), "task-1"); !errors.Is(err, ErrHistoryLoad) {
		t.Fatalf("expected ErrHistoryLoad, got %v", err)
	}
}

func TestMessagesBadJSONWrapsSentinel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientOptions{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Messages(context.Background(), "task-1"); !errors.Is(err, ErrHistoryLoad) {
		t.Fatalf("expected ErrHistoryLoad, got %v", err)
	}
}

func TestMessagesUnreachableServer(t *testing.T) {
	t.Parallel()

	client, err := NewClient(ClientOptions{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Messages(context.Background(), "task-1"); !errors.Is(err, ErrHistoryLoad) {
		t.Fatalf("expected ErrHistoryLoad, got %v", err)
	}
}

func TestMessagesRequiresTaskID(t *testing.T) {
	t.Parallel()

	client, err := NewClient(ClientOptions{BaseURL: "http://example.invalid"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Messages(context.Background(), "  "); !errors.Is(err, ErrHistoryLoad) {
		t.Fatalf("expected ErrHistoryLoad, got %v", err)
	}
}
