package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mirasync/syncengine/syncx"
)

func newTestAdapter(t *testing.T, serverURL string) *Adapter {
	t.Helper()
	a := New(RateConfig{Interval: time.Millisecond, Burst: 10})
	if err := a.Initialize(context.Background(), serverURL, map[string]string{"X-Client": "synctodo"}, 2000); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return a
}

func TestAdapterGetDecodesJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			return // Initialize's connectivity probe
		}
		if r.URL.Path != "/v1/items" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Client") != "synctodo" {
			t.Errorf("expected default header to be forwarded, got %q", r.Header.Get("X-Client"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "i1"}})
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	resp, err := a.Get(context.Background(), "/v1/items")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	items, ok := resp.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected decoded data: %+v", resp.Data)
	}
}

func TestAdapterPostSendsJSONBody(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			return // Initialize's connectivity probe
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	resp, err := a.Post(context.Background(), "/v1/items", map[string]any{"name": "gizmo"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if gotBody["name"] != "gizmo" {
		t.Fatalf("expected server to receive posted body, got %+v", gotBody)
	}
}

func TestAdapterErrorStatusReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	_, err := a.Get(context.Background(), "/v1/items")
	if err == nil {
		t.Fatal("expected error on 5xx response")
	}
}

func TestAdapterUnreachableServerFlipsOffline(t *testing.T) {
	a := newTestAdapter(t, "http://127.0.0.1:1")
	if a.IsOnline() {
		t.Fatal("expected adapter offline after failed initialize probe")
	}

	_, err := a.Get(context.Background(), "/v1/items")
	if err == nil {
		t.Fatal("expected error against unreachable server")
	}
	if a.IsOnline() {
		t.Fatal("expected adapter to remain offline after failed request")
	}
}

func TestAdapterConnectivityStreamReceivesTransition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := New(RateConfig{Interval: time.Millisecond, Burst: 10})
	_ = a.Initialize(context.Background(), "http://127.0.0.1:1", nil, 200)
	if a.IsOnline() {
		t.Fatal("expected initial offline state against unreachable host")
	}

	ch := a.ConnectivityStream()

	a.mu.Lock()
	a.baseURL = server.URL
	a.mu.Unlock()

	if _, err := a.Get(context.Background(), "/v1/items"); err != nil {
		t.Fatalf("get: %v", err)
	}

	select {
	case online := <-ch:
		if !online {
			t.Fatal("expected online=true transition")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a connectivity transition to be published")
	}
}

var _ syncx.NetworkAdapter = (*Adapter)(nil)
