package msgraph_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"vigil/internal/services/msgraph"
)

func TestResolveUsersParsesAndNormalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/users") {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		filter := r.URL.Query().Get("$filter")
		if !strings.Contains(filter, "'alice@example.com'") {
			t.Fatalf("expected filter to carry addresses, got %q", filter)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]string{
				{"id": "id-1", "mail": "Alice@Example.com", "displayName": "Alice", "jobTitle": "Engineer"},
				{"id": "", "mail": "broken@example.com"},
			},
		})
	}))
	defer server.Close()

	client := msgraph.NewClientWithDoer(server.URL, "token-1", server.Client())
	users, err := client.ResolveUsers(context.Background(), []string{"alice@example.com"})
	if err != nil {
		t.Fatalf("ResolveUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected entries without an id dropped, got %d", len(users))
	}
	if users[0].Mail != "alice@example.com" {
		t.Fatalf("expected lowercased mail, got %q", users[0].Mail)
	}
}

func TestFetchAvailabilityBatches(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.IDs) > 15 {
			t.Fatalf("batch exceeds cap: %d", len(body.IDs))
		}
		values := make([]map[string]string, 0, len(body.IDs))
		for _, id := range body.IDs {
			values = append(values, map[string]string{"id": id, "availability": "Away"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"value": values})
	}))
	defer server.Close()

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = "id-" + strings.Repeat("x", i+1)
	}

	client := msgraph.NewClientWithDoer(server.URL, "token-1", server.Client())
	labels, err := client.FetchAvailability(context.Background(), ids)
	if err != nil {
		t.Fatalf("FetchAvailability failed: %v", err)
	}
	if len(labels) != 20 {
		t.Fatalf("expected 20 labels, got %d", len(labels))
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 batched calls, got %d", calls.Load())
	}
}

func TestFetchAvailabilityReturnsPartialOnFailure(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			http.Error(w, "throttled", http.StatusTooManyRequests)
			return
		}
		var body struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		values := make([]map[string]string, 0, len(body.IDs))
		for _, id := range body.IDs {
			values = append(values, map[string]string{"id": id, "availability": "Available"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"value": values})
	}))
	defer server.Close()

	ids := make([]string, 16)
	for i := range ids {
		ids[i] = "id-" + strings.Repeat("y", i+1)
	}

	client := msgraph.NewClientWithDoer(server.URL, "token-1", server.Client())
	labels, err := client.FetchAvailability(context.Background(), ids)
	if err == nil {
		t.Fatal("expected an error for the failed batch")
	}
	if len(labels) != 15 {
		t.Fatalf("expected the successful batch's 15 labels, got %d", len(labels))
	}
}
