package statuspage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(
		Config{BaseURL: server.URL, Slug: "main"},
		Dependencies{HTTPClient: server.Client()},
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestFetchRegistryFlattensGroups(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status-page/main" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"publicGroupList": [
				{"id": 1, "name": "groupA", "monitorList": [
					{"id": 2, "name": "svc-x"},
					{"id": 3, "name": "svc-y"}
				]}
			]
		}`))
	})

	registry, err := client.FetchRegistry(context.Background())
	if err != nil {
		t.Fatalf("FetchRegistry: %v", err)
	}

	want := Registry{"groupA": 1, "svc-x": 2, "svc-y": 3}
	if len(registry) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(registry))
	}
	for name, id := range want {
		if registry[name] != id {
			t.Fatalf("expected %s -> %d, got %d", name, id, registry[name])
		}
	}
}

func TestFetchRegistryNameCollisionLastWins(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"publicGroupList": [
				{"id": 1, "name": "api", "monitorList": [
					{"id": 2, "name": "api"}
				]},
				{"id": 3, "name": "web", "monitorList": [
					{"id": 4, "name": "api"}
				]}
			]
		}`))
	})

	registry, err := client.FetchRegistry(context.Background())
	if err != nil {
		t.Fatalf("FetchRegistry: %v", err)
	}
	if registry["api"] != 4 {
		t.Fatalf("expected last-inserted mapping 4 for colliding name, got %d", registry["api"])
	}
}

func TestFetchRegistryErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"publicGroupList": [`))
		}},
		{"missing fields", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"publicGroupList": [{"monitorList": []}]}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)
			_, err := client.FetchRegistry(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
			var regErr *RegistryError
			if !errors.As(err, &regErr) {
				t.Fatalf("expected *RegistryError, got %T: %v", err, err)
			}
			if regErr.Slug != "main" {
				t.Fatalf("expected slug context in error, got %q", regErr.Slug)
			}
		})
	}
}

func TestFetchHeartbeatsKeepsStringKeys(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status-page/heartbeat/main" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"heartbeatList": {
				"2": [{"status": 1, "time": "2026-08-27 10:00:00"}],
				"not-a-number": [{"status": 0}]
			}
		}`))
	})

	snapshot, err := client.FetchHeartbeats(context.Background())
	if err != nil {
		t.Fatalf("FetchHeartbeats: %v", err)
	}

	if len(snapshot) != 2 {
		t.Fatalf("expected both keys retained, got %d", len(snapshot))
	}
	if !snapshot.IsUp(2) {
		t.Fatalf("expected monitor 2 up")
	}
	if entries := snapshot["not-a-number"]; len(entries) != 1 {
		t.Fatalf("expected unparseable key retained with its entries")
	}
}

func TestFetchHeartbeatsErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`nope`))
		}},
		{"missing list", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)
			_, err := client.FetchHeartbeats(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
			var hbErr *HeartbeatError
			if !errors.As(err, &hbErr) {
				t.Fatalf("expected *HeartbeatError, got %T: %v", err, err)
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{Slug: "main"}, Dependencies{HTTPClient: http.DefaultClient}); err == nil {
		t.Fatalf("expected error for missing base URL")
	}
	if _, err := NewClient(Config{BaseURL: "https://x"}, Dependencies{HTTPClient: http.DefaultClient}); err == nil {
		t.Fatalf("expected error for missing slug")
	}
	if _, err := NewClient(Config{BaseURL: "https://x", Slug: "main"}, Dependencies{}); err == nil {
		t.Fatalf("expected error for missing HTTP client")
	}
}
