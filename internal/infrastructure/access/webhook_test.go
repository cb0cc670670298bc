package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWebhookManager_GrantPostsPayload(t *testing.T) {
	var gotPath string
	var gotBody accessRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewWebhookManager(srv.URL, 2*time.Second, zerolog.Nop())
	if err := m.GrantAccess(context.Background(), "member-1", "group-9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/access/grant" {
		t.Errorf("path: want /access/grant, got %s", gotPath)
	}
	if gotBody.ExternalID != "member-1" || gotBody.GroupID != "group-9" {
		t.Errorf("payload: got %+v", gotBody)
	}
}

func TestWebhookManager_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewWebhookManager(srv.URL, 2*time.Second, zerolog.Nop())
	if err := m.Notify(context.Background(), "member-1", "hello"); err == nil {
		t.Fatalf("expected error on 502 response")
	}
}
