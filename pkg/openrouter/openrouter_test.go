package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if NewClient(Config{APIKey: "   "}) != nil {
		t.Fatal("expected nil client without api key")
	}
}

func TestPreflight(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"openai/gpt-4o-mini","object":"model","created":1,"owned_by":"openai"}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:  server.URL + "/",
		APIKey:   "secret",
		SiteName: "Chative Finance",
	})
	if err := Preflight(context.Background(), client, "openai/gpt-4o-mini"); err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if gotPath != "/models/openai/gpt-4o-mini" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %s", gotAuth)
	}
	if gotTitle != "Chative Finance" {
		t.Fatalf("unexpected title header: %s", gotTitle)
	}
}

func TestPreflightRejectsEmptyModel(t *testing.T) {
	t.Parallel()

	if err := Preflight(context.Background(), NewClient(Config{APIKey: "k"}), " "); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestEndpointFallsBackToDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		want string
	}{
		{base: "", want: DefaultBaseURL},
		{base: "  ", want: DefaultBaseURL},
		{base: "http://localhost:4000/v1/", want: "http://localhost:4000/v1"},
	}
	for _, tt := range tests {
		cfg := Config{BaseURL: tt.base}
		if got := cfg.endpoint(); got != tt.want {
			t.Fatalf("endpoint(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestExtraFieldsDisableReasoningForListedModels(t *testing.T) {
	t.Parallel()

	listed := Config{Model: " x-ai/grok-4.1-fast "}
	reasoning, ok := listed.extraFields()["reasoning"].(map[string]any)
	if !ok || reasoning["exclude"] != true {
		t.Fatalf("extraFields() = %v", listed.extraFields())
	}

	other := Config{Model: "openai/gpt-4o-mini"}
	if other.extraFields() != nil {
		t.Fatalf("unexpected extra fields: %v", other.extraFields())
	}
}
