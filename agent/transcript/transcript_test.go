package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

func textEntry(conversationID, sender, text string) contractx.TranscriptEntry {
	return contractx.TranscriptEntry{
		ConversationID: conversationID,
		Sender:         sender,
		ContentType:    contractx.ContentText,
		Payload:        contractx.Payload{"text": text},
	}
}

func TestMemoryStoreAppendAndList(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	for i, sender := range []string{contractx.SenderUser, contractx.AgentOnboarding, contractx.SenderUser, contractx.AgentReporting} {
		got, err := store.Append(ctx, textEntry("c-1", sender, fmt.Sprintf("m%d", i)))
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if got.ID == "" || got.Timestamp.IsZero() {
			t.Fatalf("Append() did not assign id/timestamp: %#v", got)
		}
	}
	if _, err := store.Append(ctx, textEntry("c-2", contractx.SenderUser, "other")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	all, err := store.List(ctx, "c-1", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 || all[0].Payload.String("text") != "m0" {
		t.Fatalf("List(all) = %#v", all)
	}

	last, err := store.List(ctx, "c-1", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(last) != 2 || last[0].Payload.String("text") != "m2" || last[1].Sender != contractx.AgentReporting {
		t.Fatalf("List(2) = %#v", last)
	}
}

func TestMemoryStoreRejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Append(ctx, textEntry(" ", "user", "x")); !errors.Is(err, ErrInvalidConversation) {
		t.Fatalf("empty conversation err = %v", err)
	}
	bad := textEntry("c", "user", "x")
	bad.ContentType = "VIDEO"
	if _, err := store.Append(ctx, bad); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("bad content type err = %v", err)
	}
	if _, err := store.List(ctx, "", 0); !errors.Is(err, ErrInvalidConversation) {
		t.Fatalf("List empty id err = %v", err)
	}
}

func TestUpstashStoreAppendPushesAndExpires(t *testing.T) {
	t.Parallel()

	var commands [][]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q", got)
		}
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
		}
		commands = append(commands, cmd)
		fmt.Fprint(w, `{"result":1}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
		WithTTL(90*time.Minute),
	)
	if err != nil {
		t.Fatalf("NewUpstashStore() error = %v", err)
	}

	if _, err := store.Append(context.Background(), textEntry("conv-9", "user", "hello")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if len(commands) != 2 {
		t.Fatalf("commands = %#v", commands)
	}
	if commands[0][0] != "RPUSH" || commands[0][1] != "finance:transcript:conv-9" {
		t.Fatalf("push command = %#v", commands[0])
	}
	if commands[1][0] != "EXPIRE" || commands[1][2] != float64(5400) {
		t.Fatalf("expire command = %#v", commands[1])
	}
}

func TestUpstashStoreListDecodesEntries(t *testing.T) {
	t.Parallel()

	seed, err := json.Marshal(contractx.TranscriptEntry{
		ID:             "e-1",
		ConversationID: "conv-3",
		Sender:         contractx.AgentReporting,
		ContentType:    contractx.ContentChart,
		Payload:        contractx.Payload{"labels": []any{"Rent"}, "values": []any{1500.0}},
		Timestamp:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	encoded, err := json.Marshal([]string{string(seed)})
	if err != nil {
		t.Fatalf("marshal list: %v", err)
	}

	var gotCommand []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprintf(w, `{"result":%s}`, encoded)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewUpstashStore() error = %v", err)
	}

	entries, err := store.List(context.Background(), "conv-3", 20)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ContentType != contractx.ContentChart || entries[0].ID != "e-1" {
		t.Fatalf("entries = %#v", entries)
	}
	if gotCommand[0] != "LRANGE" || gotCommand[2] != float64(-20) || gotCommand[3] != float64(-1) {
		t.Fatalf("command = %#v", gotCommand)
	}
}

func TestUpstashStoreSurfacesRedisErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGTYPE Operation against a key holding the wrong kind of value"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewUpstashStore() error = %v", err)
	}
	if _, err := store.List(context.Background(), "conv", 0); err == nil {
		t.Fatal("expected redis error")
	}
}

func TestNewUpstashStoreRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashStore(UpstashRedisConfig{Token: "t"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewUpstashStore(UpstashRedisConfig{URL: "https://example.upstash.io"}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestPostgresRowRoundTrip(t *testing.T) {
	t.Parallel()

	in := contractx.TranscriptEntry{
		ID:             "e-7",
		ConversationID: "c",
		Sender:         contractx.AgentSafety,
		ContentType:    contractx.ContentText,
		Payload:        contractx.Payload{"text": "ok"},
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	out := toRow(in).entry()
	if out.ID != in.ID || out.Sender != in.Sender || out.ContentType != in.ContentType || !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("round trip = %#v", out)
	}
	if _, err := NewPostgresStore(DatabaseConfig{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), Config{Backend: "Memory"}, DatabaseConfig{}, UpstashRedisConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("store = %T, want *MemoryStore", store)
	}
	if _, err := Open(context.Background(), Config{Backend: "sqlite"}, DatabaseConfig{}, UpstashRedisConfig{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("unknown backend err = %v", err)
	}
}
