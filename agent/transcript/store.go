// Package transcript persists the ordered message history of a conversation.
// It is owned by the caller; the turn engine never reads it.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

var (
	ErrInvalidConversation = errors.New("conversation id is empty")
	ErrInvalidEntry        = errors.New("transcript entry is invalid")
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendUpstash  = "upstash"
)

// Store is the persistence contract used by the chat service.
type Store interface {
	// Append assigns an id and timestamp when missing and returns the stored entry.
	Append(ctx context.Context, entry contractx.TranscriptEntry) (contractx.TranscriptEntry, error)
	// List returns the newest limit entries in chronological order; limit <= 0 returns all.
	List(ctx context.Context, conversationID string, limit int) ([]contractx.TranscriptEntry, error)
	Close() error
}

type Config struct {
	Backend string        `envconfig:"BACKEND" default:"memory"`
	TTL     time.Duration `envconfig:"TTL" default:"720h"`
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case BackendMemory, BackendPostgres, BackendUpstash:
		return nil
	default:
		return fmt.Errorf("%w: unknown transcript backend %q", contractx.ErrValidation, c.Backend)
	}
}

func prepare(entry contractx.TranscriptEntry, now func() time.Time) (contractx.TranscriptEntry, error) {
	entry.ConversationID = strings.TrimSpace(entry.ConversationID)
	if entry.ConversationID == "" {
		return contractx.TranscriptEntry{}, ErrInvalidConversation
	}
	if strings.TrimSpace(entry.Sender) == "" {
		return contractx.TranscriptEntry{}, fmt.Errorf("%w: sender is empty", ErrInvalidEntry)
	}
	if !entry.ContentType.Valid() {
		return contractx.TranscriptEntry{}, fmt.Errorf("%w: content type=%q", ErrInvalidEntry, entry.ContentType)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	if entry.Payload == nil {
		entry.Payload = contractx.Payload{}
	}
	return entry, nil
}

func conversationKey(conversationID string) (string, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return "", ErrInvalidConversation
	}
	return id, nil
}

// tail keeps the newest limit entries.
func tail(entries []contractx.TranscriptEntry, limit int) []contractx.TranscriptEntry {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]contractx.TranscriptEntry(nil), entries...)
}
