// Package chat is the caller side of the turn engine: it owns the transcript
// and delivers side effects such as reminders.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	transcriptx "github.com/tanpawarit/Chative-Finance-Assistant/agent/transcript"
	workflowx "github.com/tanpawarit/Chative-Finance-Assistant/agent/workflow"
)

var (
	ErrInvalidMessage      = errors.New("message text is empty")
	ErrInvalidConversation = transcriptx.ErrInvalidConversation
)

// Turner runs one conversation turn.
type Turner interface {
	Turn(ctx context.Context, text string, hctx contractx.HandlerContext) (workflowx.Outcome, error)
}

// ReminderScheduler registers reminder deliveries, e.g. a QStash client.
// Schedule is recurring; Publish fires once after delay.
type ReminderScheduler interface {
	Schedule(ctx context.Context, cron string, body any) (string, error)
	Publish(ctx context.Context, delay time.Duration, body any) (string, error)
}

type Service struct {
	turns     Turner
	store     transcriptx.Store
	scheduler ReminderScheduler
}

// New builds a Service. scheduler may be nil, in which case reminders are
// only returned to the user.
func New(turns Turner, store transcriptx.Store, scheduler ReminderScheduler) (*Service, error) {
	if turns == nil {
		return nil, errors.New("turn runner is required")
	}
	if store == nil {
		return nil, errors.New("transcript store is required")
	}
	return &Service{turns: turns, store: store, scheduler: scheduler}, nil
}

type ScheduledReminder struct {
	Title        string `json:"title"`
	Cron         string `json:"cron,omitempty"`
	DelayMinutes int    `json:"delay_minutes,omitempty"`
	ScheduleID   string `json:"schedule_id"`
}

type Result struct {
	Response  contractx.AgentResponse
	Agent     string
	Agents    []string
	Reminders []ScheduledReminder
}

// ReminderMessage is the body delivered to the callback when a reminder fires.
type ReminderMessage struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Note           string `json:"note,omitempty"`
}

func (s *Service) HandleMessage(
	ctx context.Context,
	conversationID string,
	text string,
	hctx contractx.HandlerContext,
) (Result, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return Result{}, ErrInvalidConversation
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrInvalidMessage
	}

	pending, err := s.pendingProposal(ctx, conversationID)
	if err != nil {
		return Result{}, err
	}

	if _, err := s.store.Append(ctx, contractx.TranscriptEntry{
		ConversationID: conversationID,
		Sender:         contractx.SenderUser,
		ContentType:    contractx.ContentText,
		Payload:        contractx.Payload{"text": text},
	}); err != nil {
		return Result{}, fmt.Errorf("append user message: %w", err)
	}

	if reply := parseReply(text); pending != nil && reply != replyNone {
		return s.resolveProposal(ctx, conversationID, reply, pending)
	}

	outcome, err := s.turns.Turn(ctx, text, hctx)
	if err != nil {
		return Result{}, err
	}

	agent := outcome.Agent()
	if _, err := s.store.Append(ctx, contractx.TranscriptEntry{
		ConversationID: conversationID,
		Sender:         agent,
		ContentType:    outcome.Response.ContentType,
		Payload:        outcome.Response.Payload,
	}); err != nil {
		return Result{}, fmt.Errorf("append agent message: %w", err)
	}

	return Result{
		Response: outcome.Response,
		Agent:    agent,
		Agents:   outcome.State.Agents(),
	}, nil
}

// DeliverReminder records a fired reminder in its conversation.
func (s *Service) DeliverReminder(ctx context.Context, msg ReminderMessage) (contractx.TranscriptEntry, error) {
	title := strings.TrimSpace(msg.Title)
	if title == "" {
		return contractx.TranscriptEntry{}, fmt.Errorf("%w: reminder title is empty", contractx.ErrValidation)
	}
	text := "Reminder: " + title
	if note := strings.TrimSpace(msg.Note); note != "" {
		text += ". " + note
	}
	return s.store.Append(ctx, contractx.TranscriptEntry{
		ConversationID: msg.ConversationID,
		Sender:         contractx.AgentReminderScheduler,
		ContentType:    contractx.ContentText,
		Payload:        contractx.Payload{"text": text},
	})
}

func (s *Service) Transcript(ctx context.Context, conversationID string, limit int) ([]contractx.TranscriptEntry, error) {
	return s.store.List(ctx, conversationID, limit)
}
