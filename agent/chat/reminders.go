package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

// scheduledWindow bounds how far back confirmations are scanned for duplicates.
const scheduledWindow = 200

type reply int

const (
	replyNone reply = iota
	replyConfirm
	replyChange
	replyCancel
)

var replyWords = map[string]reply{
	"confirm":     replyConfirm,
	"yes":         replyConfirm,
	"yes please":  replyConfirm,
	"ok":          replyConfirm,
	"okay":        replyConfirm,
	"sure":        replyConfirm,
	"change time": replyChange,
	"change":      replyChange,
	"cancel":      replyCancel,
	"no":          replyCancel,
	"no thanks":   replyCancel,
}

// parseReply recognises quick-reply answers to a reminder proposal. Anything
// longer is a new request.
func parseReply(text string) reply {
	norm := strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}), " ")
	return replyWords[norm]
}

type proposedReminder struct {
	Title        string
	Cron         string
	Note         string
	DelayMinutes int
}

func (r proposedReminder) key() string {
	return fmt.Sprintf("%s|%s|%d", strings.ToLower(r.Title), r.Cron, r.DelayMinutes)
}

// pendingProposal returns the reminders offered by the newest entry when that
// entry is an unanswered reminder_scheduler quick-reply.
func (s *Service) pendingProposal(ctx context.Context, conversationID string) ([]proposedReminder, error) {
	last, err := s.store.List(ctx, conversationID, 1)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if len(last) == 0 {
		return nil, nil
	}
	entry := last[0]
	if entry.Sender != contractx.AgentReminderScheduler || entry.ContentType != contractx.ContentButtons {
		return nil, nil
	}
	items, _ := normalized(entry.Payload)["reminders"].([]any)
	out := make([]proposedReminder, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		p := contractx.Payload(m)
		title := p.String("title")
		if title == "" {
			continue
		}
		delay, _ := p["delay_minutes"].(float64)
		out = append(out, proposedReminder{
			Title:        title,
			Cron:         p.String("cron"),
			Note:         p.String("note"),
			DelayMinutes: int(delay),
		})
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *Service) resolveProposal(ctx context.Context, conversationID string, r reply, pending []proposedReminder) (Result, error) {
	var (
		text      string
		scheduled []ScheduledReminder
	)
	switch r {
	case replyConfirm:
		var (
			duplicates int
			err        error
		)
		scheduled, duplicates, err = s.schedule(ctx, conversationID, pending)
		if err != nil {
			return Result{}, err
		}
		text = confirmationText(scheduled, duplicates, s.scheduler != nil)
	case replyChange:
		text = "Tell me when you would like them, for example \"remind me every Friday at 6pm\"."
	default:
		text = "Okay, I did not set any reminders."
	}

	payload := normalized(contractx.Payload{"text": text, "scheduled": scheduledOrEmpty(scheduled)})
	if _, err := s.store.Append(ctx, contractx.TranscriptEntry{
		ConversationID: conversationID,
		Sender:         contractx.AgentReminderScheduler,
		ContentType:    contractx.ContentText,
		Payload:        payload,
	}); err != nil {
		return Result{}, fmt.Errorf("append agent message: %w", err)
	}

	return Result{
		Response:  contractx.AgentResponse{ContentType: contractx.ContentText, Payload: payload},
		Agent:     contractx.AgentReminderScheduler,
		Agents:    []string{contractx.AgentReminderScheduler},
		Reminders: scheduled,
	}, nil
}

// schedule registers each confirmed reminder once per conversation. Cron
// reminders recur; delay-only reminders fire once. Delivery failures are
// logged and skipped.
func (s *Service) schedule(ctx context.Context, conversationID string, pending []proposedReminder) ([]ScheduledReminder, int, error) {
	if s.scheduler == nil {
		return nil, 0, nil
	}
	seen, err := s.alreadyScheduled(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}

	var (
		out        []ScheduledReminder
		duplicates int
	)
	for _, rem := range pending {
		if seen[rem.key()] {
			duplicates++
			log.Debug().Str("conversation_id", conversationID).Str("title", rem.Title).Msg("reminder already scheduled")
			continue
		}
		msg := ReminderMessage{ConversationID: conversationID, Title: rem.Title, Note: rem.Note}

		var id string
		switch {
		case rem.Cron != "":
			id, err = s.scheduler.Schedule(ctx, rem.Cron, msg)
		case rem.DelayMinutes > 0:
			id, err = s.scheduler.Publish(ctx, time.Duration(rem.DelayMinutes)*time.Minute, msg)
		default:
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Str("title", rem.Title).Msg("reminder not scheduled")
			continue
		}
		seen[rem.key()] = true
		out = append(out, ScheduledReminder{Title: rem.Title, Cron: rem.Cron, DelayMinutes: rem.DelayMinutes, ScheduleID: id})
	}
	return out, duplicates, nil
}

// alreadyScheduled collects reminders confirmed earlier in the conversation.
func (s *Service) alreadyScheduled(ctx context.Context, conversationID string) (map[string]bool, error) {
	entries, err := s.store.List(ctx, conversationID, scheduledWindow)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.Sender != contractx.AgentReminderScheduler {
			continue
		}
		items, _ := normalized(entry.Payload)["scheduled"].([]any)
		for _, item := range items {
			m, _ := item.(map[string]any)
			p := contractx.Payload(m)
			delay, _ := p["delay_minutes"].(float64)
			rem := proposedReminder{Title: p.String("title"), Cron: p.String("cron"), DelayMinutes: int(delay)}
			seen[rem.key()] = true
		}
	}
	return seen, nil
}

func confirmationText(scheduled []ScheduledReminder, duplicates int, enabled bool) string {
	switch {
	case !enabled:
		return "Reminder delivery is not set up yet, so nothing was scheduled."
	case len(scheduled) == 0 && duplicates > 0:
		return "Those reminders are already set."
	case len(scheduled) == 0:
		return "I could not schedule those reminders right now. Please try again later."
	}
	titles := make([]string, 0, len(scheduled))
	for _, rem := range scheduled {
		titles = append(titles, rem.Title)
	}
	return "Done. I scheduled: " + strings.Join(titles, ", ") + "."
}

func scheduledOrEmpty(in []ScheduledReminder) []ScheduledReminder {
	if in == nil {
		return []ScheduledReminder{}
	}
	return in
}

// normalized round-trips p through JSON so typed slices read back as []any
// regardless of the store backend.
func normalized(p contractx.Payload) contractx.Payload {
	out, err := contractx.ToPayload(p)
	if err != nil {
		return contractx.Payload{}
	}
	return out
}
