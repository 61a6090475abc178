package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	chatx "github.com/tanpawarit/Chative-Finance-Assistant/agent/chat"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
	transcriptx "github.com/tanpawarit/Chative-Finance-Assistant/agent/transcript"
)

const (
	defaultTranscriptLimit = 50
	maxTranscriptLimit     = 500
	maxBodyBytes           = 1 << 20
)

type turnRequest struct {
	Text    string                   `json:"text"`
	Context contractx.HandlerContext `json:"context,omitempty"`
}

type turnResponse struct {
	ContentType contractx.ContentType     `json:"content_type"`
	Payload     contractx.Payload         `json:"payload"`
	Agent       string                    `json:"agent"`
	Transcript  []string                  `json:"transcript"`
	Reminders   []chatx.ScheduledReminder `json:"reminders,omitempty"`
}

type transcriptResponse struct {
	ConversationID string                      `json:"conversation_id"`
	Entries        []contractx.TranscriptEntry `json:"entries"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type capability struct {
	manifestx.AgentDescriptor
	ContentTypes []contractx.ContentType `json:"content_types"`
}

func (s *Server) capabilities(w http.ResponseWriter, r *http.Request) {
	agents := []capability{}
	if s.manifest != nil {
		for _, desc := range s.manifest.All() {
			c := capability{AgentDescriptor: desc, ContentTypes: []contractx.ContentType{}}
			if s.contentTypes != nil {
				c.ContentTypes = append(c.ContentTypes, s.contentTypes.Allowed(desc.Key)...)
			}
			agents = append(agents, c)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.chat.HandleMessage(r.Context(), chi.URLParam(r, "conversationID"), req.Text, req.Context)
	if err != nil {
		respondFailure(w, r, err)
		return
	}

	agents := result.Agents
	if agents == nil {
		agents = []string{}
	}
	respondJSON(w, http.StatusOK, turnResponse{
		ContentType: result.Response.ContentType,
		Payload:     result.Response.Payload,
		Agent:       result.Agent,
		Transcript:  agents,
		Reminders:   result.Reminders,
	})
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request) {
	limit := defaultTranscriptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	id := chi.URLParam(r, "conversationID")
	entries, err := s.chat.Transcript(r.Context(), id, limit)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	if entries == nil {
		entries = []contractx.TranscriptEntry{}
	}
	respondJSON(w, http.StatusOK, transcriptResponse{ConversationID: id, Entries: entries})
}

func (s *Server) deliverReminder(w http.ResponseWriter, r *http.Request) {
	var msg chatx.ReminderMessage
	if err := decodeJSON(w, r, &msg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry, err := s.chat.DeliverReminder(r.Context(), msg)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, entry)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(out)
}

// statusFor maps caller mistakes to 400 and everything else, including
// schema violations and hop-limit aborts, to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chatx.ErrInvalidMessage),
		errors.Is(err, transcriptx.ErrInvalidConversation),
		errors.Is(err, transcriptx.ErrInvalidEntry),
		errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, status, "turn failed")
		return
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
