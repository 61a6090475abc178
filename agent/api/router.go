// Package api exposes the turn engine over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	chatx "github.com/tanpawarit/Chative-Finance-Assistant/agent/chat"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
)

// ChatService is the caller-side conversation API the routes delegate to.
type ChatService interface {
	HandleMessage(ctx context.Context, conversationID, text string, hctx contractx.HandlerContext) (chatx.Result, error)
	DeliverReminder(ctx context.Context, msg chatx.ReminderMessage) (contractx.TranscriptEntry, error)
	Transcript(ctx context.Context, conversationID string, limit int) ([]contractx.TranscriptEntry, error)
}

// ContentTypes reports the content types each agent's schema admits.
type ContentTypes interface {
	Allowed(key string) []contractx.ContentType
}

type Config struct {
	Addr           string   `envconfig:"ADDR" default:":8080"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

type Server struct {
	chat         ChatService
	manifest     *manifestx.Manifest
	contentTypes ContentTypes
}

// NewRouter mounts every route with the standard middleware stack.
// contentTypes may be nil.
func NewRouter(chat ChatService, m *manifestx.Manifest, contentTypes ContentTypes, cfg Config) http.Handler {
	s := &Server{chat: chat, manifest: m, contentTypes: contentTypes}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(tracing)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/capabilities", s.capabilities)
		r.Post("/reminders/deliver", s.deliverReminder)
		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Post("/turns", s.postTurn)
			r.Get("/transcript", s.getTranscript)
		})
	})

	return r
}
