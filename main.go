package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	apix "github.com/tanpawarit/Chative-Finance-Assistant/agent/api"
	chatx "github.com/tanpawarit/Chative-Finance-Assistant/agent/chat"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	formatterx "github.com/tanpawarit/Chative-Finance-Assistant/agent/formatter"
	handlerx "github.com/tanpawarit/Chative-Finance-Assistant/agent/handler"
	llmx "github.com/tanpawarit/Chative-Finance-Assistant/agent/llm"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
	payloadx "github.com/tanpawarit/Chative-Finance-Assistant/agent/payload"
	promptx "github.com/tanpawarit/Chative-Finance-Assistant/agent/prompt"
	routerx "github.com/tanpawarit/Chative-Finance-Assistant/agent/router"
	transcriptx "github.com/tanpawarit/Chative-Finance-Assistant/agent/transcript"
	workflowx "github.com/tanpawarit/Chative-Finance-Assistant/agent/workflow"
	configx "github.com/tanpawarit/Chative-Finance-Assistant/pkg/config"
	_ "github.com/tanpawarit/Chative-Finance-Assistant/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Chative-Finance-Assistant/pkg/openrouter"
	qstashx "github.com/tanpawarit/Chative-Finance-Assistant/pkg/qstash"
	telemetryx "github.com/tanpawarit/Chative-Finance-Assistant/pkg/telemetry"
)

type EngineConfig struct {
	MaxHops                 int           `envconfig:"MAX_HOPS" default:"3"`
	PassthroughContentTypes []string      `envconfig:"PASSTHROUGH_CONTENT_TYPES" default:"CHART,IMAGE,BUTTONS"`
	ManifestPath            string        `envconfig:"MANIFEST_PATH"`
	PreflightTimeout        time.Duration `envconfig:"PREFLIGHT_TIMEOUT" default:"10s"`
}

func (c *EngineConfig) Validate() error {
	if c.MaxHops < 1 {
		return fmt.Errorf("%w: max hops must be at least 1", contractx.ErrValidation)
	}
	_, err := c.passthrough()
	return err
}

func (c *EngineConfig) passthrough() ([]contractx.ContentType, error) {
	out := make([]contractx.ContentType, 0, len(c.PassthroughContentTypes))
	for _, raw := range c.PassthroughContentTypes {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		ct, err := contractx.ParseContentType(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, nil
}

func loadManifest(path string) (*manifestx.Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return manifestx.Default()
	}
	return manifestx.Load(path)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineCfg := configx.MustNew[EngineConfig]("ENGINE")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	transcriptCfg := configx.MustNew[transcriptx.Config]("TRANSCRIPT")
	databaseCfg := configx.MustNew[transcriptx.DatabaseConfig]("DATABASE")
	upstashCfg := configx.MustNew[transcriptx.UpstashRedisConfig]("UPSTASH_REDIS")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	httpCfg := configx.MustNew[apix.Config]("HTTP")
	otelCfg := configx.MustNew[telemetryx.Config]("OTEL")

	shutdownTracing, err := telemetryx.Init(ctx, *otelCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	if llmCfg.Enabled() {
		preflightCtx, cancel := context.WithTimeout(ctx, engineCfg.PreflightTimeout)
		client := openrouterx.NewClient(llmCfg.OpenRouterFor(llmx.RoleRouter))
		err := openrouterx.Preflight(preflightCtx, client, llmCfg.OpenRouterFor(llmx.RoleRouter).Model)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("completion api preflight failed")
		}
	}

	manifest, err := loadManifest(engineCfg.ManifestPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load capability manifest")
	}
	validator := payloadx.MustNewValidator()
	prompts, err := promptx.LoadPromptSet(manifest)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to render prompts")
	}
	models, err := llmx.NewModels(ctx, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build chat models")
	}

	registry, err := handlerx.NewDefaultRegistry(ctx, manifest, validator, handlerx.Options{Models: models, Prompts: prompts})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build handler registry")
	}
	passthrough, _ := engineCfg.passthrough()
	formatter, err := formatterx.New(registry, passthrough)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build formatter")
	}
	router, err := routerx.New(ctx, manifest, models.Router, prompts.Router)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}
	executor, err := workflowx.New(ctx, manifest, router, registry, formatter, workflowx.Config{MaxHops: engineCfg.MaxHops})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to compile workflow")
	}

	store, err := transcriptx.Open(ctx, *transcriptCfg, *databaseCfg, *upstashCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open transcript store")
	}
	defer store.Close()

	var scheduler chatx.ReminderScheduler
	if qstashCfg.Enabled() {
		scheduler = qstashx.MustNew(*qstashCfg)
	} else {
		log.Info().Msg("qstash not configured; reminders are returned without scheduling")
	}

	service, err := chatx.New(executor, store, scheduler)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build chat service")
	}

	httpServer := &http.Server{
		Addr:         httpCfg.Addr,
		Handler:      apix.NewRouter(service, manifest, validator, *httpCfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().
		Str("addr", httpCfg.Addr).
		Int("agents", len(manifest.Keys())).
		Bool("llm", llmCfg.Enabled()).
		Str("transcript", transcriptCfg.Backend).
		Msg("finance assistant ready")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}
