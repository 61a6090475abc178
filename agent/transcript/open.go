package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg Config, db DatabaseConfig, upstash UpstashRedisConfig) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case BackendPostgres:
		store, err := NewPostgresStore(db)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		log.Info().Str("backend", backend).Msg("transcript store ready")
		return store, nil
	case BackendUpstash:
		store, err := NewUpstashStore(upstash, WithTTL(cfg.TTL))
		if err != nil {
			return nil, err
		}
		log.Info().Str("backend", backend).Dur("ttl", cfg.TTL).Msg("transcript store ready")
		return store, nil
	case BackendMemory:
		log.Info().Str("backend", backend).Msg("transcript store ready")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown transcript backend %q", cfg.Backend)
	}
}
