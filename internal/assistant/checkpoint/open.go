package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
	pkgredis "github.com/voice-assistant/server/pkg/redis"
)

// Open builds the store selected by cfg.Backend. The returned close func is never nil.
func Open(ctx context.Context, cfg model.CheckpointConfig, redisCfg pkgredis.Config) (model.CheckpointStore, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		logx.Info().Int("size", cfg.MemorySize).Msg("Using in-memory checkpoint store")
		return NewMemoryStore(cfg.MemorySize), noop, nil
	case "redis":
		rdb, err := redisCfg.Connect(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("initialise redis client: %w", err)
		}
		logx.Info().Dur("ttl", cfg.TTL).Msg("Using redis checkpoint store")
		return NewRedisStore(rdb, cfg.TTL), rdb.Close, nil
	case "sqlite":
		store, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		logx.Info().Str("path", cfg.SQLitePath).Msg("Using sqlite checkpoint store")
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
