package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/voice-assistant/server/internal/assistant/model"
	errx "github.com/voice-assistant/server/internal/core/error"
	logx "github.com/voice-assistant/server/pkg/logger"
)

// RedisStore keeps history as an append-only list and everything else as one
// JSON document, both written in a single MULTI/EXEC.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// sessionMeta is the non-history part of a session.
type sessionMeta struct {
	Mode      model.Mode                 `json:"mode"`
	Feedback  string                     `json:"feedback,omitempty"`
	Scratch   map[string]json.RawMessage `json:"scratch,omitempty"`
	Pending   *model.PendingConfirmation `json:"pending,omitempty"`
	Turns     int                        `json:"turns"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (r *RedisStore) messagesKey(threadID string) string {
	return fmt.Sprintf("session:%s:messages", threadID)
}

func (r *RedisStore) metaKey(threadID string) string {
	return fmt.Sprintf("session:%s:meta", threadID)
}

func (r *RedisStore) Load(ctx context.Context, threadID string) (*model.SessionState, error) {
	key := r.messagesKey(threadID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", key).Msg("failed to load session history from redis")
		return nil, errx.WrapRedis(err)
	}

	session := model.NewSession(threadID)
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		session.History = append(session.History, &m)
	}

	raw, err := r.rdb.Get(ctx, r.metaKey(threadID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return session, nil
	case err != nil:
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to load session meta from redis")
		return nil, errx.WrapRedis(err)
	}

	var meta sessionMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal session meta: %w", err)
	}
	session.Mode = model.ParseMode(string(meta.Mode))
	session.Feedback = meta.Feedback
	if meta.Scratch != nil {
		session.Scratch = meta.Scratch
	}
	session.Pending = meta.Pending
	session.Turns = meta.Turns
	session.UpdatedAt = meta.UpdatedAt
	return session, nil
}

func (r *RedisStore) Save(ctx context.Context, session *model.SessionState) error {
	if session == nil || session.ThreadID == "" {
		return errx.Invalid(errx.ErrInvalidSession, "session has no thread id")
	}
	key := r.messagesKey(session.ThreadID)

	stored, err := r.rdb.LLen(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", key).Msg("failed to get history length from redis")
		return errx.WrapRedis(err)
	}
	if int64(len(session.History)) < stored {
		return errx.Invalid(errx.ErrInvalidSession,
			fmt.Sprintf("history shrank from %d to %d messages", stored, len(session.History)))
	}

	tail := make([]any, 0, len(session.History)-int(stored))
	for _, m := range session.History[stored:] {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", session.ThreadID).Msg("failed to marshal message")
			return fmt.Errorf("marshal message: %w", err)
		}
		tail = append(tail, b)
	}
	meta, err := json.Marshal(sessionMeta{
		Mode:      session.Mode,
		Feedback:  session.Feedback,
		Scratch:   session.Scratch,
		Pending:   session.Pending,
		Turns:     session.Turns,
		UpdatedAt: session.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session meta: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(tail) > 0 {
			pipe.RPush(ctx, key, tail...)
		}
		pipe.Set(ctx, r.metaKey(session.ThreadID), meta, r.ttl)
		// extend TTL on touch
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to commit session to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := r.rdb.Del(ctx, r.messagesKey(threadID), r.metaKey(threadID)).Err(); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.CheckpointStore = (*RedisStore)(nil)
