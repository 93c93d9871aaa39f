package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/questforge/dialogue-engine/pkg/state"
)

// SessionStore keeps the per-session dialogue turn log in Redis. Each session
// is a list of JSON-encoded turns under a TTL-refreshed key, so an active
// conversation never expires mid-play.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// DefaultSessionTTL is how long an idle session's history is retained.
const DefaultSessionTTL = 24 * time.Hour

// NewSessionStore creates a session store. ttl <= 0 selects DefaultSessionTTL.
func NewSessionStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID + ":turns"
}

// AppendTurn records one completed exchange at the end of the session log and
// refreshes the session TTL.
func (s *SessionStore) AppendTurn(ctx context.Context, sessionID string, turn state.DialogueTurn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("session store: marshal turn: %w", err)
	}

	key := sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Session append failed", "session_id", sessionID, "error", err)
		return fmt.Errorf("session store: append turn: %w", err)
	}

	s.logger.Debug("Session turn appended", "session_id", sessionID)
	return nil
}

// History returns the last n turns of the session, oldest first. n <= 0
// returns the whole log. An unknown session yields an empty history.
func (s *SessionStore) History(ctx context.Context, sessionID string, n int) ([]state.DialogueTurn, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}

	raw, err := s.client.LRange(ctx, sessionKey(sessionID), start, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("session store: read history: %w", err)
	}

	turns := make([]state.DialogueTurn, 0, len(raw))
	for _, item := range raw {
		var turn state.DialogueTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("session store: decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Delete removes a session's turn log.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("session store: delete session: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
