// internal/sessions/store.go
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"loan-origination/internal/common/config"
	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/wizard"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store keeps wizard sessions in Redis between requests.
type Store struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration
	log     logger.Logger
}

func NewStore(rdb *redis.Client, cfg config.SessionConfig, log logger.Logger) *Store {
	return &Store{
		rdb:     rdb,
		prefix:  cfg.KeyPrefix,
		ttl:     cfg.TTLDuration(),
		lockTTL: cfg.LockDuration(),
		log:     logger.ForComponent(log, "sessions"),
	}
}

func (s *Store) key(id string) string     { return s.prefix + id }
func (s *Store) lockKey(id string) string { return s.prefix + id + ":lock" }

// Save writes the session snapshot and refreshes its TTL.
func (s *Store) Save(ctx context.Context, sess *wizard.Session) error {
	data, err := json.Marshal(sess.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}
	if err := s.rdb.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return apperrors.NewPersistenceFailedError("session_save", err)
	}
	return nil
}

// Load restores a session. A missing or expired key is SESSION_NOT_FOUND.
func (s *Store) Load(ctx context.Context, id string) (*wizard.Session, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NewSessionNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceFailedError("session_load", err)
	}

	var snap wizard.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn("Discarding unreadable session", map[string]interface{}{
			"sessionId": id,
			"error":     err.Error(),
		})
		_ = s.rdb.Del(ctx, s.key(id)).Err()
		return nil, apperrors.NewSessionNotFoundError(id)
	}
	return wizard.Restore(snap), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return apperrors.NewPersistenceFailedError("session_delete", err)
	}
	return nil
}

// Lock takes the per-session mutation lock with SET NX. The returned release
// function is safe to call after the lock expired.
func (s *Store) Lock(ctx context.Context, id string) (func(), error) {
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, s.lockKey(id), token, s.lockTTL).Result()
	if err != nil {
		return nil, apperrors.NewPersistenceFailedError("session_lock", err)
	}
	if !ok {
		return nil, apperrors.NewSessionLockedError(id)
	}

	release := func() {
		// The request context may already be cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, s.rdb, []string{s.lockKey(id)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.log.Warn("Failed to release session lock", map[string]interface{}{
				"sessionId": id,
				"error":     err.Error(),
			})
		}
	}
	return release, nil
}
