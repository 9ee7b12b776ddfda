package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/washnet/washnet-api/internal/models"
)

const (
	sessionKeyPrefix    = "session:"
	sessionOwnerPrefix  = "session_owner:"
	sessionScanPageSize = 200
)

// RedisSessionRepository keeps portal sessions in Redis. Key TTLs track
// expires_at, so expired rows vanish without a delete; the sweep only
// prunes dead members out of the per-owner index sets.
type RedisSessionRepository struct {
	client *redis.Client
}

// NewRedisSessionRepository creates a new instance.
func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func sessionKey(handle string) string {
	return sessionKeyPrefix + handle
}

func ownerKey(ownerUserID string) string {
	return sessionOwnerPrefix + ownerUserID
}

// Create stores the session under its handle and indexes it by owner.
func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.Handle), raw, ttl)
	if session.OwnerUserID != nil {
		// The owner index carries no TTL of its own: an expiring index could
		// be cut short by a later, shorter session and orphan a still-valid
		// one from bulk revocation. The sweep prunes reaped members and Redis
		// drops the set once it empties.
		pipe.SAdd(ctx, ownerKey(*session.OwnerUserID), session.Handle)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetAndTouch loads a session, fails closed on kind mismatch or expiry, and
// writes back last_used_at preserving the key TTL.
func (r *RedisSessionRepository) GetAndTouch(ctx context.Context, handle string, expectedKind models.SessionKind, now time.Time) (*models.Session, error) {
	session, err := r.load(ctx, handle)
	if err != nil {
		return nil, err
	}

	if !now.Before(session.ExpiresAt) {
		_ = r.Delete(ctx, handle)
		return nil, ErrSessionNotFound
	}
	if expectedKind != "" && session.Kind != expectedKind {
		return nil, ErrSessionNotFound
	}

	session.LastUsedAt = now
	ok, err := r.store(ctx, session, redis.KeepTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// UpdatePayload merges a partial payload into a still-valid session.
func (r *RedisSessionRepository) UpdatePayload(ctx context.Context, handle string, partial json.RawMessage, now time.Time) (bool, error) {
	session, err := r.load(ctx, handle)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if !now.Before(session.ExpiresAt) {
		_ = r.Delete(ctx, handle)
		return false, nil
	}

	merged, err := models.MergePayload(session.Payload, partial)
	if err != nil {
		return false, err
	}
	session.Payload = merged
	session.LastUsedAt = now

	return r.store(ctx, session, redis.KeepTTL)
}

// Extend pushes expires_at forward and re-arms the key TTL.
func (r *RedisSessionRepository) Extend(ctx context.Context, handle string, expiresAt time.Time, now time.Time) (bool, error) {
	session, err := r.load(ctx, handle)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if !now.Before(session.ExpiresAt) {
		_ = r.Delete(ctx, handle)
		return false, nil
	}

	session.ExpiresAt = expiresAt
	session.LastUsedAt = now
	return r.store(ctx, session, time.Until(expiresAt))
}

// Delete removes a session and its owner-index membership. Idempotent.
func (r *RedisSessionRepository) Delete(ctx context.Context, handle string) error {
	session, err := r.load(ctx, handle)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(handle))
	if session.OwnerUserID != nil {
		pipe.SRem(ctx, ownerKey(*session.OwnerUserID), handle)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteAllForOwner removes every session indexed under the owner,
// optionally scoped to one kind.
func (r *RedisSessionRepository) DeleteAllForOwner(ctx context.Context, ownerUserID string, kind models.SessionKind) error {
	key := ownerKey(ownerUserID)
	handles, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("list owner sessions: %w", err)
	}

	for _, handle := range handles {
		if kind != "" {
			session, err := r.load(ctx, handle)
			if err != nil {
				if errors.Is(err, ErrSessionNotFound) {
					_ = r.client.SRem(ctx, key, handle).Err()
					continue
				}
				return err
			}
			if session.Kind != kind {
				continue
			}
		}
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, sessionKey(handle))
		pipe.SRem(ctx, key, handle)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("delete owner session: %w", err)
		}
	}
	return nil
}

// DeleteExpired prunes owner-index members whose session keys the TTL has
// already reaped. The count reflects pruned index entries, since Redis has
// deleted the session values itself.
func (r *RedisSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var pruned int64
	iter := r.client.Scan(ctx, 0, sessionOwnerPrefix+"*", sessionScanPageSize).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		handles, err := r.client.SMembers(ctx, key).Result()
		if err != nil {
			return pruned, fmt.Errorf("scan owner index: %w", err)
		}
		for _, handle := range handles {
			exists, err := r.client.Exists(ctx, sessionKey(handle)).Result()
			if err != nil {
				return pruned, fmt.Errorf("check session key: %w", err)
			}
			if exists == 0 {
				if err := r.client.SRem(ctx, key, handle).Err(); err != nil {
					return pruned, fmt.Errorf("prune owner index: %w", err)
				}
				pruned++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("scan owner index: %w", err)
	}
	return pruned, nil
}

func (r *RedisSessionRepository) load(ctx context.Context, handle string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// store writes back an existing session. SET XX cannot recreate a key that
// a concurrent logout or owner revocation just deleted; false means the key
// is gone and the caller must treat the session as absent.
func (r *RedisSessionRepository) store(ctx context.Context, session *models.Session, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(session)
	if err != nil {
		return false, fmt.Errorf("encode session: %w", err)
	}
	ok, err := r.client.SetXX(ctx, sessionKey(session.Handle), raw, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store session: %w", err)
	}
	return ok, nil
}
