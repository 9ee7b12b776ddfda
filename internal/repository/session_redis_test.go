package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/washnet/washnet-api/internal/models"
)

func newRedisRepo(t *testing.T) (*RedisSessionRepository, *miniredis.Miniredis) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionRepository(client), srv
}

func redisSession(handle string, kind models.SessionKind, owner string, ttl time.Duration) *models.Session {
	now := time.Now().UTC()
	session := &models.Session{
		Handle:     handle,
		Kind:       kind,
		Payload:    json.RawMessage(`{"network_id":"n1"}`),
		ExpiresAt:  now.Add(ttl),
		LastUsedAt: now,
		CreatedAt:  now,
	}
	if owner != "" {
		session.OwnerUserID = &owner
	}
	return session
}

func TestRedisSessionCreateAndGetAndTouch(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	created := redisSession("abc", models.SessionKindDriver, "o1", time.Hour)
	require.NoError(t, repo.Create(ctx, created))

	later := time.Now().UTC().Add(time.Minute)
	session, err := repo.GetAndTouch(ctx, "abc", models.SessionKindDriver, later)
	require.NoError(t, err)
	assert.Equal(t, models.SessionKindDriver, session.Kind)
	assert.Equal(t, later, session.LastUsedAt)

	// Wrong kind is indistinguishable from absence.
	_, err = repo.GetAndTouch(ctx, "abc", models.SessionKindPartner, later)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionKeyTTLReapsExpired(t *testing.T) {
	repo, srv := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, redisSession("abc", models.SessionKindOperator, "", time.Hour)))
	srv.FastForward(2 * time.Hour)

	_, err := repo.GetAndTouch(ctx, "abc", models.SessionKindOperator, time.Now().UTC())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionOwnerRevocationOutlivesShortSessions(t *testing.T) {
	repo, srv := newRedisRepo(t)
	ctx := context.Background()

	// A long session followed by a short one for the same owner: the index
	// must still cover the long session after the short one is reaped.
	require.NoError(t, repo.Create(ctx, redisSession("long", models.SessionKindDriver, "o1", 24*time.Hour)))
	require.NoError(t, repo.Create(ctx, redisSession("short", models.SessionKindDriver, "o1", time.Hour)))

	srv.FastForward(3 * time.Hour)
	require.True(t, srv.Exists(sessionKey("long")))
	require.False(t, srv.Exists(sessionKey("short")))

	require.NoError(t, repo.DeleteAllForOwner(ctx, "o1", ""))

	assert.False(t, srv.Exists(sessionKey("long")))
	_, err := repo.GetAndTouch(ctx, "long", "", time.Now().UTC())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionWriteBackCannotResurrectDeleted(t *testing.T) {
	repo, srv := newRedisRepo(t)
	ctx := context.Background()

	session := redisSession("abc", models.SessionKindDriver, "o1", time.Hour)
	require.NoError(t, repo.Create(ctx, session))
	require.NoError(t, repo.Delete(ctx, "abc"))

	// A touch racing the delete writes back into a missing key; that write
	// must not bring the session back.
	ok, err := repo.store(ctx, session, redis.KeepTTL)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, srv.Exists(sessionKey("abc")))

	_, err = repo.GetAndTouch(ctx, "abc", "", time.Now().UTC())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionUpdatePayloadMerge(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	session := redisSession("abc", models.SessionKindOperator, "", time.Hour)
	session.Payload = json.RawMessage(`{"location_name":"Old","wash_mode":"SELF"}`)
	require.NoError(t, repo.Create(ctx, session))

	updated, err := repo.UpdatePayload(ctx, "abc", json.RawMessage(`{"location_name":"New"}`), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, updated)

	got, err := repo.GetAndTouch(ctx, "abc", models.SessionKindOperator, time.Now().UTC())
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "New", payload["location_name"])
	assert.Equal(t, "SELF", payload["wash_mode"])

	updated, err = repo.UpdatePayload(ctx, "missing", json.RawMessage(`{}`), time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestRedisSessionExtend(t *testing.T) {
	repo, srv := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, redisSession("abc", models.SessionKindPartner, "", time.Hour)))

	until := time.Now().UTC().Add(48 * time.Hour)
	extended, err := repo.Extend(ctx, "abc", until, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, extended)
	assert.Greater(t, srv.TTL(sessionKey("abc")), time.Hour)

	extended, err = repo.Extend(ctx, "missing", until, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, extended)
}

func TestRedisSessionDeleteAllForOwnerKindScoped(t *testing.T) {
	repo, srv := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, redisSession("d1", models.SessionKindDriver, "o1", time.Hour)))
	require.NoError(t, repo.Create(ctx, redisSession("p1", models.SessionKindPartner, "o1", time.Hour)))

	require.NoError(t, repo.DeleteAllForOwner(ctx, "o1", models.SessionKindDriver))

	assert.False(t, srv.Exists(sessionKey("d1")))
	assert.True(t, srv.Exists(sessionKey("p1")))
}

func TestRedisSessionDeleteExpiredPrunesOwnerIndex(t *testing.T) {
	repo, srv := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, redisSession("gone", models.SessionKindDriver, "o1", time.Hour)))
	require.NoError(t, repo.Create(ctx, redisSession("kept", models.SessionKindDriver, "o1", 24*time.Hour)))

	srv.FastForward(2 * time.Hour)

	pruned, err := repo.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	members, err := repo.client.SMembers(ctx, ownerKey("o1")).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, members)
}
