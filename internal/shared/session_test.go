package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-iot/nexus/internal/shared"
)

func newSessionManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "nexus_session", time.Hour), mr
}

func TestSessionManagerLoadFromCookie(t *testing.T) {
	sm, mr := newSessionManager(t)
	userID := uuid.New()
	require.NoError(t, mr.Set(sm.RedisKey("abc"), `{"user_id":"`+userID.String()+`","values":{"tenant":"t1"}}`))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "abc"})

	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, userID, sess.UserID)
	assert.Equal(t, "t1", sess.Get("tenant"))
	assert.Equal(t, time.Hour, mr.TTL(sm.RedisKey("abc")))
}

func TestSessionManagerLoadFromBearer(t *testing.T) {
	sm, mr := newSessionManager(t)
	userID := uuid.New()
	require.NoError(t, mr.Set(sm.RedisKey("tok"), `{"user_id":"`+userID.String()+`"}`))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")

	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, userID, sess.UserID)
}

func TestSessionManagerAnonymous(t *testing.T) {
	sm, mr := newSessionManager(t)

	t.Run("no cookie", func(t *testing.T) {
		sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("expired session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "gone"})
		sess, err := sm.Load(context.Background(), req)
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("unparsable user", func(t *testing.T) {
		require.NoError(t, mr.Set(sm.RedisKey("bad"), `{"user_id":"42"}`))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "bad"})
		sess, err := sm.Load(context.Background(), req)
		require.NoError(t, err)
		assert.Nil(t, sess)
	})
}
