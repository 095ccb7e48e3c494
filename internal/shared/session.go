package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager reads cookie or bearer sessions backed by Redis. Sessions are
// issued elsewhere; this side only validates and refreshes them.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
}

// Session holds the authenticated identity bound to a session ID.
type Session struct {
	ID     string
	UserID uuid.UUID
	values map[string]string
}

type sessionPayload struct {
	Values map[string]string `json:"values"`
	UserID string            `json:"user_id"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
	}
}

// Load resolves the session referenced by the request. It returns nil without
// error when the request carries no session or the session has expired.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	id := sm.sessionID(r)
	if id == "" {
		return nil, nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(stored.UserID)
	if err != nil {
		// A session without a parsable user is treated as anonymous.
		return nil, nil
	}

	if sm.ttl > 0 {
		if err := sm.client.Expire(ctx, sm.redisKey(id), sm.ttl).Err(); err != nil {
			return nil, err
		}
	}

	return &Session{ID: id, UserID: userID, values: stored.Values}, nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// RedisKey returns the storage key for a session ID.
func (sm *SessionManager) RedisKey(id string) string {
	return sm.redisKey(id)
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s == nil || s.values == nil {
		return ""
	}
	return s.values[key]
}

func (sm *SessionManager) sessionID(r *http.Request) string {
	if cookie, err := r.Cookie(sm.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}
