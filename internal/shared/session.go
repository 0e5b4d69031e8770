package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// tokenBytes is the entropy of a session token. 32 bytes keeps tokens far
// beyond guessable even under offline search.
const tokenBytes = 32

// SessionManager orchestrates opaque-token sessions backed by Redis.
//
// A token maps to at most one live session. Once invalidated or expired the
// token is permanently dead; rotation mints a new token instead of mutating
// the record. Per-token linearizability follows from Redis executing
// single-key commands atomically.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	sliding    bool
}

// Session is the server-side record bound to an opaque token.
type Session struct {
	// ID identifies the session record in audit storage. It is distinct
	// from the token so the secret never lands in PostgreSQL.
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type sessionPayload struct {
	SID       string    `json:"sid"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure, sliding bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		sliding:    sliding,
	}
}

// Create mints a session for userID and returns the opaque token. Concurrent
// creates for the same user yield independent sessions (multi-device login).
func (sm *SessionManager) Create(ctx context.Context, userID int64) (string, *Session, error) {
	token, err := generateToken()
	if err != nil {
		return "", nil, err
	}
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(sm.ttl),
	}
	if err := sm.store(ctx, token, sess); err != nil {
		return "", nil, err
	}
	return token, sess, nil
}

// Validate resolves a presented token back to its session. It fails with
// ErrSessionInvalid when the token is unknown, expired or invalidated.
// Unless sliding expiry is enabled the call does not mutate state.
func (sm *SessionManager) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}
	data, err := sm.client.Get(ctx, sm.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, ErrSessionInvalid
	}
	sess := &Session{
		ID:        stored.SID,
		UserID:    stored.UserID,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}
	if !time.Now().UTC().Before(sess.ExpiresAt) {
		return nil, ErrSessionInvalid
	}
	if sm.sliding {
		sess.ExpiresAt = time.Now().UTC().Add(sm.ttl)
		refreshed, err := sm.refresh(ctx, token, sess)
		if err != nil {
			return nil, err
		}
		if !refreshed {
			// The key vanished between the read and the conditional
			// write: a concurrent Invalidate won.
			return nil, ErrSessionInvalid
		}
	}
	return sess, nil
}

// Invalidate marks the session dead. It is idempotent and never errors on an
// already-dead or unknown token.
func (sm *SessionManager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := sm.client.Del(ctx, sm.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for session tokens.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Cookie builds the Set-Cookie artifact carrying the token.
func (sm *SessionManager) Cookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  expiresAt,
	}
}

// ClearCookie builds the expired cookie used after logout.
func (sm *SessionManager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (sm *SessionManager) store(ctx context.Context, token string, sess *Session) error {
	data, expire, err := encodeSession(sess)
	if err != nil {
		return err
	}
	return sm.client.Set(ctx, sm.redisKey(token), data, expire).Err()
}

// refresh re-stores the payload only while the key still exists (SET XX).
// A plain SET here would let a sliding Validate racing an Invalidate write
// the payload back after the DEL and resurrect a dead token.
func (sm *SessionManager) refresh(ctx context.Context, token string, sess *Session) (bool, error) {
	data, expire, err := encodeSession(sess)
	if err != nil {
		return false, err
	}
	return sm.client.SetXX(ctx, sm.redisKey(token), data, expire).Result()
}

func encodeSession(sess *Session) ([]byte, time.Duration, error) {
	payload := sessionPayload{
		SID:       sess.ID,
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	// The payload expiry is authoritative; the Redis TTL is a cleanup floor.
	// Clamp so a non-positive configured TTL still produces a storable key
	// that Validate will reject.
	expire := time.Until(sess.ExpiresAt)
	if expire < time.Second {
		expire = time.Second
	}
	return data, expire, nil
}

func (sm *SessionManager) redisKey(token string) string {
	return "session:" + token
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
