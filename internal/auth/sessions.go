package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	sessionKeyPrefix = "session:"
	flashKeySuffix   = ":flash"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side state behind the session cookie. UserID is empty for anonymous
// sessions, which exist only to carry flash messages.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
	FlashInfo    FlashKind = "info"
)

// Flash is a one-shot message shown on the next page the browser loads.
type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"message"`
}

// SessionStore keeps sessions and their flash queues in Redis.
type SessionStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{Client: client, TTL: ttl}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func flashKey(id string) string { return sessionKeyPrefix + id + flashKeySuffix }

// Create opens a session; pass an empty userID for an anonymous one.
func (s *SessionStore) Create(ctx context.Context, userID string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.TTL),
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionStore) save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.Client.Set(ctx, sessionKey(sess.ID), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	raw, err := s.Client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Login binds an existing session to userID under a fresh id, keeping its pending flashes.
func (s *SessionStore) Login(ctx context.Context, previous *Session, userID string) (*Session, error) {
	sess, err := s.Create(ctx, userID)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return sess, nil
	}

	flashes, err := s.PopFlashes(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range flashes {
		if err := s.AddFlash(ctx, sess.ID, f); err != nil {
			return nil, err
		}
	}
	if err := s.Destroy(ctx, previous.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	if err := s.Client.Del(ctx, sessionKey(id), flashKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) AddFlash(ctx context.Context, sessionID string, flash Flash) error {
	raw, err := json.Marshal(flash)
	if err != nil {
		return fmt.Errorf("failed to marshal flash: %w", err)
	}
	_, err = s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, flashKey(sessionID), raw)
		pipe.Expire(ctx, flashKey(sessionID), s.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to queue flash: %w", err)
	}
	return nil
}

// PopFlashes returns and clears the queued flashes in insertion order.
func (s *SessionStore) PopFlashes(ctx context.Context, sessionID string) ([]Flash, error) {
	var lrange *redis.StringSliceCmd
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, flashKey(sessionID), 0, -1)
		pipe.Del(ctx, flashKey(sessionID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read flashes: %w", err)
	}

	flashes := make([]Flash, 0, len(lrange.Val()))
	for _, raw := range lrange.Val() {
		var f Flash
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			continue
		}
		flashes = append(flashes, f)
	}
	return flashes, nil
}
