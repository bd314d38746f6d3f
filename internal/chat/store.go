package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/bmf87/l3vision/internal/cache"
	"github.com/bmf87/l3vision/internal/domain"
)

const lockStripes = 64

// Session is one user's conversation and preferences.
type Session struct {
	ID        string               `json:"id"`
	Email     string               `json:"email"`
	Model     string               `json:"model"`
	Avatar    domain.Avatar        `json:"avatar"`
	Messages  []domain.ChatMessage `json:"messages"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Store persists sessions as JSON in a cache with a sliding TTL.
type Store struct {
	cache         cache.Client
	ttl           time.Duration
	defaultModel  string
	defaultAvatar domain.Avatar
	now           func() time.Time

	// Striped locks serialize read-modify-write cycles per session within
	// this process.
	locks [lockStripes]sync.Mutex
}

// NewStore creates a session store.
func NewStore(c cache.Client, ttl time.Duration, defaultModel string) *Store {
	return &Store{
		cache:         c,
		ttl:           ttl,
		defaultModel:  defaultModel,
		defaultAvatar: domain.AvatarMale,
		now:           time.Now,
	}
}

// Load returns the session, or a fresh one when none is stored.
func (s *Store) Load(ctx context.Context, id, email string) (*Session, error) {
	if id == "" {
		return nil, domain.AuthError("missing session id", nil)
	}

	data, err := s.cache.Get(ctx, cache.SessionKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return s.fresh(id, email), nil
	}
	if err != nil {
		return nil, domain.IOError("load session", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, domain.IOError("decode session", err)
	}

	if sess.Email != email {
		return nil, domain.AuthError(fmt.Sprintf("session %s belongs to another user", id), nil)
	}

	return &sess, nil
}

// Save writes the session and refreshes its TTL.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now()

	data, err := json.Marshal(sess)
	if err != nil {
		return domain.IOError("encode session", err)
	}

	if err := s.cache.Set(ctx, cache.SessionKey(sess.ID), data, s.ttl); err != nil {
		return domain.IOError("save session", err)
	}
	return nil
}

// Update loads the session, applies fn and saves the result. Concurrent
// updates of the same session in this process are serialized. If fn fails
// nothing is saved.
func (s *Store) Update(ctx context.Context, id, email string, fn func(*Session) error) (*Session, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.Load(ctx, id, email)
	if err != nil {
		return nil, err
	}

	if err := fn(sess); err != nil {
		return nil, err
	}

	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, cache.SessionKey(id)); err != nil {
		return domain.IOError("delete session", err)
	}
	return nil
}

func (s *Store) fresh(id, email string) *Session {
	return &Session{
		ID:       id,
		Email:    email,
		Model:    s.defaultModel,
		Avatar:   s.defaultAvatar,
		Messages: []domain.ChatMessage{},
	}
}

func (s *Store) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}
