package session

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/rasterlab/edlgate/domain"
)

// Manager binds the session store to the session cookie. The cookie carries
// the session id sealed with AES-GCM under the configured 128 bit key, so a
// client cannot mint or swap session ids.
type Manager struct {
	store      domain.SessionStore
	cookieName string
	ttl        time.Duration
	aead       cipher.AEAD
}

// NewManager creates a session manager. key must be 16 bytes; LoadConfig
// enforces that before we get here.
func NewManager(store domain.SessionStore, cookieName string, ttl time.Duration, key []byte) (*Manager, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init session cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init session cipher: %w", err)
	}

	return &Manager{
		store:      store,
		cookieName: cookieName,
		ttl:        ttl,
		aead:       aead,
	}, nil
}

// Load returns the session addressed by the request's cookie, creating a
// fresh one (and setting the cookie) when the cookie is absent, unreadable
// or points at an expired session.
func (m *Manager) Load(c echo.Context) (*domain.Session, error) {
	if cookie, err := c.Cookie(m.cookieName); err == nil {
		if id, err := m.unseal(cookie.Value); err == nil {
			sess, err := m.store.Get(c.Request().Context(), id)
			if err != nil {
				return nil, err
			}
			if sess != nil {
				return sess, nil
			}
		} else {
			log.Debug().Err(err).Msg("discarding unreadable session cookie")
		}
	}

	sess := &domain.Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	sealed, err := m.seal(sess.ID)
	if err != nil {
		return nil, err
	}
	c.SetCookie(&http.Cookie{
		Name:     m.cookieName,
		Value:    sealed,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return sess, nil
}

// Peek returns the existing session addressed by the request's cookie, or
// nil when there is none. Unlike Load it never creates a session and never
// sets a cookie.
func (m *Manager) Peek(c echo.Context) (*domain.Session, error) {
	cookie, err := c.Cookie(m.cookieName)
	if err != nil {
		return nil, nil
	}
	id, err := m.unseal(cookie.Value)
	if err != nil {
		return nil, nil
	}
	return m.store.Get(c.Request().Context(), id)
}

// Save persists the session with the manager's TTL.
func (m *Manager) Save(ctx context.Context, sess *domain.Session) error {
	return m.store.Put(ctx, sess)
}

// Remove drops the session from the store.
func (m *Manager) Remove(ctx context.Context, sess *domain.Session) error {
	return m.store.Remove(ctx, sess.ID)
}

// CookieName returns the configured session cookie name.
func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) seal(id string) (string, error) {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to seal session cookie: %w", err)
	}
	out := m.aead.Seal(nonce, nonce, []byte(id), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (m *Manager) unseal(value string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", err
	}
	if len(raw) < m.aead.NonceSize() {
		return "", fmt.Errorf("session cookie too short")
	}
	nonce, sealed := raw[:m.aead.NonceSize()], raw[m.aead.NonceSize():]
	id, err := m.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(id), nil
}
