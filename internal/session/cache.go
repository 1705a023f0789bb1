package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/ops-console/internal/core/events"
)

// Publisher broadcasts session changes to other observers in the process.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Cache holds sessions keyed by the caller's session key. Expiry is checked on
// read; there is no background sweep.
type Cache struct {
	store  Store
	bus    Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewCache(store Store, bus Publisher, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the cache's time source.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Set writes a session for identity under key. The expiry is fixed at write time.
func (c *Cache) Set(ctx context.Context, key string, identity Identity, remember bool) (*Session, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	ttl := TTLFor(remember)
	sess := &Session{
		Identity:  identity,
		ExpiresAt: c.now().Add(ttl),
		Remember:  remember,
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	if err := c.store.Set(ctx, key, string(payload), ttl); err != nil {
		return nil, fmt.Errorf("failed to write session: %w", err)
	}

	c.publish(ctx, events.NewSessionChangedEvent(identity.ID, remember, sess.ExpiresAt))
	return sess, nil
}

// Get returns the session stored under key, or ErrNotFound. Malformed or expired
// payloads are purged.
func (c *Cache) Get(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, ErrNotFound
	}

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.Identity.ID == "" || sess.ExpiresAt.IsZero() {
		c.logger.Warn("discarding malformed session payload", "error", err)
		c.purge(ctx, key, "", "malformed")
		return nil, ErrNotFound
	}

	if !sess.Valid(c.now()) {
		c.purge(ctx, key, sess.Identity.ID, "expired")
		return nil, ErrNotFound
	}

	return &sess, nil
}

// Clear removes the session under key. Clearing a missing session is not an error.
func (c *Cache) Clear(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := c.store.Del(ctx, key); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	c.publish(ctx, events.NewSessionClearedEvent(key, "cleared"))
	return nil
}

func (c *Cache) purge(ctx context.Context, key, userID, reason string) {
	if err := c.store.Del(ctx, key); err != nil {
		c.logger.Warn("failed to purge session", "reason", reason, "error", err)
		return
	}
	if userID == "" {
		userID = key
	}
	c.publish(ctx, events.NewSessionClearedEvent(userID, reason))
}

func (c *Cache) publish(ctx context.Context, event events.Event) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to broadcast session change", "event_type", event.EventType(), "error", err)
	}
}
