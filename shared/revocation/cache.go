package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/logger"
)

// Storage is the read side needed to populate the cache.
type Storage interface {
	RecentlyRevokedUsers(ctx context.Context, since time.Time) (map[domain.UserId]time.Time, error)
}

// Cache remembers, per user, the moment before which issued tokens are no longer accepted.
// Accounts are revoked on deletion and on password change.
type Cache struct {
	storage        Storage
	cache          map[domain.UserId]time.Time
	mu             sync.RWMutex
	jwtTTL         time.Duration
	lastUpdateTime time.Time
}

func NewCache(storage Storage, jwtTTL time.Duration) *Cache {
	return &Cache{
		storage: storage,
		cache:   make(map[domain.UserId]time.Time),
		jwtTTL:  jwtTTL,
	}
}

// Update reloads revocations newer than the JWT TTL plus a 10% buffer for clock skew.
// Older revocations cannot match a live token.
func (c *Cache) Update(ctx context.Context) error {
	since := time.Now().Add(-time.Duration(float64(c.jwtTTL) * 1.1))

	revoked, err := c.storage.RecentlyRevokedUsers(ctx, since)
	if err != nil {
		return err
	}
	if revoked == nil {
		revoked = make(map[domain.UserId]time.Time)
	}

	c.mu.Lock()
	c.cache = revoked
	c.lastUpdateTime = time.Now()
	c.mu.Unlock()

	logger.Log.Debug("revocation cache updated",
		"component", "revocation_cache",
		"entries", len(revoked),
		"since", since.Format(time.RFC3339))
	return nil
}

// Revoke records a revocation locally so it takes effect before the next refresh.
func (c *Cache) Revoke(userId domain.UserId, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.cache[userId]; !ok || at.After(prev) {
		c.cache[userId] = at
	}
}

// IsRevoked reports whether a token issued at issuedAt for userId must be rejected.
func (c *Cache) IsRevoked(userId domain.UserId, issuedAt time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	revokedAt, ok := c.cache[userId]
	if !ok {
		return false
	}
	return issuedAt.Unix() < revokedAt.Unix()
}

func (c *Cache) StartBackgroundUpdate(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	logger.Log.Info("started revocation cache background updates",
		"component", "revocation_cache",
		"interval", interval,
		"jwt_ttl", c.jwtTTL)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.Update(ctx); err != nil {
					logger.Log.Error("revocation cache update failed",
						"component", "revocation_cache",
						"error", err)
				}
			case <-ctx.Done():
				logger.Log.Info("revocation cache shutting down gracefully",
					"component", "revocation_cache")
				return
			}
		}
	}()
}
