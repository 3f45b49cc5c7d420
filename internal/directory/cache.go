package directory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/remindly/reminder-engine/internal/domain"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = time.Minute
)

// CachedContacts is a ContactDirectory decorator backed by an expiring LRU.
// Lookup errors are never cached.
type CachedContacts struct {
	delegate ContactDirectory
	cache    *expirable.LRU[string, domain.Contact]
}

var _ ContactDirectory = (*CachedContacts)(nil)

func NewCachedContacts(delegate ContactDirectory, size int, ttl time.Duration) (*CachedContacts, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedContacts{
		delegate: delegate,
		cache:    expirable.NewLRU[string, domain.Contact](size, nil, ttl),
	}, nil
}

func (c *CachedContacts) GetContact(ctx context.Context, userID string) (*domain.Contact, error) {
	if contact, ok := c.cache.Get(userID); ok {
		return &contact, nil
	}

	contact, err := c.delegate.GetContact(ctx, userID)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		c.cache.Add(userID, *contact)
	}
	return contact, nil
}

