package usecase

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"shopchat/internal/domain"
)

type affinityKey struct {
	conversationID string
	role           string
}

type affinityEntry struct {
	key      affinityKey
	handle   any
	lastUsed time.Time
}

type roleHint struct {
	role     string
	lastUsed time.Time
}

// AffinityCache maps (conversation, specialist role) pairs to live backend
// handles so a returning customer lands on the specialist that last served
// them. Bounded LRU with TTL expiry; expired entries are dropped lazily on
// access and in bulk by EvictExpired. Safe for concurrent use.
type AffinityCache struct {
	mu        sync.Mutex
	capacity  int
	ttl       time.Duration
	entries   map[affinityKey]*list.Element
	ll        *list.List // front = most recently used
	lastRoles map[string]roleHint
	logger    *slog.Logger

	releaseTimeout time.Duration
	now            func() time.Time
}

// NewAffinityCache creates a cache with the given capacity and entry TTL.
func NewAffinityCache(capacity int, ttl time.Duration, logger *slog.Logger) (*AffinityCache, error) {
	if capacity <= 0 {
		return nil, domain.NewDomainError("NewAffinityCache", domain.ErrConfiguration, "capacity must be positive")
	}
	if ttl <= 0 {
		return nil, domain.NewDomainError("NewAffinityCache", domain.ErrConfiguration, "ttl must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AffinityCache{
		capacity:       capacity,
		ttl:            ttl,
		entries:        make(map[affinityKey]*list.Element),
		ll:             list.New(),
		lastRoles:      make(map[string]roleHint),
		logger:         logger,
		releaseTimeout: 5 * time.Second,
		now:            time.Now,
	}, nil
}

// Get returns the cached handle for (conversationID, role) and refreshes
// its recency. Expired entries count as misses and are removed.
func (c *AffinityCache) Get(conversationID, role string) (any, bool) {
	c.mu.Lock()
	key := affinityKey{conversationID: conversationID, role: role}
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	now := c.now()
	entry := el.Value.(*affinityEntry)
	if now.Sub(entry.lastUsed) > c.ttl {
		c.removeLocked(el)
		c.mu.Unlock()
		c.release(entry.handle, "expired")
		return nil, false
	}
	entry.lastUsed = now
	c.ll.MoveToFront(el)
	c.mu.Unlock()
	return entry.handle, true
}

// Put stores a handle for (conversationID, role) and records the role as
// the conversation's most recent. At capacity the least-recently-used
// entry is evicted, preferring already-expired entries.
func (c *AffinityCache) Put(conversationID, role string, handle any) {
	c.mu.Lock()
	now := c.now()
	key := affinityKey{conversationID: conversationID, role: role}

	var evicted []any
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*affinityEntry)
		if entry.handle != handle {
			evicted = append(evicted, entry.handle)
		}
		entry.handle = handle
		entry.lastUsed = now
		c.ll.MoveToFront(el)
	} else {
		// Drop expired entries from the cold end before evicting a live one.
		for c.ll.Len() >= c.capacity {
			back := c.ll.Back()
			victim := back.Value.(*affinityEntry)
			c.removeLocked(back)
			evicted = append(evicted, victim.handle)
			if now.Sub(victim.lastUsed) <= c.ttl {
				c.logger.Debug("affinity entry evicted at capacity",
					"conversation_id", victim.key.conversationID,
					"role", victim.key.role)
				break
			}
		}
		entry := &affinityEntry{key: key, handle: handle, lastUsed: now}
		c.entries[key] = c.ll.PushFront(entry)
	}
	c.lastRoles[conversationID] = roleHint{role: role, lastUsed: now}
	c.mu.Unlock()

	for _, h := range evicted {
		c.release(h, "evicted")
	}
}

// LastRole returns the specialist role that most recently served the
// conversation. Expired hints count as misses.
func (c *AffinityCache) LastRole(conversationID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hint, ok := c.lastRoles[conversationID]
	if !ok {
		return "", false
	}
	if c.now().Sub(hint.lastUsed) > c.ttl {
		delete(c.lastRoles, conversationID)
		return "", false
	}
	return hint.role, true
}

// EvictExpired removes every entry older than the TTL and returns how many
// were dropped. Intended for a periodic sweep.
func (c *AffinityCache) EvictExpired() int {
	c.mu.Lock()
	now := c.now()
	var expired []any
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*affinityEntry)
		if now.Sub(entry.lastUsed) > c.ttl {
			c.removeLocked(el)
			expired = append(expired, entry.handle)
		}
		el = prev
	}
	for conv, hint := range c.lastRoles {
		if now.Sub(hint.lastUsed) > c.ttl {
			delete(c.lastRoles, conv)
		}
	}
	c.mu.Unlock()

	for _, h := range expired {
		c.release(h, "expired")
	}
	return len(expired)
}

// Len returns the number of live cached handles.
func (c *AffinityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Close releases every cached handle. The cache is empty afterwards.
func (c *AffinityCache) Close(ctx context.Context) error {
	c.mu.Lock()
	var handles []any
	for el := c.ll.Front(); el != nil; el = el.Next() {
		handles = append(handles, el.Value.(*affinityEntry).handle)
	}
	c.entries = make(map[affinityKey]*list.Element)
	c.ll.Init()
	c.lastRoles = make(map[string]roleHint)
	c.mu.Unlock()

	for _, h := range handles {
		if r, ok := h.(domain.ReleasableHandle); ok {
			if err := r.Release(ctx); err != nil {
				c.logger.Warn("affinity handle release failed on close", "error", err)
			}
		}
	}
	return nil
}

func (c *AffinityCache) removeLocked(el *list.Element) {
	entry := el.Value.(*affinityEntry)
	c.ll.Remove(el)
	delete(c.entries, entry.key)
}

// release disposes a handle outside the cache lock. Best-effort: failures
// are logged, never surfaced to callers.
func (c *AffinityCache) release(handle any, reason string) {
	r, ok := handle.(domain.ReleasableHandle)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.releaseTimeout)
	defer cancel()
	if err := r.Release(ctx); err != nil {
		c.logger.Warn("affinity handle release failed", "reason", reason, "error", err)
	}
}
