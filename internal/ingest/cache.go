package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// setCache serves the whitelist/blacklist id sets with a short TTL so a
// settings change propagates without restarting the listener. Reads beyond
// the TTL refetch; fetch failures fall back to the last known set.
type setCache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu   sync.Mutex
	sets map[string]cachedSet
}

type cachedSet struct {
	ids     map[int64]struct{}
	fetched time.Time
}

func newSetCache(s Store, ttl time.Duration, now func() time.Time) *setCache {
	return &setCache{store: s, ttl: ttl, now: now, sets: make(map[string]cachedSet)}
}

func (c *setCache) contains(ctx context.Context, key string, id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.sets[key]
	if !ok || c.now().Sub(entry.fetched) >= c.ttl {
		ids, err := c.store.GetIDSet(ctx, key)
		if err != nil {
			slog.Warn("id set fetch failed", "key", key, "error", err)
			if !ok {
				return false
			}
		} else {
			set := make(map[int64]struct{}, len(ids))
			for _, v := range ids {
				set[v] = struct{}{}
			}
			entry = cachedSet{ids: set, fetched: c.now()}
			c.sets[key] = entry
		}
	}
	_, found := entry.ids[id]
	return found
}

// titleCache memoizes chat-title lookups against the listener.
type titleCache struct {
	listener Listener
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	titles map[int64]cachedTitle
}

type cachedTitle struct {
	title   string
	fetched time.Time
}

func newTitleCache(l Listener, ttl time.Duration, now func() time.Time) *titleCache {
	return &titleCache{listener: l, ttl: ttl, now: now, titles: make(map[int64]cachedTitle)}
}

func (c *titleCache) resolve(ctx context.Context, chatID int64) string {
	c.mu.Lock()
	entry, ok := c.titles[chatID]
	if ok && c.now().Sub(entry.fetched) < c.ttl {
		c.mu.Unlock()
		return entry.title
	}
	c.mu.Unlock()

	title, err := c.listener.ChatTitle(ctx, chatID)
	if err != nil {
		slog.Debug("chat title lookup failed", "chat_id", chatID, "error", err)
		return entry.title // stale or empty
	}
	c.mu.Lock()
	c.titles[chatID] = cachedTitle{title: title, fetched: c.now()}
	c.mu.Unlock()
	return title
}
