package proxy

import (
	"sync"
	"time"
)

// relayCache keeps recently relayed assets in memory so repeated tokens for
// the same destination (favicons, shared thumbnails) do not trigger
// repeated upstream fetches. Keys are decrypted destination URLs; entries
// never touch disk.
type relayCache struct {
	mu   sync.RWMutex
	now  func() time.Time
	ttl  time.Duration
	data map[string]relayEntry
}

type relayEntry struct {
	body        []byte
	contentType string
	created     time.Time
}

func newRelayCache(now func() time.Time) *relayCache {
	if now == nil {
		now = time.Now
	}
	return &relayCache{
		now:  now,
		ttl:  5 * time.Minute,
		data: make(map[string]relayEntry),
	}
}

func (c *relayCache) get(url string) ([]byte, string, bool) {
	c.mu.RLock()
	entry, ok := c.data[url]
	c.mu.RUnlock()
	if !ok {
		return nil, "", false
	}
	if c.now().Sub(entry.created) > c.ttl {
		c.mu.Lock()
		delete(c.data, url)
		c.mu.Unlock()
		return nil, "", false
	}
	return entry.body, entry.contentType, true
}

func (c *relayCache) store(url string, body []byte, contentType string) {
	if len(body) == 0 {
		return
	}
	entry := relayEntry{
		body:        append([]byte(nil), body...),
		contentType: contentType,
		created:     c.now(),
	}
	c.mu.Lock()
	c.data[url] = entry
	// Opportunistic sweep keeps the map from growing without bound.
	if len(c.data) > 1024 {
		for k, e := range c.data {
			if c.now().Sub(e.created) > c.ttl {
				delete(c.data, k)
			}
		}
	}
	c.mu.Unlock()
}
