package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper lets one caller claim a key for a while. Redis makes the claim visible to every
// instance; without Redis, or when it errors, claims are kept in memory (single instance only).
type Deduper struct {
	rc     *redis.Client
	prefix string

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDeduper(rc *redis.Client, prefix string) *Deduper {
	return &Deduper{rc: rc, prefix: prefix, seen: map[string]time.Time{}}
}

// Claim reports whether this call is the first to claim key within ttl.
func (d *Deduper) Claim(ctx context.Context, key string, ttl time.Duration) bool {
	if d.rc != nil {
		ok, err := d.rc.SetNX(ctx, d.prefix+key, "1", ttl).Result()
		if err == nil {
			return ok
		}
	}

	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = now.Add(ttl)
	return true
}
