// Package infra provides shared infrastructure components used across
// the engine: the fast state store (a TTL key-value store with atomic
// set-if-absent and increment) and broker-call rate limiting.
package infra

import (
	"encoding/json"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultKeyPrefix namespaces all engine keys in the store.
const DefaultKeyPrefix = "tf:"

// KV is the fast state store backing caches, idempotency keys, and
// rolling rate counters. Backed by an in-process TTL cache; all
// operations are goroutine-safe and atomic per key.
type KV struct {
	c      *gocache.Cache
	prefix string
}

// NewKV creates a store with the given key prefix (DefaultKeyPrefix when
// empty). Expired entries are swept every minute.
func NewKV(prefix string) *KV {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &KV{
		c:      gocache.New(gocache.NoExpiration, time.Minute),
		prefix: prefix,
	}
}

func (k *KV) key(key string) string { return k.prefix + key }

// Get returns the stored value for key, or false when absent or expired.
func (k *KV) Get(key string) (any, bool) {
	return k.c.Get(k.key(key))
}

// GetString returns a stored string value.
func (k *KV) GetString(key string) (string, bool) {
	v, ok := k.c.Get(k.key(key))
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetJSON unmarshals a stored JSON value into out.
func (k *KV) GetJSON(key string, out any) bool {
	v, ok := k.c.Get(k.key(key))
	if !ok {
		return false
	}
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Put stores value under key with the given TTL. A non-positive TTL
// stores without expiry.
func (k *KV) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	k.c.Set(k.key(key), value, ttl)
}

// PutJSON marshals value to JSON and stores it under key.
func (k *KV) PutJSON(key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	k.Put(key, raw, ttl)
	return nil
}

// Delete removes key from the store.
func (k *KV) Delete(key string) {
	k.c.Delete(k.key(key))
}

// SetIfAbsent stores value only when key does not already exist.
// Returns true iff the key was created.
func (k *KV) SetIfAbsent(key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return k.c.Add(k.key(key), value, ttl) == nil
}

// Incr atomically increments the counter at key and returns the new
// value. When the key does not exist it is created at 1 and ttlIfNew is
// applied only on that first creation (rolling-window semantics).
func (k *KV) Incr(key string, ttlIfNew time.Duration) int64 {
	if ttlIfNew <= 0 {
		ttlIfNew = gocache.NoExpiration
	}
	full := k.key(key)
	for {
		if err := k.c.Add(full, int64(1), ttlIfNew); err == nil {
			return 1
		}
		n, err := k.c.IncrementInt64(full, 1)
		if err == nil {
			return n
		}
		// Key expired between Add and Increment; retry the Add.
	}
}

// Keys returns all live keys under the store prefix, without the prefix.
func (k *KV) Keys() []string {
	items := k.c.Items()
	out := make([]string, 0, len(items))
	for key := range items {
		out = append(out, strings.TrimPrefix(key, k.prefix))
	}
	return out
}
