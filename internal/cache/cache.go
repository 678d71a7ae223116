package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SettingEntry is a cached global setting lookup. Found=false caches the
// absence of the key so repeated misses do not hit the store.
type SettingEntry struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

type SettingsCache interface {
	Get(ctx context.Context, key string) (*SettingEntry, bool, error)
	Set(ctx context.Context, key string, value *SettingEntry, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopSettingsCache struct{}

func (NoopSettingsCache) Get(_ context.Context, _ string) (*SettingEntry, bool, error) {
	return nil, false, nil
}

func (NoopSettingsCache) Set(_ context.Context, _ string, _ *SettingEntry, _ time.Duration) error {
	return nil
}

func (NoopSettingsCache) Delete(_ context.Context, _ ...string) error {
	return nil
}

const localCacheSize = 256

// LocalSettingsCache is an in-process LRU used when Redis is not configured.
// Entries expire after the TTL the cache was built with.
type LocalSettingsCache struct {
	entries *expirable.LRU[string, SettingEntry]
}

func NewLocalSettingsCache(ttl time.Duration) *LocalSettingsCache {
	return &LocalSettingsCache{
		entries: expirable.NewLRU[string, SettingEntry](localCacheSize, nil, ttl),
	}
}

func (c *LocalSettingsCache) Get(_ context.Context, key string) (*SettingEntry, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set skips caching when ttl is not positive.
func (c *LocalSettingsCache) Set(_ context.Context, key string, value *SettingEntry, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	c.entries.Add(key, *value)
	return nil
}

func (c *LocalSettingsCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.entries.Remove(key)
	}
	return nil
}
