// Package cache is a read-through, TTL-bounded Redis cache for hot workflow
// definitions and run snapshots. It is advisory: every failure degrades to
// direct storage access with a logged warning, and a nil *Cache is a valid
// no-op configuration.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// WorkflowTTL bounds staleness of cached definitions.
	WorkflowTTL = 60 * time.Second
	// RunTTL is short because runs change status while executing.
	RunTTL = 10 * time.Second
)

// WorkflowKey is the cache key for a workflow definition.
func WorkflowKey(uuid string) string { return "workflow:" + uuid }

// RunKey is the cache key for a workflow run snapshot.
func RunKey(uuid string) string { return "run:" + uuid }

// Cache wraps a Redis client with JSON serialisation. Creating or updating
// a record never invalidates its entry; TTL expiry bounds staleness. The
// only early removal is an explicit Delete, which the service issues when a
// workflow definition is deleted.
type Cache struct {
	client *redis.Client
}

// New creates a cache against the given Redis address.
func New(addr string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	log.Printf("Redis client created: %s", addr)
	return &Cache{client: client}
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get loads the JSON value stored under key into dest. Returns false on
// miss or on any cache failure.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Warning: cache get error for key=%s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(value), dest); err != nil {
		log.Printf("Warning: cache decode error for key=%s: %v", key, err)
		return false
	}
	return true
}

// Set stores value under key with the given TTL. Failures are logged and
// swallowed; the caller already has the authoritative copy.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("Warning: cache encode error for key=%s: %v", key, err)
		return
	}
	if err := c.client.SetEx(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("Warning: cache set error for key=%s: %v", key, err)
	}
}

// Delete removes a key. Best effort.
func (c *Cache) Delete(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("Warning: cache delete error for key=%s: %v", key, err)
	}
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
