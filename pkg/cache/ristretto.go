package cache

import (
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache is a cache implementation using Ristretto.
type RistrettoCache struct {
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for Ristretto cache.
type RistrettoConfig struct {
	NumCounters int64 // Number of keys to track frequency (10x max items)
	MaxCost     int64 // Maximum number of cached documents
	BufferItems int64 // Number of keys per Get buffer
	Logger      *zap.Logger
}

// NewRistrettoCache creates a new Ristretto-backed cache.
func NewRistrettoCache(cfg *RistrettoConfig) (Cache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	return &RistrettoCache{
		cache:  cache,
		logger: cfg.Logger,
	}, nil
}

// keyKind extracts the document kind from a namespaced key, so
// "market-detail:mkt-1" counts under "market-detail". Unprefixed
// keys count under "other".
func keyKind(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}

// Get retrieves a document from the cache.
func (r *RistrettoCache) Get(key string) (interface{}, bool) {
	kind := keyKind(key)

	value, found := r.cache.Get(key)
	if found {
		CacheHitsTotal.WithLabelValues(kind).Inc()
		r.logger.Debug("cache-hit", zap.String("key", key), zap.String("kind", kind))
	} else {
		CacheMissesTotal.WithLabelValues(kind).Inc()
		r.logger.Debug("cache-miss", zap.String("key", key), zap.String("kind", kind))
	}
	return value, found
}

// Set stores a document in the cache with a TTL.
func (r *RistrettoCache) Set(key string, value interface{}, ttl time.Duration) bool {
	// Cost 1 per document, so MaxCost caps the document count.
	success := r.cache.SetWithTTL(key, value, 1, ttl)
	if success {
		CacheSetsTotal.WithLabelValues(keyKind(key)).Inc()
		r.logger.Debug("cache-set",
			zap.String("key", key),
			zap.Duration("ttl", ttl))
	}
	return success
}

// Delete removes a document from the cache.
func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
	CacheDeletesTotal.WithLabelValues(keyKind(key)).Inc()
	r.logger.Debug("cache-delete", zap.String("key", key))
}

// Clear removes all documents from the cache.
func (r *RistrettoCache) Clear() {
	r.cache.Clear()
	r.logger.Info("cache-cleared")
}

// Close closes the cache and releases resources.
func (r *RistrettoCache) Close() {
	r.cache.Close()
	r.logger.Info("cache-closed")
}

// Wait blocks until all pending writes have been applied.
// Useful in tests to ensure a value is observable after Set.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}
