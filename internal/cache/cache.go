package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/rowlabel/internal/model"
)

// Cache stores validated labels keyed by request fingerprint
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// LabelKey fingerprints one classification request.
// The same text under a different model or labeling standard gets a different key.
func LabelKey(modelName, systemPrompt, text string) string {
	h := sha256.New()
	for _, part := range []string{modelName, systemPrompt, text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "rowlabel:v1:" + hex.EncodeToString(h.Sum(nil))
}

// New builds the cache described by cfg, or nil when caching is disabled
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.TTL, 10*time.Minute)
	}
	return NewLayeredCache(cfg.TTL, cfg.Dir, cfg.TTL)
}
