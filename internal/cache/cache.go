// Package cache memoizes (text, language pair) translations in Redis so
// repeated utterances skip the translation provider entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lingolink/realtime-core/internal/metrics"
)

const DefaultTTL = 24 * time.Hour

type Cache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func New(rdb redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Key derivation is case- and surrounding-whitespace-insensitive so trivial
// formatting differences still hit the same entry.
func translationKey(text, srcLang, tgtLang string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("trans:%s:%s:%s", hex.EncodeToString(sum[:]), srcLang, tgtLang)
}

// Lookup returns the cached translation for the pair, if any. Redis being
// unreachable degrades to a miss; callers never see cache errors.
func (c *Cache) Lookup(ctx context.Context, text, srcLang, tgtLang string) (string, bool) {
	val, err := c.rdb.Get(ctx, translationKey(text, srcLang, tgtLang)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("metric=cache_lookup status=error err=%q", err.Error())
			metrics.Default().IncCounter("lingo_translation_cache_total", map[string]string{"result": "error"})
			return "", false
		}
		metrics.Default().IncCounter("lingo_translation_cache_total", map[string]string{"result": "miss"})
		return "", false
	}
	metrics.Default().IncCounter("lingo_translation_cache_total", map[string]string{"result": "hit"})
	return val, true
}

// Store records a translation with the configured TTL. Best-effort: a failed
// write is logged and dropped.
func (c *Cache) Store(ctx context.Context, text, srcLang, tgtLang, translated string) {
	if strings.TrimSpace(translated) == "" {
		return
	}
	if err := c.rdb.Set(ctx, translationKey(text, srcLang, tgtLang), translated, c.ttl).Err(); err != nil {
		log.Printf("metric=cache_store status=error err=%q", err.Error())
	}
}
